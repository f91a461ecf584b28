package wifi_manager

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// dispatchLock is the single serializing lock. It is a channel so the
// reconnect worker can give up waiting for it when it is terminated.
type dispatchLock chan struct{}

func newDispatchLock() dispatchLock {
	return make(dispatchLock, 1)
}

func (l dispatchLock) lock() {
	l <- struct{}{}
}

func (l dispatchLock) unlock() {
	<-l
}

// lockOrAbort acquires the lock unless abort is closed first.
func (l dispatchLock) lockOrAbort(abort <-chan struct{}) bool {
	select {
	case l <- struct{}{}:
		return true
	case <-abort:
		return false
	}
}

// dispatch serializes ev behind the dispatch lock and runs the handler of the current state.
func (m *Manager) dispatch(ev Event) error {
	m.lock.lock()
	defer m.lock.unlock()
	return m.handle(ev)
}

// post dispatches a driver or collaborator event whose result nobody waits for.
func (m *Manager) post(ev Event) {
	if err := m.dispatch(ev); err != nil && !IsInvalidEvent(err) {
		logger.WithError(err).WithField("event", ev.Kind.String()).Warn("Event handling failed")
	}
}

// dispatchReconnect is the reconnect worker's path into the dispatcher.
func (m *Manager) dispatchReconnect(w *reconnectWorker) bool {
	if !m.lock.lockOrAbort(w.quit) {
		return false
	}
	defer m.lock.unlock()

	select {
	case <-w.quit:
		return false
	default:
	}

	if err := m.handle(Event{Kind: EventReconnect, Payload: w}); err != nil && !IsInvalidEvent(err) {
		logger.WithError(err).Debug("Reconnect attempt failed")
	}
	return true
}

// handle must be called with the dispatch lock held.
func (m *Manager) handle(ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	from := m.state
	entry := logger.WithFields(logrus.Fields{
		"event":    ev.Kind.String(),
		"event_id": ev.ID,
		"state":    from.String(),
	})
	entry.Debug("Dispatching event")

	var err error
	switch from {
	case StateUninitialized:
		err = m.onUninitialized(ev)
	case StateStaDisconnected:
		err = m.onStaDisconnected(ev)
	case StateStaDisconnecting:
		err = m.onStaDisconnecting(ev)
	case StateStaConnecting:
		err = m.onStaConnecting(ev)
	case StateStaConnected:
		err = m.onStaConnected(ev)
	case StateStaReconnect:
		err = m.onStaReconnect(ev)
	case StateStaReconnecting:
		err = m.onStaReconnecting(ev)
	case StateStaConnectCancel:
		err = m.onStaConnectCancel(ev)
	case StateSoftApDisconnectingSta:
		err = m.onSoftApDisconnectingSta(ev)
	case StateSoftAp:
		err = m.onSoftAp(ev)
	case StateScanning:
		err = m.onScanning(ev)
	default:
		err = errInvalidEvent
	}

	if errors.Is(err, errInvalidEvent) {
		entry.Warn("Event rejected in current state")
		if m.reporter != nil {
			m.reporter.ReportInvalidEvent(from, ev.Kind)
		}
		return newError(ResultFail, ev.Kind.String(), err)
	}
	if m.state != from {
		entry.WithField("next_state", m.state.String()).Info("State transition")
	}
	return err
}
