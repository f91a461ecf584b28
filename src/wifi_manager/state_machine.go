package wifi_manager

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Per-state handlers. Each runs with the dispatch lock held, performs at most
// one transition and returns errInvalidEvent for events the state does not accept.

func (m *Manager) onUninitialized(ev Event) error {
	if ev.Kind != EventInit {
		return errInvalidEvent
	}
	primary, _ := ev.Payload.(*Callbacks)
	if primary == nil {
		return newError(ResultInvalidArgs, "init", errors.New("nil callbacks"))
	}

	if err := m.driver.Init(m); err != nil {
		return newError(ResultFail, "init", fmt.Errorf("driver init: %w", err))
	}
	if err := m.store.Init(); err != nil {
		m.deinitDriver()
		return newError(ResultFail, "init", fmt.Errorf("profile store init: %w", err))
	}
	if err := m.driver.SetAutoConnect(false); err != nil {
		logger.WithError(err).Warn("Failed to disable driver autoconnect")
	}
	if err := m.runSTA(); err != nil {
		m.deinitDriver()
		return newError(ResultFail, "init", err)
	}
	info, err := m.driver.GetInfo()
	if err != nil {
		logger.WithError(err).Warn("Could not read interface MAC address")
	}
	m.mac = info.MAC

	m.callbacks.reset(primary)
	m.state = StateStaDisconnected
	logger.WithField("mac", m.mac.String()).Info("Wi-Fi manager initialized")
	return nil
}

func (m *Manager) onStaDisconnected(ev Event) error {
	switch ev.Kind {
	case EventConnect:
		req := ev.Payload.(*ConnectRequest)
		outcome, err := m.connectAP(req.Config)
		switch outcome {
		case connectAccepted:
			m.connected = req.Config
			m.policy = req.Policy
			m.state = StateStaConnecting
			return nil
		case connectAlreadyConnected:
			return newError(ResultAlreadyConnected, "connect", nil)
		default:
			return newError(ResultFail, "connect", err)
		}
	case EventSetSoftAp:
		req := ev.Payload.(*softAPRequest)
		if err := m.runSoftAP(req.config); err != nil {
			return err
		}
		m.state = StateSoftAp
		return nil
	case EventScan:
		return m.enterScanning()
	case EventDeinit:
		m.teardown()
		return nil
	}
	return errInvalidEvent
}

func (m *Manager) onStaConnecting(ev Event) error {
	switch ev.Kind {
	case EventStaConnected:
		if err := m.startDHCPClient(); err != nil {
			logger.WithError(err).Error("DHCP client failed, dropping connection")
			m.suppressDisconnect = true
			if derr := m.disconnectAP(); derr != nil {
				logger.WithError(derr).Error("Failed to disconnect after DHCP failure")
			}
			m.state = StateStaDisconnecting
			return nil
		}
		m.callbacks.staConnected(ResultSuccess)
		m.state = StateStaConnected
		return nil
	case EventStaConnectFailed:
		m.staActive = false
		m.callbacks.staConnected(ResultFail)
		m.state = StateStaDisconnected
		return nil
	}
	return errInvalidEvent
}

func (m *Manager) onStaConnected(ev Event) error {
	switch ev.Kind {
	case EventDisconnect:
		if err := m.disconnectAP(); err != nil {
			return newError(ResultFail, "disconnect", err)
		}
		m.state = StateStaDisconnecting
		return nil
	case EventStaDisconnected:
		m.staActive = false
		if m.policy.Kind == ReconnectInterval {
			m.callbacks.staDisconnected(DisconnectReasonReconnecting)
			m.startReconnectWorker()
			m.state = StateStaReconnect
			return nil
		}
		m.releaseDHCPClient()
		m.callbacks.staDisconnected(DisconnectReasonDisconnected)
		m.state = StateStaDisconnected
		return nil
	case EventSetSoftAp:
		req := ev.Payload.(*softAPRequest)
		if err := m.disconnectAP(); err != nil {
			return newError(ResultFail, "set_mode", err)
		}
		req.deferred = true
		m.pendingSoftAP = req
		m.softAPConfig = req.config
		m.state = StateSoftApDisconnectingSta
		return nil
	case EventScan:
		return m.enterScanning()
	}
	return errInvalidEvent
}

func (m *Manager) onStaReconnect(ev Event) error {
	switch ev.Kind {
	case EventReconnect:
		w := ev.Payload.(*reconnectWorker)
		if w != m.worker {
			return errInvalidEvent
		}
		w.tries++
		outcome, err := m.connectAP(m.connected)
		logger.WithFields(logrus.Fields{
			"ssid": m.connected.SSID,
			"try":  w.tries,
		}).Info("Reconnect attempt")
		switch outcome {
		case connectAlreadyConnected:
			w.stop()
			m.staActive = true
			m.callbacks.staConnected(ResultSuccess)
			m.state = StateStaConnected
		case connectAccepted:
			m.state = StateStaReconnecting
		case connectUnreachable:
			m.retryOrStopWorker(false)
		default:
			logger.WithError(err).Warn("Reconnect hit a non-retryable error, giving up")
			w.stop()
		}
		return nil
	case EventDisconnect:
		m.terminateWorker()
		m.releaseDHCPClient()
		m.state = StateStaDisconnected
		return nil
	}
	return errInvalidEvent
}

func (m *Manager) onStaReconnecting(ev Event) error {
	switch ev.Kind {
	case EventStaConnectFailed:
		m.staActive = false
		m.retryOrStopWorker(true)
		m.state = StateStaReconnect
		return nil
	case EventDisconnect:
		m.terminateWorker()
		m.state = StateStaConnectCancel
		return nil
	case EventStaConnected:
		m.terminateWorker()
		if err := m.startDHCPClient(); err != nil {
			logger.WithError(err).Error("DHCP client failed after reconnect, dropping connection")
			m.suppressDisconnect = true
			if derr := m.disconnectAP(); derr != nil {
				logger.WithError(derr).Error("Failed to disconnect after DHCP failure")
			}
			m.state = StateStaDisconnecting
			return nil
		}
		m.callbacks.staConnected(ResultSuccess)
		m.state = StateStaConnected
		return nil
	}
	return errInvalidEvent
}

func (m *Manager) onStaConnectCancel(ev Event) error {
	switch ev.Kind {
	case EventStaConnected:
		if err := m.disconnectAP(); err != nil {
			logger.WithError(err).Error("Failed to cancel connection")
		}
		m.state = StateStaDisconnecting
		return nil
	case EventStaConnectFailed:
		m.staActive = false
		m.releaseDHCPClient()
		m.state = StateStaDisconnected
		return nil
	}
	return errInvalidEvent
}

func (m *Manager) onStaDisconnecting(ev Event) error {
	if ev.Kind != EventStaDisconnected {
		return errInvalidEvent
	}
	m.staActive = false
	m.releaseDHCPClient()
	if m.suppressDisconnect {
		m.suppressDisconnect = false
		logger.Debug("Suppressed disconnect callback")
	} else {
		m.callbacks.staDisconnected(DisconnectReasonDisconnected)
	}
	m.state = StateStaDisconnected
	return nil
}

func (m *Manager) onSoftApDisconnectingSta(ev Event) error {
	if ev.Kind != EventStaDisconnected {
		return errInvalidEvent
	}
	m.staActive = false
	m.releaseDHCPClient()
	if err := m.runSoftAP(m.softAPConfig); err != nil {
		logger.WithError(err).Error("Failed to start softap after station teardown")
		if m.pendingSoftAP != nil {
			m.pendingSoftAP.signal(err)
			m.pendingSoftAP = nil
		}
		m.state = StateStaDisconnected
		return err
	}
	m.state = StateSoftAp
	return nil
}

func (m *Manager) onSoftAp(ev Event) error {
	switch ev.Kind {
	case EventSetSta:
		stopErr := m.stopSoftAP()
		staErr := m.runSTA()
		m.state = StateStaDisconnected
		if err := errors.Join(stopErr, staErr); err != nil {
			return newError(ResultFail, "set_mode", err)
		}
		return nil
	case EventScan:
		return m.enterScanning()
	case EventDhcpdGetIp:
		lease, _ := ev.Payload.(DHCPLease)
		m.numSta++
		logger.WithFields(logrus.Fields{
			"mac":     lease.MAC,
			"ip":      lease.IP.String(),
			"num_sta": m.numSta,
		}).Info("Station joined softap")
		m.callbacks.softAPStaJoined()
		return nil
	case EventSoftAPStaLeft:
		if m.numSta > 0 {
			m.numSta--
		}
		logger.WithField("num_sta", m.numSta).Info("Station left softap")
		m.callbacks.softAPStaLeft()
		return nil
	case EventDeinit:
		if err := m.stopSoftAP(); err != nil {
			logger.WithError(err).Warn("Softap teardown incomplete")
		}
		m.teardown()
		return nil
	}
	return errInvalidEvent
}

func (m *Manager) onScanning(ev Event) error {
	if ev.Kind != EventScanDone {
		return errInvalidEvent
	}
	payload, _ := ev.Payload.(scanDonePayload)
	m.callbacks.scanDone(payload.result, payload.records)
	m.state = m.prevState
	m.prevState = StateUninitialized
	return nil
}

// enterScanning issues a scan from a stable state and remembers where to return.
func (m *Manager) enterScanning() error {
	if err := m.driver.Scan(); err != nil {
		return newError(ResultFail, "scan", err)
	}
	m.prevState = m.state
	m.state = StateScanning
	return nil
}

func (m *Manager) startReconnectWorker() {
	if m.worker != nil {
		m.terminateWorker()
	}
	m.worker = newReconnectWorker(m.policy, m.clock, m.dispatchReconnect)
	m.worker.start()
}

// terminateWorker is the signal-then-join handshake. It runs under the dispatch
// lock; the worker never blocks on that lock once signalled.
func (m *Manager) terminateWorker() {
	if m.worker == nil {
		return
	}
	m.worker.stop()
	m.worker.join()
	m.worker = nil
	logger.Debug("Reconnect worker joined")
}

// retryOrStopWorker decides after a failed attempt. join must be false when
// running on the worker's own goroutine.
func (m *Manager) retryOrStopWorker(join bool) {
	w := m.worker
	if w == nil {
		return
	}
	if w.exhausted() {
		logger.WithField("tries", w.tries).Warn("Reconnect attempts exhausted")
		if join {
			m.terminateWorker()
		} else {
			w.stop()
		}
		return
	}
	w.wake()
}

func (m *Manager) deinitDriver() {
	if err := m.driver.Deinit(); err != nil {
		logger.WithError(err).Warn("Driver deinit failed")
	}
}

// teardown returns the manager to Uninitialized.
func (m *Manager) teardown() {
	m.terminateWorker()
	m.deinitDriver()
	m.callbacks.clear()
	m.connected = APConfig{}
	m.policy = ReconnectPolicy{}
	m.connectedSSID = ""
	m.staActive = false
	m.staIP = nil
	m.softAPConfig = SoftAPConfig{}
	m.pendingSoftAP = nil
	m.numSta = 0
	m.suppressDisconnect = false
	m.prevState = StateUninitialized
	m.state = StateUninitialized
	logger.Info("Wi-Fi manager deinitialized")
}
