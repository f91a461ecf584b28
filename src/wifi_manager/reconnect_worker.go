package wifi_manager

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// reconnectWorker waits out the reconnect interval and asks the dispatcher to
// attempt a connection. It never changes the manager state itself.
type reconnectWorker struct {
	policy ReconnectPolicy
	clock  clock.Clock
	// attempt dispatches EventReconnect; false means the worker was terminated
	// while waiting for the dispatch lock.
	attempt func(w *reconnectWorker) bool

	retry    chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// guarded by the dispatch lock
	tries int
}

func newReconnectWorker(policy ReconnectPolicy, clk clock.Clock, attempt func(w *reconnectWorker) bool) *reconnectWorker {
	return &reconnectWorker{
		policy:  policy,
		clock:   clk,
		attempt: attempt,
		retry:   make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (w *reconnectWorker) start() {
	logger.WithFields(logrus.Fields{
		"interval":  w.policy.Interval.String(),
		"max_tries": w.policy.MaxTries,
	}).Info("Starting reconnect worker")
	go w.run()
}

func (w *reconnectWorker) run() {
	defer close(w.done)

	for {
		timer := w.clock.Timer(w.policy.Interval)
		select {
		case <-w.quit:
			timer.Stop()
			logger.Debug("Reconnect worker terminated while waiting")
			return
		case <-timer.C:
		}

		if !w.attempt(w) {
			logger.Debug("Reconnect worker terminated before attempt")
			return
		}

		select {
		case <-w.retry:
		case <-w.quit:
			logger.Debug("Reconnect worker finished")
			return
		}
	}
}

// exhausted reports whether the try budget is spent.
func (w *reconnectWorker) exhausted() bool {
	return w.policy.MaxTries > 0 && w.tries >= w.policy.MaxTries
}

// wake lets the worker start its next interval.
func (w *reconnectWorker) wake() {
	select {
	case w.retry <- struct{}{}:
	default:
	}
}

// stop signals termination. Safe to call repeatedly and from the worker itself.
func (w *reconnectWorker) stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
	})
}

// join waits for the worker goroutine to exit. Never call it from the worker.
func (w *reconnectWorker) join() {
	<-w.done
}
