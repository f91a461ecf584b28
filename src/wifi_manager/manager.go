package wifi_manager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"
)

const defaultDHCPTimeout = 30 * time.Second

// Config carries the collaborators a Manager is built from.
type Config struct {
	Driver       Driver
	DHCPClient   DHCPClient
	DHCPServer   DHCPServer
	ProfileStore ProfileStore
	// ErrorReporter is optional.
	ErrorReporter ErrorReporter
	// Clock defaults to the wall clock.
	Clock clock.Clock

	STAInterface string
	APInterface  string
	DHCPTimeout  time.Duration
}

// Manager is the connection-lifecycle state machine of one radio.
type Manager struct {
	driver     Driver
	dhcpClient DHCPClient
	dhcpServer DHCPServer
	store      ProfileStore
	reporter   ErrorReporter
	clock      clock.Clock

	staInterface string
	apInterface  string
	dhcpTimeout  time.Duration

	lock dispatchLock

	// Everything below is guarded by lock.
	state     State
	prevState State

	connected     APConfig
	policy        ReconnectPolicy
	connectedSSID string
	staActive     bool
	staIP         net.IP
	mac           net.HardwareAddr

	softAPConfig  SoftAPConfig
	pendingSoftAP *softAPRequest
	numSta        int

	suppressDisconnect bool
	worker             *reconnectWorker
	callbacks          callbackDispatcher
}

var _ DriverEventHandler = (*Manager)(nil)

// New creates a Manager in the Uninitialized state.
func New(cfg Config) (*Manager, error) {
	switch {
	case cfg.Driver == nil:
		return nil, newError(ResultInvalidArgs, "new", errors.New("driver is required"))
	case cfg.DHCPClient == nil:
		return nil, newError(ResultInvalidArgs, "new", errors.New("dhcp client is required"))
	case cfg.DHCPServer == nil:
		return nil, newError(ResultInvalidArgs, "new", errors.New("dhcp server is required"))
	case cfg.ProfileStore == nil:
		return nil, newError(ResultInvalidArgs, "new", errors.New("profile store is required"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.DHCPTimeout <= 0 {
		cfg.DHCPTimeout = defaultDHCPTimeout
	}

	return &Manager{
		driver:       cfg.Driver,
		dhcpClient:   cfg.DHCPClient,
		dhcpServer:   cfg.DHCPServer,
		store:        cfg.ProfileStore,
		reporter:     cfg.ErrorReporter,
		clock:        cfg.Clock,
		staInterface: cfg.STAInterface,
		apInterface:  cfg.APInterface,
		dhcpTimeout:  cfg.DHCPTimeout,
		lock:         newDispatchLock(),
		state:        StateUninitialized,
	}, nil
}

// withLock runs fn under the dispatch lock, refusing with Deinitialized before Init.
func (m *Manager) withLock(op string, fn func() error) error {
	m.lock.lock()
	defer m.lock.unlock()
	if m.state == StateUninitialized {
		return newError(ResultDeinitialized, op, nil)
	}
	return fn()
}

// dispatchInitialized dispatches ev unless the manager is Uninitialized.
func (m *Manager) dispatchInitialized(op string, ev Event) error {
	return m.withLock(op, func() error {
		return m.handle(ev)
	})
}

// Init brings the driver up in STA mode. cb occupies the permanent listener slot.
func (m *Manager) Init(cb *Callbacks) error {
	if cb == nil {
		return newError(ResultInvalidArgs, "init", errors.New("nil callbacks"))
	}
	return m.dispatch(Event{Kind: EventInit, Payload: cb})
}

// Deinit tears the manager down. Valid from StaDisconnected and SoftAp.
func (m *Manager) Deinit() error {
	return m.dispatchInitialized("deinit", Event{Kind: EventDeinit})
}

// SetMode switches between STA and SoftAP. Switching to SoftAP while connected
// blocks until the station link is down and the SoftAP is running, or ctx is done.
func (m *Manager) SetMode(ctx context.Context, mode Mode, softAP *SoftAPConfig) error {
	switch mode {
	case ModeSTA:
		return m.withLock("set_mode", func() error {
			if modeOf(m.stableState()) == ModeSTA {
				return nil
			}
			return m.handle(Event{Kind: EventSetSta})
		})
	case ModeSoftAP:
		if softAP == nil {
			return newError(ResultInvalidArgs, "set_mode", errors.New("softap config required"))
		}
		if err := softAP.Validate(); err != nil {
			return newError(ResultInvalidArgs, "set_mode", err)
		}
		req := newSoftAPRequest(*softAP)
		if err := m.dispatchInitialized("set_mode", Event{Kind: EventSetSoftAp, Payload: req}); err != nil {
			return err
		}
		if !req.deferred {
			return nil
		}
		logger.WithField("ssid", softAP.SSID).Debug("Waiting for station teardown before softap start")
		select {
		case err := <-req.ready:
			return err
		case <-ctx.Done():
			return newError(ResultFail, "set_mode", ctx.Err())
		}
	default:
		return newError(ResultInvalidArgs, "set_mode", fmt.Errorf("unsupported mode %s", mode))
	}
}

// ConnectAP joins config. A nil policy means no reconnect. The connection result
// is delivered through StaConnected; an error with ResultAlreadyConnected is informational.
func (m *Manager) ConnectAP(config APConfig, policy *ReconnectPolicy) error {
	if err := config.Validate(); err != nil {
		return newError(ResultInvalidArgs, "connect", err)
	}
	req := &ConnectRequest{Config: config}
	if policy != nil {
		if err := policy.Validate(); err != nil {
			return newError(ResultInvalidArgs, "connect", err)
		}
		req.Policy = *policy
	}
	return m.dispatchInitialized("connect", Event{Kind: EventConnect, Payload: req})
}

func (m *Manager) DisconnectAP() error {
	return m.dispatchInitialized("disconnect", Event{Kind: EventDisconnect})
}

// ScanAP starts a scan. Results arrive through the ScanDone callback.
func (m *Manager) ScanAP() error {
	return m.dispatchInitialized("scan", Event{Kind: EventScan})
}

// GetInfo reports the interface status. While scanning it describes the state the scan was started from.
func (m *Manager) GetInfo() (Info, error) {
	var info Info
	err := m.withLock("get_info", func() error {
		state := m.stableState()
		info.Mode = modeOf(state)
		info.MAC = m.mac

		switch state {
		case StateSoftAp:
			info.SSID = m.softAPConfig.SSID
			info.NumSta = m.numSta
			info.Status = StatusClientDisconnected
			if m.numSta > 0 {
				info.Status = StatusClientConnected
			}
		case StateStaConnected:
			info.Status = StatusAPConnected
			info.SSID = m.connectedSSID
			info.IP = m.staIP
			drv, err := m.driver.GetInfo()
			if err != nil {
				logger.WithError(err).Warn("Driver info unavailable")
				return nil
			}
			info.RSSI = drv.RSSI
			if info.IP == nil {
				info.IP = drv.IP
			}
		default:
			info.Status = StatusAPDisconnected
		}
		return nil
	})
	return info, err
}

// SaveConfig persists config as the saved profile.
func (m *Manager) SaveConfig(config APConfig) error {
	if err := config.Validate(); err != nil {
		return newError(ResultInvalidArgs, "save_config", err)
	}
	return m.withLock("save_config", func() error {
		if err := m.store.Write(config); err != nil {
			return newError(ResultFail, "save_config", err)
		}
		return nil
	})
}

// GetConfig returns the saved profile.
func (m *Manager) GetConfig() (APConfig, error) {
	var config APConfig
	err := m.withLock("get_config", func() error {
		c, err := m.store.Read()
		if err != nil {
			return newError(ResultFail, "get_config", err)
		}
		config = c
		return nil
	})
	return config, err
}

func (m *Manager) RemoveConfig() error {
	return m.withLock("remove_config", func() error {
		if err := m.store.Reset(); err != nil {
			return newError(ResultFail, "remove_config", err)
		}
		return nil
	})
}

// GetConnectedConfig returns the AP and policy of the current connection.
func (m *Manager) GetConnectedConfig() (APConfig, ReconnectPolicy, error) {
	var (
		config APConfig
		policy ReconnectPolicy
	)
	err := m.withLock("get_connected_config", func() error {
		if m.stableState() != StateStaConnected {
			return newError(ResultFail, "get_connected_config", errors.New("not connected"))
		}
		config, policy = m.connected, m.policy
		return nil
	})
	return config, policy, err
}

// GetStats returns the callback counters. They are never reset.
func (m *Manager) GetStats() (Stats, error) {
	var stats Stats
	err := m.withLock("get_stats", func() error {
		stats = m.callbacks.stats.snapshot()
		return nil
	})
	return stats, err
}

// RegisterCallbacks adds a listener set to a free slot.
func (m *Manager) RegisterCallbacks(cb *Callbacks) error {
	if cb == nil {
		return newError(ResultInvalidArgs, "register_cb", errors.New("nil callbacks"))
	}
	return m.withLock("register_cb", func() error {
		return m.callbacks.register(cb)
	})
}

// UnregisterCallbacks removes a set added by RegisterCallbacks.
func (m *Manager) UnregisterCallbacks(cb *Callbacks) error {
	if cb == nil {
		return newError(ResultInvalidArgs, "unregister_cb", errors.New("nil callbacks"))
	}
	return m.withLock("unregister_cb", func() error {
		return m.callbacks.unregister(cb)
	})
}

// State returns the current state.
func (m *Manager) State() State {
	m.lock.lock()
	defer m.lock.unlock()
	return m.state
}

// stableState is the current state, or the state a running scan returns to.
func (m *Manager) stableState() State {
	if m.state == StateScanning {
		return m.prevState
	}
	return m.state
}

func modeOf(s State) Mode {
	switch s {
	case StateUninitialized:
		return ModeNone
	case StateSoftAp:
		return ModeSoftAP
	default:
		return ModeSTA
	}
}

// OnStaConnected implements DriverEventHandler.
func (m *Manager) OnStaConnected(result DriverResult) {
	if result == DriverSuccess {
		m.post(Event{Kind: EventStaConnected})
		return
	}
	m.post(Event{Kind: EventStaConnectFailed})
}

// OnStaDisconnected implements DriverEventHandler.
func (m *Manager) OnStaDisconnected() {
	m.post(Event{Kind: EventStaDisconnected})
}

// OnSoftAPStaJoined implements DriverEventHandler. Joins are counted when the
// DHCP server hands out a lease, so the association itself is only logged.
func (m *Manager) OnSoftAPStaJoined() {
	logger.Debug("Station associated with softap")
}

// OnSoftAPStaLeft implements DriverEventHandler.
func (m *Manager) OnSoftAPStaLeft() {
	m.post(Event{Kind: EventSoftAPStaLeft})
}

// OnScanDone implements DriverEventHandler.
func (m *Manager) OnScanDone(result DriverResult, records []DriverScanRecord) {
	m.post(Event{Kind: EventScanDone, Payload: scanDonePayload{result: result, records: records}})
}
