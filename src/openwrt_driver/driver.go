package openwrt_driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

type linkMonitor interface {
	Stop()
}

var errNotInitialized = errors.New("driver not initialized")

// Driver implements wifi_manager.Driver on OpenWRT. Handler events are delivered
// in order from one delivery goroutine that Deinit never waits for, so a handler
// blocked on its caller's lock cannot stall a Deinit issued under that lock.
type Driver struct {
	cfg    Config
	runner CommandRunner
	clock  clock.Clock

	// overridable for tests
	macOf          func(iface string) (net.HardwareAddr, error)
	ipv4Of         func(iface string) (net.IP, error)
	newLinkMonitor func(iface string, onDown func()) (linkMonitor, error)

	mu       sync.Mutex
	running  *session
	cancel   context.CancelFunc
	monitor  linkMonitor
	stations *stationPoller

	wg         sync.WaitGroup
	scanning   atomic.Bool
	associated atomic.Bool

	// disconnectPending is set by Disconnect until a StaDisconnected answers it.
	disconnectPending atomic.Bool
}

var _ wifi_manager.Driver = (*Driver)(nil)

// NewDriver creates a driver. A nil runner uses os/exec; a nil clock uses the wall clock.
func NewDriver(cfg Config, runner CommandRunner, clk clock.Clock) *Driver {
	if runner == nil {
		runner = NewExecRunner()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Driver{
		cfg:            cfg.withDefaults(),
		runner:         runner,
		clock:          clk,
		macOf:          interfaceMAC,
		ipv4Of:         interfaceIPv4,
		newLinkMonitor: startLinkMonitor,
	}
}

type driverEvent func(h wifi_manager.DriverEventHandler)

// session is one Init..Deinit lifetime.
type session struct {
	ctx    context.Context
	events chan driverEvent
}

// deliver queues ev for the handler unless the session has ended.
func (s *session) deliver(ev driverEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) deliverLoop(handler wifi_manager.DriverEventHandler) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			if s.ctx.Err() != nil {
				return
			}
			ev(handler)
		}
	}
}

func (d *Driver) Init(handler wifi_manager.DriverEventHandler) error {
	if handler == nil {
		return errors.New("nil event handler")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running != nil {
		return errors.New("driver already initialized")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.running = &session{ctx: ctx, events: make(chan driverEvent, 16)}
	d.cancel = cancel
	go d.running.deliverLoop(handler)

	monitor, err := d.newLinkMonitor(d.cfg.STAInterface, d.reportDisconnected)
	if err != nil {
		logger.WithError(err).Warn("Link monitor unavailable, unexpected station drops will not be reported")
	} else {
		d.monitor = monitor
	}
	logger.WithFields(logrus.Fields{
		"sta_interface": d.cfg.STAInterface,
		"ap_interface":  d.cfg.APInterface,
	}).Info("OpenWRT driver initialized")
	return nil
}

func (d *Driver) Deinit() error {
	d.mu.Lock()
	if d.running == nil {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	monitor, stations := d.monitor, d.stations
	d.running, d.monitor, d.stations = nil, nil, nil
	d.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if stations != nil {
		stations.stop()
	}
	d.wg.Wait()
	d.associated.Store(false)
	d.disconnectPending.Store(false)
	logger.Info("OpenWRT driver deinitialized")
	return nil
}

func (d *Driver) session() (*session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running == nil {
		return nil, errNotInitialized
	}
	return d.running, nil
}

func (d *Driver) goBackground(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Scan starts an asynchronous scan on the station interface.
func (d *Driver) Scan() error {
	s, err := d.session()
	if err != nil {
		return err
	}
	if !d.scanning.CompareAndSwap(false, true) {
		return errors.New("scan already in progress")
	}

	d.goBackground(func() {
		defer d.scanning.Store(false)
		records, err := d.scan(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.WithError(err).WithField("interface", d.cfg.STAInterface).Warn("Scan failed")
			s.deliver(func(h wifi_manager.DriverEventHandler) { h.OnScanDone(wifi_manager.DriverFail, nil) })
			return
		}
		logger.WithField("network_count", len(records)).Info("Finished scanning")
		s.deliver(func(h wifi_manager.DriverEventHandler) { h.OnScanDone(wifi_manager.DriverSuccess, records) })
	})
	return nil
}

func (d *Driver) scan(ctx context.Context, extra ...string) ([]wifi_manager.DriverScanRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ScanTimeout)
	defer cancel()
	args := append([]string{"dev", d.cfg.STAInterface, "scan"}, extra...)
	out, err := d.runner.Run(ctx, "iw", args...)
	if err != nil {
		return nil, err
	}
	return parseScanOutput([]byte(out))
}

// link reads the association of the station interface.
func (d *Driver) link(ctx context.Context) (linkStatus, error) {
	out, err := d.runner.Run(ctx, "iw", "dev", d.cfg.STAInterface, "link")
	if err != nil {
		return linkStatus{}, err
	}
	return parseLinkOutput(out), nil
}

// Connect writes the station section and verifies the association in the background.
func (d *Driver) Connect(ap wifi_manager.DriverAPConfig) error {
	s, err := d.session()
	if err != nil {
		return err
	}
	ctx := s.ctx

	if status, err := d.link(ctx); err == nil && status.Connected && status.SSID == ap.SSID {
		d.associated.Store(true)
		return fmt.Errorf("ssid %q: %w", ap.SSID, wifi_manager.ErrDriverAlreadyConnected)
	}

	if d.cfg.ProbeBeforeConnect {
		records, err := d.scan(ctx, "ssid", ap.SSID)
		if err != nil {
			logger.WithError(err).Warn("Probe scan failed, connecting anyway")
		} else if !containsSSID(records, ap.SSID) {
			return fmt.Errorf("ssid %q: %w", ap.SSID, wifi_manager.ErrDriverAPNotFound)
		}
	}

	batch := newUCIBatch(ctx, d.runner, d.cfg.STASection).
		set("mode", "sta").
		set("network", d.cfg.Network).
		set("ssid", ap.SSID).
		set("encryption", uciEncryption(ap.AuthType, ap.CryptoType))
	if ap.AuthType == wifi_manager.AuthOpen {
		batch.delete("key")
	} else {
		batch.set("key", ap.Passphrase)
	}
	batch.set("disabled", "0")
	if batch.err != nil {
		return batch.err
	}
	if err := commitWireless(ctx, d.runner, true); err != nil {
		return err
	}
	logUCISection(d.cfg.STASection, logrus.Fields{"ssid": ap.SSID, "auth": ap.AuthType.String()})

	d.goBackground(func() {
		d.verifyConnection(s, ap.SSID)
	})
	return nil
}

func containsSSID(records []wifi_manager.DriverScanRecord, ssid string) bool {
	for _, r := range records {
		if string(r.SSID) == ssid {
			return true
		}
	}
	return false
}

// verifyConnection polls the link until ssid is associated or the connect timeout passes.
func (d *Driver) verifyConnection(s *session, ssid string) {
	ctx := s.ctx
	logger.WithField("ssid", ssid).Info("Verifying connection")
	deadline := d.clock.Timer(d.cfg.ConnectTimeout)
	defer deadline.Stop()
	ticker := d.clock.Ticker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			logger.WithFields(logrus.Fields{
				"ssid":    ssid,
				"timeout": d.cfg.ConnectTimeout.String(),
			}).Warn("Failed to verify connection")
			s.deliver(func(h wifi_manager.DriverEventHandler) { h.OnStaConnected(wifi_manager.DriverFail) })
			return
		case <-ticker.C:
			status, err := d.link(ctx)
			if err != nil {
				logger.WithError(err).Debug("Verification check failed, interface likely not ready yet")
				continue
			}
			if status.Connected && status.SSID == ssid {
				logger.WithFields(logrus.Fields{"ssid": ssid, "bssid": status.BSSID}).Info("Successfully connected")
				d.associated.Store(true)
				s.deliver(func(h wifi_manager.DriverEventHandler) { h.OnStaConnected(wifi_manager.DriverSuccess) })
				return
			}
		}
	}
}

// reportDisconnected delivers StaDisconnected for a link drop seen by the
// monitor, once per association. It also answers a pending Disconnect.
func (d *Driver) reportDisconnected() {
	if !d.associated.CompareAndSwap(true, false) {
		return
	}
	d.disconnectPending.Store(false)
	d.deliverDisconnected()
}

func (d *Driver) deliverDisconnected() {
	s, err := d.session()
	if err != nil {
		return
	}
	logger.Info("Station disconnected")
	s.deliver(func(h wifi_manager.DriverEventHandler) { h.OnStaDisconnected() })
}

// Disconnect disables the station section. StaDisconnected follows once the link is down.
func (d *Driver) Disconnect() error {
	s, err := d.session()
	if err != nil {
		return err
	}
	ctx := s.ctx
	d.disconnectPending.Store(true)
	if err := newUCIBatch(ctx, d.runner, d.cfg.STASection).set("disabled", "1").err; err != nil {
		d.disconnectPending.Store(false)
		return err
	}
	if err := commitWireless(ctx, d.runner, true); err != nil {
		d.disconnectPending.Store(false)
		return err
	}

	// Answered even when the drop was already reported, e.g. while a scan
	// kept the manager from accepting it.
	d.goBackground(func() {
		d.waitLinkDown(ctx)
		d.associated.Store(false)
		if d.disconnectPending.CompareAndSwap(true, false) {
			d.deliverDisconnected()
		}
	})
	return nil
}

func (d *Driver) waitLinkDown(ctx context.Context) {
	deadline := d.clock.Timer(d.cfg.ConnectTimeout)
	defer deadline.Stop()
	ticker := d.clock.Ticker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			logger.Warn("Station link still reported up after disconnect")
			return
		case <-ticker.C:
			status, err := d.link(ctx)
			if err != nil || !status.Connected {
				return
			}
		}
	}
}

// StartSTA puts the station section in managed mode, left disabled until Connect.
func (d *Driver) StartSTA() error {
	s, err := d.session()
	if err != nil {
		return err
	}
	ctx := s.ctx
	err = newUCIBatch(ctx, d.runner, d.cfg.STASection).
		set("mode", "sta").
		set("network", d.cfg.Network).
		set("disabled", "1").err
	if err != nil {
		return err
	}
	return commitWireless(ctx, d.runner, true)
}

func (d *Driver) StartSoftAP(cfg wifi_manager.DriverSoftAPConfig) error {
	s, err := d.session()
	if err != nil {
		return err
	}
	ctx := s.ctx

	if _, err := uci(ctx, d.runner, "set", fmt.Sprintf("wireless.%s.channel=%d", d.cfg.Radio, cfg.Channel)); err != nil {
		return fmt.Errorf("set channel: %w", err)
	}
	batch := newUCIBatch(ctx, d.runner, d.cfg.APSection).
		set("mode", "ap").
		set("ssid", cfg.SSID).
		set("encryption", uciEncryption(cfg.AuthType, wifi_manager.CryptoAES))
	if cfg.AuthType == wifi_manager.AuthOpen {
		batch.delete("key")
	} else {
		batch.set("key", cfg.Passphrase)
	}
	batch.set("disabled", "0")
	if batch.err != nil {
		return batch.err
	}
	if err := newUCIBatch(ctx, d.runner, d.cfg.STASection).set("disabled", "1").err; err != nil {
		return err
	}
	if err := commitWireless(ctx, d.runner, true); err != nil {
		return err
	}
	logUCISection(d.cfg.APSection, logrus.Fields{"ssid": cfg.SSID, "channel": strconv.Itoa(cfg.Channel)})

	poller := newStationPoller(d.runner, d.clock, d.cfg.APInterface,
		func(string) { s.deliver(func(h wifi_manager.DriverEventHandler) { h.OnSoftAPStaJoined() }) },
		func(string) { s.deliver(func(h wifi_manager.DriverEventHandler) { h.OnSoftAPStaLeft() }) })
	d.mu.Lock()
	old := d.stations
	d.stations = poller
	d.mu.Unlock()
	if old != nil {
		old.stop()
	}
	poller.start(ctx, d.cfg.PollInterval)
	return nil
}

func (d *Driver) StopSoftAP() error {
	s, err := d.session()
	if err != nil {
		return err
	}
	ctx := s.ctx
	d.mu.Lock()
	poller := d.stations
	d.stations = nil
	d.mu.Unlock()
	if poller != nil {
		poller.stop()
	}

	if err := newUCIBatch(ctx, d.runner, d.cfg.APSection).set("disabled", "1").err; err != nil {
		return err
	}
	return commitWireless(ctx, d.runner, true)
}

func (d *Driver) GetInfo() (wifi_manager.DriverInfo, error) {
	s, err := d.session()
	if err != nil {
		return wifi_manager.DriverInfo{}, err
	}
	ctx := s.ctx

	var info wifi_manager.DriverInfo
	mac, err := d.macOf(d.cfg.STAInterface)
	if err != nil {
		return info, err
	}
	info.MAC = mac

	if status, err := d.link(ctx); err == nil && status.Connected {
		info.SSID = status.SSID
		info.RSSI = status.Signal
	}
	if ip, err := d.ipv4Of(d.cfg.STAInterface); err == nil {
		info.IP = ip
	}
	return info, nil
}

// SetAutoConnect controls whether the station section comes up on its own at boot.
func (d *Driver) SetAutoConnect(enabled bool) error {
	s, err := d.session()
	if err != nil {
		return err
	}
	ctx := s.ctx
	disabled := "1"
	if enabled {
		disabled = "0"
	}
	if err := newUCIBatch(ctx, d.runner, d.cfg.STASection).set("disabled", disabled).err; err != nil {
		return err
	}
	return commitWireless(ctx, d.runner, false)
}
