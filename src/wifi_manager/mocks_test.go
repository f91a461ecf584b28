package wifi_manager

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDriver is a mock implementation of the Driver interface for testing
type MockDriver struct {
	mock.Mock
}

func (d *MockDriver) Init(handler DriverEventHandler) error {
	args := d.Called(handler)
	return args.Error(0)
}

func (d *MockDriver) Deinit() error {
	args := d.Called()
	return args.Error(0)
}

func (d *MockDriver) Scan() error {
	args := d.Called()
	return args.Error(0)
}

func (d *MockDriver) Connect(config DriverAPConfig) error {
	args := d.Called(config)
	return args.Error(0)
}

func (d *MockDriver) Disconnect() error {
	args := d.Called()
	return args.Error(0)
}

func (d *MockDriver) StartSTA() error {
	args := d.Called()
	return args.Error(0)
}

func (d *MockDriver) StartSoftAP(config DriverSoftAPConfig) error {
	args := d.Called(config)
	return args.Error(0)
}

func (d *MockDriver) StopSoftAP() error {
	args := d.Called()
	return args.Error(0)
}

func (d *MockDriver) GetInfo() (DriverInfo, error) {
	args := d.Called()
	return args.Get(0).(DriverInfo), args.Error(1)
}

func (d *MockDriver) SetAutoConnect(enabled bool) error {
	args := d.Called(enabled)
	return args.Error(0)
}

// MockDHCPClient is a mock implementation of the DHCPClient interface for testing
type MockDHCPClient struct {
	mock.Mock
}

func (c *MockDHCPClient) Start(ctx context.Context, iface string) (net.IP, error) {
	args := c.Called(ctx, iface)
	ip, _ := args.Get(0).(net.IP)
	return ip, args.Error(1)
}

func (c *MockDHCPClient) Stop(iface string) error {
	args := c.Called(iface)
	return args.Error(0)
}

// MockDHCPServer is a mock implementation of the DHCPServer interface for testing
type MockDHCPServer struct {
	mock.Mock
}

func (s *MockDHCPServer) Start(iface string, onJoin func(DHCPLease)) error {
	args := s.Called(iface, onJoin)
	return args.Error(0)
}

func (s *MockDHCPServer) Stop() error {
	args := s.Called()
	return args.Error(0)
}

// MockProfileStore is a mock implementation of the ProfileStore interface for testing
type MockProfileStore struct {
	mock.Mock
}

func (p *MockProfileStore) Init() error {
	args := p.Called()
	return args.Error(0)
}

func (p *MockProfileStore) Read() (APConfig, error) {
	args := p.Called()
	return args.Get(0).(APConfig), args.Error(1)
}

func (p *MockProfileStore) Write(config APConfig) error {
	args := p.Called(config)
	return args.Error(0)
}

func (p *MockProfileStore) Reset() error {
	args := p.Called()
	return args.Error(0)
}

type invalidEvent struct {
	state State
	kind  EventKind
}

type recordingReporter struct {
	mu     sync.Mutex
	events []invalidEvent
}

func (r *recordingReporter) ReportInvalidEvent(state State, kind EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, invalidEvent{state, kind})
}

func (r *recordingReporter) reported() []invalidEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]invalidEvent(nil), r.events...)
}

// callbackRecorder records every callback it receives. Callbacks may arrive on
// the reconnect worker goroutine, so access is locked.
type callbackRecorder struct {
	mu           sync.Mutex
	connected    []Result
	disconnected []DisconnectReason
	joined       int
	left         int
	scans        []scanResult
}

type scanResult struct {
	result Result
	aps    []APRecord
}

func (r *callbackRecorder) callbacks() *Callbacks {
	return &Callbacks{
		StaConnected: func(result Result) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connected = append(r.connected, result)
		},
		StaDisconnected: func(reason DisconnectReason) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.disconnected = append(r.disconnected, reason)
		},
		SoftAPStaJoined: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.joined++
		},
		SoftAPStaLeft: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.left++
		},
		ScanDone: func(result Result, aps []APRecord) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.scans = append(r.scans, scanResult{result, aps})
		},
	}
}

func (r *callbackRecorder) connectedResults() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.connected...)
}

func (r *callbackRecorder) disconnectReasons() []DisconnectReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DisconnectReason(nil), r.disconnected...)
}

func (r *callbackRecorder) joinedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined
}

func (r *callbackRecorder) leftCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.left
}

func (r *callbackRecorder) scanResults() []scanResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scanResult(nil), r.scans...)
}

const (
	testSTAInterface = "wlan0"
	testAPInterface  = "wlan1"
)

var testMAC = net.HardwareAddr{0x02, 0x00, 0x5e, 0x10, 0x20, 0x30}

type testHarness struct {
	manager    *Manager
	driver     *MockDriver
	dhcpClient *MockDHCPClient
	dhcpServer *MockDHCPServer
	store      *MockProfileStore
	reporter   *recordingReporter
	clock      *clock.Mock
	recorder   *callbackRecorder
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		driver:     new(MockDriver),
		dhcpClient: new(MockDHCPClient),
		dhcpServer: new(MockDHCPServer),
		store:      new(MockProfileStore),
		reporter:   new(recordingReporter),
		clock:      clock.NewMock(),
		recorder:   new(callbackRecorder),
	}
	m, err := New(Config{
		Driver:        h.driver,
		DHCPClient:    h.dhcpClient,
		DHCPServer:    h.dhcpServer,
		ProfileStore:  h.store,
		ErrorReporter: h.reporter,
		Clock:         h.clock,
		STAInterface:  testSTAInterface,
		APInterface:   testAPInterface,
		DHCPTimeout:   time.Second,
	})
	require.NoError(t, err)
	h.manager = m
	return h
}

// initialized returns a harness already in StaDisconnected.
func initialized(t *testing.T) *testHarness {
	t.Helper()
	h := newTestHarness(t)
	h.driver.On("Init", mock.Anything).Return(nil)
	h.driver.On("SetAutoConnect", false).Return(nil)
	h.driver.On("StartSTA").Return(nil)
	h.driver.On("GetInfo").Return(DriverInfo{MAC: testMAC}, nil)
	h.store.On("Init").Return(nil)

	require.NoError(t, h.manager.Init(h.recorder.callbacks()))
	require.Equal(t, StateStaDisconnected, h.manager.State())
	return h
}

var testAP = APConfig{
	SSID:       "A",
	Passphrase: "secret-passphrase",
	AuthType:   AuthWPA2PSK,
	CryptoType: CryptoAES,
}

var testSoftAP = SoftAPConfig{
	SSID:       "TollGate-Setup",
	Passphrase: "setup-passphrase",
	Channel:    6,
	AuthType:   AuthWPA2PSK,
}

// connected drives h from StaDisconnected to StaConnected with policy.
func (h *testHarness) connected(t *testing.T, policy *ReconnectPolicy) {
	t.Helper()
	h.driver.On("Connect", toDriverAPConfig(testAP)).Return(nil).Once()
	h.store.On("Write", testAP).Return(nil)
	h.dhcpClient.On("Start", mock.Anything, testSTAInterface).Return(net.ParseIP("192.168.1.10"), nil)

	require.NoError(t, h.manager.ConnectAP(testAP, policy))
	require.Equal(t, StateStaConnecting, h.manager.State())
	h.manager.OnStaConnected(DriverSuccess)
	require.Equal(t, StateStaConnected, h.manager.State())
}

// softAP drives h from StaDisconnected to SoftAp and returns the DHCP join callback.
func (h *testHarness) softAP(t *testing.T) func(DHCPLease) {
	t.Helper()
	var onJoin func(DHCPLease)
	h.driver.On("StartSoftAP", toDriverSoftAPConfig(testSoftAP)).Return(nil)
	h.dhcpServer.On("Start", testAPInterface, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		onJoin = args.Get(1).(func(DHCPLease))
	})

	cfg := testSoftAP
	require.NoError(t, h.manager.SetMode(context.Background(), ModeSoftAP, &cfg))
	require.Equal(t, StateSoftAp, h.manager.State())
	require.NotNil(t, onJoin)
	return onJoin
}
