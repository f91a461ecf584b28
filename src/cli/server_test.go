package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWifiManager struct {
	mock.Mock
}

func (m *MockWifiManager) GetInfo() (wifi_manager.Info, error) {
	args := m.Called()
	return args.Get(0).(wifi_manager.Info), args.Error(1)
}

func (m *MockWifiManager) State() wifi_manager.State {
	return m.Called().Get(0).(wifi_manager.State)
}

func (m *MockWifiManager) ConnectAP(config wifi_manager.APConfig, policy *wifi_manager.ReconnectPolicy) error {
	return m.Called(config, policy).Error(0)
}

func (m *MockWifiManager) DisconnectAP() error {
	return m.Called().Error(0)
}

func (m *MockWifiManager) ScanAP() error {
	return m.Called().Error(0)
}

func (m *MockWifiManager) SetMode(ctx context.Context, mode wifi_manager.Mode, softAP *wifi_manager.SoftAPConfig) error {
	return m.Called(mode, softAP).Error(0)
}

func (m *MockWifiManager) GetStats() (wifi_manager.Stats, error) {
	args := m.Called()
	return args.Get(0).(wifi_manager.Stats), args.Error(1)
}

func (m *MockWifiManager) GetConfig() (wifi_manager.APConfig, error) {
	args := m.Called()
	return args.Get(0).(wifi_manager.APConfig), args.Error(1)
}

func (m *MockWifiManager) SaveConfig(config wifi_manager.APConfig) error {
	return m.Called(config).Error(0)
}

func (m *MockWifiManager) RemoveConfig() error {
	return m.Called().Error(0)
}

func (m *MockWifiManager) RegisterCallbacks(cb *wifi_manager.Callbacks) error {
	return m.Called(cb).Error(0)
}

func (m *MockWifiManager) UnregisterCallbacks(cb *wifi_manager.Callbacks) error {
	return m.Called(cb).Error(0)
}

var defaultPolicy = wifi_manager.ReconnectPolicy{
	Kind:     wifi_manager.ReconnectInterval,
	Interval: 10 * time.Second,
}

func newTestServer(t *testing.T) (*CLIServer, *MockWifiManager) {
	t.Helper()
	mgr := &MockWifiManager{}
	t.Cleanup(func() { mgr.AssertExpectations(t) })
	srv := NewCLIServer(mgr, ServerOptions{
		SocketPath:  filepath.Join(t.TempDir(), "wifi.sock"),
		SoftAP:      wifi_manager.SoftAPConfig{SSID: "TollGate-Setup", Channel: 6, AuthType: wifi_manager.AuthOpen},
		Reconnect:   defaultPolicy,
		ScanTimeout: 200 * time.Millisecond,
	})
	return srv, mgr
}

func TestStatusCommand(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("GetInfo").Return(wifi_manager.Info{
		Status: wifi_manager.StatusAPConnected,
		Mode:   wifi_manager.ModeSTA,
		SSID:   "HomeNet",
		MAC:    net.HardwareAddr{0x02, 0, 0, 0xaa, 0xbb, 0xcc},
		IP:     net.IPv4(192, 168, 1, 10),
		RSSI:   -52,
	}, nil)
	mgr.On("State").Return(wifi_manager.StateStaConnected)

	resp := srv.processCommand(CLIMessage{Command: "status"})
	require.True(t, resp.Success, resp.Error)
	status := resp.Data.(WifiStatus)
	assert.Equal(t, "sta_connected", status.State)
	assert.Equal(t, "sta", status.Mode)
	assert.Equal(t, "ap_connected", status.Status)
	assert.Equal(t, "02:00:00:aa:bb:cc", status.MAC)
	assert.Equal(t, "192.168.1.10", status.IP)
	assert.Equal(t, -52, status.RSSI)
}

func TestStatusCommandBeforeInit(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("GetInfo").Return(wifi_manager.Info{}, &wifi_manager.Error{Code: wifi_manager.ResultDeinitialized, Op: "get_info"})

	resp := srv.processCommand(CLIMessage{Command: "status"})
	assert.False(t, resp.Success)
	assert.Equal(t, "deinitialized", resp.Code)
}

func TestConnectCommand(t *testing.T) {
	srv, mgr := newTestServer(t)
	want := wifi_manager.APConfig{
		SSID:       "HomeNet",
		Passphrase: "secret123",
		AuthType:   wifi_manager.AuthWPA2PSK,
		CryptoType: wifi_manager.CryptoAES,
	}
	mgr.On("ConnectAP", want, &defaultPolicy).Return(nil)

	resp := srv.processCommand(CLIMessage{
		Command: "connect",
		Args:    []string{"HomeNet"},
		Flags:   map[string]string{"passphrase": "secret123"},
	})
	assert.True(t, resp.Success, resp.Error)
	assert.Equal(t, "Connecting to HomeNet", resp.Message)
}

func TestConnectCommandFlags(t *testing.T) {
	srv, mgr := newTestServer(t)
	want := wifi_manager.APConfig{
		SSID:       "Legacy",
		Passphrase: "secret123",
		AuthType:   wifi_manager.AuthWPAPSK,
		CryptoType: wifi_manager.CryptoTKIP,
	}
	policy := &wifi_manager.ReconnectPolicy{Kind: wifi_manager.ReconnectInterval, Interval: 5 * time.Second, MaxTries: 3}
	mgr.On("ConnectAP", want, policy).Return(nil)

	resp := srv.processCommand(CLIMessage{
		Command: "connect",
		Args:    []string{"Legacy"},
		Flags: map[string]string{
			"passphrase":         "secret123",
			"auth":               "wpa_psk",
			"crypto":             "tkip",
			"reconnect-interval": "5s",
			"max-tries":          "3",
		},
	})
	assert.True(t, resp.Success, resp.Error)
}

func TestConnectCommandNoReconnect(t *testing.T) {
	srv, mgr := newTestServer(t)
	open := wifi_manager.APConfig{SSID: "Cafe", AuthType: wifi_manager.AuthOpen, CryptoType: wifi_manager.CryptoNone}
	mgr.On("ConnectAP", open, &wifi_manager.ReconnectPolicy{Kind: wifi_manager.ReconnectNone}).Return(nil)

	resp := srv.processCommand(CLIMessage{
		Command: "connect",
		Args:    []string{"Cafe"},
		Flags:   map[string]string{"no-reconnect": "true"},
	})
	assert.True(t, resp.Success, resp.Error)
}

func TestConnectCommandErrors(t *testing.T) {
	srv, mgr := newTestServer(t)

	resp := srv.processCommand(CLIMessage{Command: "connect"})
	assert.False(t, resp.Success)

	resp = srv.processCommand(CLIMessage{Command: "connect", Args: []string{"X"}, Flags: map[string]string{"auth": "bogus"}})
	assert.False(t, resp.Success)

	resp = srv.processCommand(CLIMessage{Command: "connect", Args: []string{"X"}, Flags: map[string]string{"reconnect-interval": "soon"}})
	assert.False(t, resp.Success)

	mgr.On("ConnectAP", mock.Anything, mock.Anything).
		Return(&wifi_manager.Error{Code: wifi_manager.ResultInvalidArgs, Op: "connect"}).Once()
	resp = srv.processCommand(CLIMessage{Command: "connect", Args: []string{"X"}, Flags: map[string]string{"auth": "wpa2_psk"}})
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid_args", resp.Code)
}

func TestConnectCommandAlreadyConnected(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("ConnectAP", mock.Anything, mock.Anything).
		Return(&wifi_manager.Error{Code: wifi_manager.ResultAlreadyConnected, Op: "connect"})

	resp := srv.processCommand(CLIMessage{Command: "connect", Args: []string{"HomeNet"}})
	assert.True(t, resp.Success)
	assert.Equal(t, "already_connected", resp.Code)
}

func TestDisconnectCommand(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("DisconnectAP").Return(nil)

	resp := srv.processCommand(CLIMessage{Command: "disconnect"})
	assert.True(t, resp.Success)
}

func TestScanCommand(t *testing.T) {
	srv, mgr := newTestServer(t)
	aps := []wifi_manager.APRecord{{SSID: "HomeNet", RSSI: -48}, {SSID: "Cafe", RSSI: -71}}

	var registered *wifi_manager.Callbacks
	mgr.On("RegisterCallbacks", mock.Anything).Run(func(args mock.Arguments) {
		registered = args.Get(0).(*wifi_manager.Callbacks)
	}).Return(nil)
	mgr.On("ScanAP").Run(func(mock.Arguments) {
		go registered.ScanDone(wifi_manager.ResultSuccess, aps)
	}).Return(nil)
	mgr.On("UnregisterCallbacks", mock.Anything).Return(nil)

	resp := srv.processCommand(CLIMessage{Command: "scan"})
	require.True(t, resp.Success, resp.Error)
	result := resp.Data.(ScanResult)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, aps, result.APs)
	mgr.AssertCalled(t, "UnregisterCallbacks", registered)
}

func TestScanCommandFailure(t *testing.T) {
	srv, mgr := newTestServer(t)
	var registered *wifi_manager.Callbacks
	mgr.On("RegisterCallbacks", mock.Anything).Run(func(args mock.Arguments) {
		registered = args.Get(0).(*wifi_manager.Callbacks)
	}).Return(nil)
	mgr.On("ScanAP").Run(func(mock.Arguments) {
		go registered.ScanDone(wifi_manager.ResultFail, nil)
	}).Return(nil)
	mgr.On("UnregisterCallbacks", mock.Anything).Return(nil)

	resp := srv.processCommand(CLIMessage{Command: "scan"})
	assert.False(t, resp.Success)
	assert.Equal(t, "fail", resp.Code)
}

func TestScanCommandTimeout(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("RegisterCallbacks", mock.Anything).Return(nil)
	mgr.On("ScanAP").Return(nil)
	mgr.On("UnregisterCallbacks", mock.Anything).Return(nil)

	resp := srv.processCommand(CLIMessage{Command: "scan"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "timed out")
}

func TestScanCommandNoFreeSlot(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("RegisterCallbacks", mock.Anything).Return(&wifi_manager.Error{Code: wifi_manager.ResultFail, Op: "register_cb"})

	resp := srv.processCommand(CLIMessage{Command: "scan"})
	assert.False(t, resp.Success)
	mgr.AssertNotCalled(t, "ScanAP")
}

func TestScanCommandRejectedUnregisters(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("RegisterCallbacks", mock.Anything).Return(nil)
	mgr.On("ScanAP").Return(&wifi_manager.Error{Code: wifi_manager.ResultFail, Op: "scan"})
	mgr.On("UnregisterCallbacks", mock.Anything).Return(nil)

	resp := srv.processCommand(CLIMessage{Command: "scan"})
	assert.False(t, resp.Success)
	mgr.AssertNumberOfCalls(t, "UnregisterCallbacks", 1)
}

func TestModeCommand(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("SetMode", wifi_manager.ModeSTA, (*wifi_manager.SoftAPConfig)(nil)).Return(nil)
	mgr.On("SetMode", wifi_manager.ModeSoftAP, &wifi_manager.SoftAPConfig{
		SSID:       "Guest",
		Passphrase: "password1",
		Channel:    11,
		AuthType:   wifi_manager.AuthWPA2PSK,
	}).Return(nil)

	resp := srv.processCommand(CLIMessage{Command: "mode", Args: []string{"sta"}})
	assert.True(t, resp.Success, resp.Error)

	resp = srv.processCommand(CLIMessage{
		Command: "mode",
		Args:    []string{"softap"},
		Flags:   map[string]string{"ssid": "Guest", "passphrase": "password1", "channel": "11"},
	})
	assert.True(t, resp.Success, resp.Error)
	assert.Equal(t, "SoftAP Guest running on channel 11", resp.Message)
}

func TestModeCommandDefaults(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("SetMode", wifi_manager.ModeSoftAP, &wifi_manager.SoftAPConfig{
		SSID:     "TollGate-Setup",
		Channel:  6,
		AuthType: wifi_manager.AuthOpen,
	}).Return(nil)

	resp := srv.processCommand(CLIMessage{Command: "mode", Args: []string{"softap"}})
	assert.True(t, resp.Success, resp.Error)
}

func TestModeCommandErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.False(t, srv.processCommand(CLIMessage{Command: "mode"}).Success)
	assert.False(t, srv.processCommand(CLIMessage{Command: "mode", Args: []string{"mesh"}}).Success)
	assert.False(t, srv.processCommand(CLIMessage{
		Command: "mode",
		Args:    []string{"softap"},
		Flags:   map[string]string{"channel": "six"},
	}).Success)
}

func TestStatsCommand(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("GetStats").Return(wifi_manager.Stats{Connect: 2, Disconnect: 1}, nil)

	resp := srv.processCommand(CLIMessage{Command: "stats"})
	require.True(t, resp.Success)
	assert.Equal(t, wifi_manager.Stats{Connect: 2, Disconnect: 1}, resp.Data)
}

func TestProfileCommands(t *testing.T) {
	srv, mgr := newTestServer(t)
	profile := wifi_manager.APConfig{
		SSID:       "HomeNet",
		Passphrase: "secret123",
		AuthType:   wifi_manager.AuthWPA2PSK,
		CryptoType: wifi_manager.CryptoAES,
	}
	mgr.On("GetConfig").Return(profile, nil)
	mgr.On("SaveConfig", profile).Return(nil)
	mgr.On("RemoveConfig").Return(nil)

	resp := srv.processCommand(CLIMessage{Command: "profile", Args: []string{"show"}})
	require.True(t, resp.Success)
	assert.Equal(t, ProfileInfo{SSID: "HomeNet", Passphrase: "********", AuthType: "wpa2_psk", CryptoType: "aes"}, resp.Data)

	resp = srv.processCommand(CLIMessage{
		Command: "profile",
		Args:    []string{"save", "HomeNet"},
		Flags:   map[string]string{"passphrase": "secret123"},
	})
	assert.True(t, resp.Success, resp.Error)

	resp = srv.processCommand(CLIMessage{Command: "profile", Args: []string{"remove"}})
	assert.True(t, resp.Success)

	assert.False(t, srv.processCommand(CLIMessage{Command: "profile"}).Success)
	assert.False(t, srv.processCommand(CLIMessage{Command: "profile", Args: []string{"save"}}).Success)
	assert.False(t, srv.processCommand(CLIMessage{Command: "profile", Args: []string{"export"}}).Success)
}

func TestUnknownCommand(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := srv.processCommand(CLIMessage{Command: "wallet"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "Unknown command")
}

func sendOverSocket(t *testing.T, path string, payload []byte) CLIResponse {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(append(payload, '\n'))
	require.NoError(t, err)

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

func TestServerOverSocket(t *testing.T) {
	srv, mgr := newTestServer(t)
	mgr.On("DisconnectAP").Return(nil)

	require.NoError(t, srv.Start())
	info, err := os.Stat(srv.opts.SocketPath)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, info.Mode()&os.ModeSocket)

	payload, err := json.Marshal(CLIMessage{Command: "disconnect", Timestamp: time.Now()})
	require.NoError(t, err)
	resp := sendOverSocket(t, srv.opts.SocketPath, payload)
	assert.True(t, resp.Success)
	assert.Equal(t, "Disconnecting", resp.Message)

	resp = sendOverSocket(t, srv.opts.SocketPath, []byte("{broken"))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "Invalid JSON")

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop(), "stop is idempotent")
	_, err = os.Stat(srv.opts.SocketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestServerStartWithoutManager(t *testing.T) {
	srv := NewCLIServer(nil, ServerOptions{SocketPath: filepath.Join(t.TempDir(), "wifi.sock")})
	assert.Error(t, srv.Start())
}

func TestVersionCommand(t *testing.T) {
	release := filepath.Join(t.TempDir(), "openwrt_release")
	require.NoError(t, os.WriteFile(release, []byte("DISTRIB_ID='OpenWrt'\nDISTRIB_DESCRIPTION='OpenWrt 23.05.3 r23809'\n"), 0644))
	prev := openWrtReleaseFile
	openWrtReleaseFile = release
	t.Cleanup(func() { openWrtReleaseFile = prev })

	mgr := &MockWifiManager{}
	srv := NewCLIServer(mgr, ServerOptions{
		SocketPath:   filepath.Join(t.TempDir(), "wifi.sock"),
		Radio:        "radio0",
		STAInterface: "phy0-sta0",
		APInterface:  "phy0-ap0",
	})

	resp := srv.processCommand(CLIMessage{Command: "version"})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, GetVersionInfo(), resp.Message)
	info := resp.Data.(BuildInfo)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, "OpenWrt 23.05.3 r23809", info.OpenWrt)
	assert.Equal(t, "radio0", info.Radio)
	assert.Equal(t, "phy0-sta0", info.STAInterface)
	assert.Equal(t, "phy0-ap0", info.APInterface)
	assert.NotEmpty(t, info.GoVersion)
	mgr.AssertExpectations(t)
}

func TestOpenWrtReleaseMissing(t *testing.T) {
	assert.Equal(t, "unknown", openWrtRelease(filepath.Join(t.TempDir(), "missing")))

	release := filepath.Join(t.TempDir(), "openwrt_release")
	require.NoError(t, os.WriteFile(release, []byte("DISTRIB_ID='OpenWrt'\n"), 0644))
	assert.Equal(t, "unknown", openWrtRelease(release))
}
