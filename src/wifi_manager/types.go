// Package wifi_manager defines types for the Wi-Fi connection-lifecycle state machine.
package wifi_manager

import (
	"fmt"
	"net"
	"time"
)

// State is the connection-lifecycle state of the Manager.
type State int

const (
	StateUninitialized State = iota
	StateStaDisconnected
	StateStaDisconnecting
	StateStaConnecting
	StateStaConnected
	StateStaReconnect
	StateStaReconnecting
	StateStaConnectCancel
	StateSoftApDisconnectingSta
	StateSoftAp
	StateScanning
)

var stateNames = [...]string{
	StateUninitialized:          "uninitialized",
	StateStaDisconnected:        "sta_disconnected",
	StateStaDisconnecting:       "sta_disconnecting",
	StateStaConnecting:          "sta_connecting",
	StateStaConnected:           "sta_connected",
	StateStaReconnect:           "sta_reconnect",
	StateStaReconnecting:        "sta_reconnecting",
	StateStaConnectCancel:       "sta_connect_cancel",
	StateSoftApDisconnectingSta: "softap_disconnecting_sta",
	StateSoftAp:                 "softap",
	StateScanning:               "scanning",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Mode is the operating mode of the interface.
type Mode int

const (
	ModeNone Mode = iota
	ModeSTA
	ModeSoftAP
)

func (m Mode) String() string {
	switch m {
	case ModeSTA:
		return "sta"
	case ModeSoftAP:
		return "softap"
	default:
		return "none"
	}
}

// ConnectionStatus is the connection status reported by GetInfo.
type ConnectionStatus int

const (
	StatusAPDisconnected ConnectionStatus = iota
	StatusAPConnected
	StatusClientConnected
	StatusClientDisconnected
)

func (c ConnectionStatus) String() string {
	switch c {
	case StatusAPConnected:
		return "ap_connected"
	case StatusClientConnected:
		return "client_connected"
	case StatusClientDisconnected:
		return "client_disconnected"
	default:
		return "ap_disconnected"
	}
}

// AuthType is the authentication scheme of an access point.
type AuthType int

const (
	AuthOpen AuthType = iota
	AuthWEPShared
	AuthWPAPSK
	AuthWPA2PSK
	AuthWPAAndWPA2PSK
	AuthWPA3PSK
	AuthUnknown
)

func (a AuthType) String() string {
	switch a {
	case AuthOpen:
		return "open"
	case AuthWEPShared:
		return "wep_shared"
	case AuthWPAPSK:
		return "wpa_psk"
	case AuthWPA2PSK:
		return "wpa2_psk"
	case AuthWPAAndWPA2PSK:
		return "wpa_wpa2_psk"
	case AuthWPA3PSK:
		return "wpa3_psk"
	default:
		return "unknown"
	}
}

// ParseAuthType parses the names produced by AuthType.String.
func ParseAuthType(s string) (AuthType, error) {
	for a := AuthOpen; a <= AuthUnknown; a++ {
		if a.String() == s {
			return a, nil
		}
	}
	return AuthUnknown, fmt.Errorf("unknown auth type %q", s)
}

func (a AuthType) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AuthType) UnmarshalText(text []byte) error {
	parsed, err := ParseAuthType(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// CryptoType is the cipher used by an access point.
type CryptoType int

const (
	CryptoNone CryptoType = iota
	CryptoWEP64
	CryptoWEP128
	CryptoAES
	CryptoTKIP
	CryptoTKIPAndAES
	CryptoUnknown
)

func (c CryptoType) String() string {
	switch c {
	case CryptoNone:
		return "none"
	case CryptoWEP64:
		return "wep_64"
	case CryptoWEP128:
		return "wep_128"
	case CryptoAES:
		return "aes"
	case CryptoTKIP:
		return "tkip"
	case CryptoTKIPAndAES:
		return "tkip_aes"
	default:
		return "unknown"
	}
}

// ParseCryptoType parses the names produced by CryptoType.String.
func ParseCryptoType(s string) (CryptoType, error) {
	for c := CryptoNone; c <= CryptoUnknown; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return CryptoUnknown, fmt.Errorf("unknown crypto type %q", s)
}

func (c CryptoType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CryptoType) UnmarshalText(text []byte) error {
	parsed, err := ParseCryptoType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

const (
	maxSSIDLength       = 32
	maxPassphraseLength = 64
	minChannel          = 1
	maxChannel          = 14
)

// APConfig describes the access point to join in STA mode.
type APConfig struct {
	SSID       string     `json:"ssid"`
	Passphrase string     `json:"passphrase"`
	AuthType   AuthType   `json:"auth_type"`
	CryptoType CryptoType `json:"crypto_type"`
}

// Validate checks the caller-supplied AP configuration.
func (c APConfig) Validate() error {
	if len(c.SSID) == 0 || len(c.SSID) > maxSSIDLength {
		return fmt.Errorf("ssid length %d out of range [1,%d]", len(c.SSID), maxSSIDLength)
	}
	if len(c.Passphrase) > maxPassphraseLength {
		return fmt.Errorf("passphrase longer than %d bytes", maxPassphraseLength)
	}
	if c.AuthType != AuthOpen && len(c.Passphrase) == 0 {
		return fmt.Errorf("auth type %s requires a passphrase", c.AuthType)
	}
	return nil
}

// SoftAPConfig describes the access point to run in SoftAP mode.
type SoftAPConfig struct {
	SSID       string   `json:"ssid"`
	Passphrase string   `json:"passphrase"`
	Channel    int      `json:"channel"`
	AuthType   AuthType `json:"auth_type"`
}

// Validate checks channel, SSID and passphrase before any driver call.
func (c SoftAPConfig) Validate() error {
	if c.Channel < minChannel || c.Channel > maxChannel {
		return fmt.Errorf("channel %d out of range [%d,%d]", c.Channel, minChannel, maxChannel)
	}
	if len(c.SSID) == 0 || len(c.SSID) > maxSSIDLength {
		return fmt.Errorf("ssid length %d out of range [1,%d]", len(c.SSID), maxSSIDLength)
	}
	if c.AuthType != AuthOpen && len(c.Passphrase) == 0 {
		return fmt.Errorf("auth type %s requires a passphrase", c.AuthType)
	}
	if len(c.Passphrase) > maxPassphraseLength {
		return fmt.Errorf("passphrase longer than %d bytes", maxPassphraseLength)
	}
	return nil
}

// ReconnectKind selects whether the manager reconnects after an unexpected disconnect.
type ReconnectKind int

const (
	ReconnectNone ReconnectKind = iota
	ReconnectInterval
)

func (k ReconnectKind) String() string {
	if k == ReconnectInterval {
		return "interval"
	}
	return "none"
}

// ReconnectPolicy is supplied at connect time. MaxTries <= 0 means unbounded.
type ReconnectPolicy struct {
	Kind     ReconnectKind `json:"kind"`
	Interval time.Duration `json:"interval"`
	MaxTries int           `json:"max_tries"`
}

// Validate checks that an interval policy carries a usable interval.
func (p ReconnectPolicy) Validate() error {
	switch p.Kind {
	case ReconnectNone:
		return nil
	case ReconnectInterval:
		if p.Interval <= 0 {
			return fmt.Errorf("reconnect interval must be positive, got %s", p.Interval)
		}
		return nil
	default:
		return fmt.Errorf("unknown reconnect kind %d", int(p.Kind))
	}
}

// Info is the snapshot returned by GetInfo.
type Info struct {
	Status ConnectionStatus `json:"status"`
	Mode   Mode             `json:"mode"`
	SSID   string           `json:"ssid"`
	MAC    net.HardwareAddr `json:"mac"`
	IP     net.IP           `json:"ip"`
	RSSI   int              `json:"rssi"`
	NumSta int              `json:"num_sta"`
}

// APRecord is one access point of a scan result.
type APRecord struct {
	SSID       string     `json:"ssid"`
	BSSID      string     `json:"bssid"`
	RSSI       int        `json:"rssi"`
	Channel    int        `json:"channel"`
	Frequency  int        `json:"frequency"`
	AuthType   AuthType   `json:"auth_type"`
	CryptoType CryptoType `json:"crypto_type"`
}

// DisconnectReason tells listeners why the station link went down.
type DisconnectReason int

const (
	DisconnectReasonDisconnected DisconnectReason = iota
	DisconnectReasonReconnecting
)

func (r DisconnectReason) String() string {
	if r == DisconnectReasonReconnecting {
		return "reconnecting"
	}
	return "disconnected"
}

// Callbacks is one listener set. Nil members are skipped.
// Callbacks run while the manager's dispatch lock is held and must not call back into the Manager.
type Callbacks struct {
	StaConnected    func(result Result)
	StaDisconnected func(reason DisconnectReason)
	SoftAPStaJoined func()
	SoftAPStaLeft   func()
	ScanDone        func(result Result, aps []APRecord)
}

// Stats counts dispatched callbacks per type, once per broadcast.
type Stats struct {
	Connect     uint64 `json:"connect"`
	ConnectFail uint64 `json:"connect_fail"`
	Disconnect  uint64 `json:"disconnect"`
	Reconnect   uint64 `json:"reconnect"`
	Joined      uint64 `json:"joined"`
	Left        uint64 `json:"left"`
	ScanDone    uint64 `json:"scan_done"`
}

// EventKind identifies the unit of work submitted to the dispatcher.
type EventKind int

const (
	EventInit EventKind = iota
	EventDeinit
	EventSetSoftAp
	EventSetSta
	EventConnect
	EventDisconnect
	EventScan
	EventReconnect
	EventStaConnected
	EventStaConnectFailed
	EventStaDisconnected
	EventScanDone
	EventDhcpdGetIp
	EventSoftAPStaLeft
)

var eventNames = [...]string{
	EventInit:             "init",
	EventDeinit:           "deinit",
	EventSetSoftAp:        "set_softap",
	EventSetSta:           "set_sta",
	EventConnect:          "connect",
	EventDisconnect:       "disconnect",
	EventScan:             "scan",
	EventReconnect:        "reconnect",
	EventStaConnected:     "sta_connected",
	EventStaConnectFailed: "sta_connect_failed",
	EventStaDisconnected:  "sta_disconnected",
	EventScanDone:         "scan_done",
	EventDhcpdGetIp:       "dhcpd_get_ip",
	EventSoftAPStaLeft:    "softap_sta_left",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is the unit of work submitted to the dispatcher.
type Event struct {
	Kind    EventKind
	Payload interface{}
	ID      string
}

// ConnectRequest is the payload of EventConnect.
type ConnectRequest struct {
	Config APConfig
	Policy ReconnectPolicy
}

// softAPRequest is the payload of EventSetSoftAp. ready is fulfilled once the
// SoftAP is up when the switch had to wait for the station to disconnect.
type softAPRequest struct {
	config   SoftAPConfig
	deferred bool
	ready    chan error
}

func newSoftAPRequest(config SoftAPConfig) *softAPRequest {
	return &softAPRequest{config: config, ready: make(chan error, 1)}
}

func (r *softAPRequest) signal(err error) {
	select {
	case r.ready <- err:
	default:
	}
}

// scanDonePayload is the payload of EventScanDone.
type scanDonePayload struct {
	result  DriverResult
	records []DriverScanRecord
}
