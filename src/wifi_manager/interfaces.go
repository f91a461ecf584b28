// Package wifi_manager defines interfaces for dependency injection.
package wifi_manager

import (
	"context"
	"net"
)

// DriverResult is the outcome reported by a driver callback.
type DriverResult int

const (
	DriverSuccess DriverResult = iota
	DriverFail
)

func (r DriverResult) String() string {
	if r == DriverSuccess {
		return "success"
	}
	return "fail"
}

// DriverAPConfig is the driver's view of an AP to join.
type DriverAPConfig struct {
	SSID       string
	Passphrase string
	AuthType   AuthType
	CryptoType CryptoType
}

// DriverSoftAPConfig is the driver's view of a SoftAP to start.
type DriverSoftAPConfig struct {
	SSID       string
	Passphrase string
	Channel    int
	AuthType   AuthType
}

// DriverInfo is what the driver knows about the interface.
type DriverInfo struct {
	MAC  net.HardwareAddr
	SSID string
	RSSI int
	IP   net.IP
}

// DriverScanRecord is the driver's raw scan entry.
type DriverScanRecord struct {
	SSID       []byte
	BSSID      []byte
	RSSI       int
	Channel    int
	Frequency  int
	AuthType   AuthType
	CryptoType CryptoType
}

// Driver is the radio adapter. Methods may be called from the dispatcher and must
// be safe for concurrent use. Handler methods must never be invoked from inside
// a Driver method; they are reported asynchronously.
type Driver interface {
	Init(handler DriverEventHandler) error
	Deinit() error
	Scan() error
	Connect(config DriverAPConfig) error
	Disconnect() error
	StartSTA() error
	StartSoftAP(config DriverSoftAPConfig) error
	StopSoftAP() error
	GetInfo() (DriverInfo, error)
	SetAutoConnect(enabled bool) error
}

// DriverEventHandler receives driver-originated events. Manager implements it.
type DriverEventHandler interface {
	OnStaConnected(result DriverResult)
	OnStaDisconnected()
	OnSoftAPStaJoined()
	OnSoftAPStaLeft()
	OnScanDone(result DriverResult, records []DriverScanRecord)
}

// DHCPLease is handed to the join callback of a DHCPServer.
type DHCPLease struct {
	MAC      string
	IP       net.IP
	Hostname string
}

// DHCPClient obtains and releases the station's address.
type DHCPClient interface {
	Start(ctx context.Context, iface string) (net.IP, error)
	Stop(iface string) error
}

// DHCPServer serves addresses to stations joining the SoftAP. onJoin is called
// asynchronously, never from inside Start.
type DHCPServer interface {
	Start(iface string, onJoin func(DHCPLease)) error
	Stop() error
}

// ProfileStore persists the saved AP profile.
type ProfileStore interface {
	Init() error
	Read() (APConfig, error)
	Write(config APConfig) error
	Reset() error
}

// ErrorReporter records events rejected by the state machine.
type ErrorReporter interface {
	ReportInvalidEvent(state State, kind EventKind)
}
