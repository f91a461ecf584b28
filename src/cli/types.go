package cli

import (
	"context"
	"time"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
)

// CLIMessage represents communication between CLI client and service
type CLIMessage struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Flags     map[string]string `json:"flags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// CLIResponse represents a response from the service
type CLIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WifiStatus is the data of the status command
type WifiStatus struct {
	State   string `json:"state"`
	Mode    string `json:"mode"`
	Status  string `json:"status"`
	SSID    string `json:"ssid,omitempty"`
	MAC     string `json:"mac,omitempty"`
	IP      string `json:"ip,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
	NumSta  int    `json:"num_sta"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// ScanResult is the data of the scan command
type ScanResult struct {
	Count int                     `json:"count"`
	APs   []wifi_manager.APRecord `json:"aps"`
}

// ProfileInfo is a saved profile with the passphrase masked
type ProfileInfo struct {
	SSID       string `json:"ssid"`
	Passphrase string `json:"passphrase,omitempty"`
	AuthType   string `json:"auth_type"`
	CryptoType string `json:"crypto_type"`
}

// WifiManager is the part of *wifi_manager.Manager the CLI drives.
type WifiManager interface {
	GetInfo() (wifi_manager.Info, error)
	State() wifi_manager.State
	ConnectAP(config wifi_manager.APConfig, policy *wifi_manager.ReconnectPolicy) error
	DisconnectAP() error
	ScanAP() error
	SetMode(ctx context.Context, mode wifi_manager.Mode, softAP *wifi_manager.SoftAPConfig) error
	GetStats() (wifi_manager.Stats, error)
	GetConfig() (wifi_manager.APConfig, error)
	SaveConfig(config wifi_manager.APConfig) error
	RemoveConfig() error
	RegisterCallbacks(cb *wifi_manager.Callbacks) error
	UnregisterCallbacks(cb *wifi_manager.Callbacks) error
}

var _ WifiManager = (*wifi_manager.Manager)(nil)
