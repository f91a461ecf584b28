package config_manager

import (
	"time"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
)

// Config represents the main configuration for the Wi-Fi service.
type Config struct {
	ConfigVersion string          `json:"config_version"`
	LogLevel      string          `json:"log_level"`
	LogFile       string          `json:"log_file"`
	Radio         RadioConfig     `json:"radio"`
	Reconnect     ReconnectConfig `json:"reconnect"`
	DHCP          DHCPConfig      `json:"dhcp"`
	SoftAP        SoftAPConfig    `json:"softap"`
	MetricsListen string          `json:"metrics_listen"`
	CLISocket     string          `json:"cli_socket"`
	// AutoConnect joins the saved profile at startup.
	AutoConnect bool `json:"auto_connect"`
}

// RadioConfig names the UCI sections and kernel interfaces the driver manages.
type RadioConfig struct {
	Radio                 string `json:"radio"`
	STASection            string `json:"sta_section"`
	APSection             string `json:"ap_section"`
	STAInterface          string `json:"sta_interface"`
	APInterface           string `json:"ap_interface"`
	Network               string `json:"network"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds"`
	PollIntervalSeconds   int    `json:"poll_interval_seconds"`
	ScanTimeoutSeconds    int    `json:"scan_timeout_seconds"`
	ProbeBeforeConnect    bool   `json:"probe_before_connect"`
}

// ReconnectConfig is the policy applied when connecting to the saved profile.
type ReconnectConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
	MaxTries        int  `json:"max_tries"` // 0 retries forever
}

// DHCPConfig holds the station lease timeout and the SoftAP lease file.
type DHCPConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds"`
	LeaseFile      string `json:"lease_file"`
}

// SoftAPConfig is the access point offered by `mode softap` when no flags are given.
type SoftAPConfig struct {
	SSID       string `json:"ssid"`
	Passphrase string `json:"passphrase"`
	Channel    int    `json:"channel"`
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		ConfigVersion: CurrentConfigVersion,
		LogLevel:      "info",
		LogFile:       "",
		Radio: RadioConfig{
			Radio:                 "radio0",
			STASection:            "tollgate_sta",
			APSection:             "default_radio0",
			STAInterface:          "phy0-sta0",
			APInterface:           "phy0-ap0",
			Network:               "wwan",
			ConnectTimeoutSeconds: 30,
			PollIntervalSeconds:   3,
			ScanTimeoutSeconds:    20,
			ProbeBeforeConnect:    true,
		},
		Reconnect: ReconnectConfig{
			Enabled:         true,
			IntervalSeconds: 10,
			MaxTries:        0,
		},
		DHCP: DHCPConfig{
			TimeoutSeconds: 30,
			LeaseFile:      "/tmp/dhcp.leases",
		},
		SoftAP: SoftAPConfig{
			SSID:    "TollGate-Setup",
			Channel: 6,
		},
		MetricsListen: "127.0.0.1:9112",
		CLISocket:     "/var/run/tollgate-wifi.sock",
		AutoConnect:   true,
	}
}

// Policy converts the reconnect settings to a manager policy.
func (r ReconnectConfig) Policy() wifi_manager.ReconnectPolicy {
	if !r.Enabled || r.IntervalSeconds <= 0 {
		return wifi_manager.ReconnectPolicy{Kind: wifi_manager.ReconnectNone}
	}
	return wifi_manager.ReconnectPolicy{
		Kind:     wifi_manager.ReconnectInterval,
		Interval: time.Duration(r.IntervalSeconds) * time.Second,
		MaxTries: r.MaxTries,
	}
}

// ToManager converts the configured access point to a manager config.
func (s SoftAPConfig) ToManager() wifi_manager.SoftAPConfig {
	auth := wifi_manager.AuthWPA2PSK
	if s.Passphrase == "" {
		auth = wifi_manager.AuthOpen
	}
	return wifi_manager.SoftAPConfig{
		SSID:       s.SSID,
		Passphrase: s.Passphrase,
		Channel:    s.Channel,
		AuthType:   auth,
	}
}

// fillDefaults sets every zero-valued field of c from def. Booleans are left alone.
func (c *Config) fillDefaults(def *Config) {
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	r, d := &c.Radio, def.Radio
	if r.Radio == "" {
		r.Radio = d.Radio
	}
	if r.STASection == "" {
		r.STASection = d.STASection
	}
	if r.APSection == "" {
		r.APSection = d.APSection
	}
	if r.STAInterface == "" {
		r.STAInterface = d.STAInterface
	}
	if r.APInterface == "" {
		r.APInterface = d.APInterface
	}
	if r.Network == "" {
		r.Network = d.Network
	}
	if r.ConnectTimeoutSeconds <= 0 {
		r.ConnectTimeoutSeconds = d.ConnectTimeoutSeconds
	}
	if r.PollIntervalSeconds <= 0 {
		r.PollIntervalSeconds = d.PollIntervalSeconds
	}
	if r.ScanTimeoutSeconds <= 0 {
		r.ScanTimeoutSeconds = d.ScanTimeoutSeconds
	}
	if c.Reconnect.IntervalSeconds <= 0 {
		c.Reconnect.IntervalSeconds = def.Reconnect.IntervalSeconds
	}
	if c.DHCP.TimeoutSeconds <= 0 {
		c.DHCP.TimeoutSeconds = def.DHCP.TimeoutSeconds
	}
	if c.DHCP.LeaseFile == "" {
		c.DHCP.LeaseFile = def.DHCP.LeaseFile
	}
	if c.SoftAP.SSID == "" {
		c.SoftAP = def.SoftAP
	}
	if c.MetricsListen == "" {
		c.MetricsListen = def.MetricsListen
	}
	if c.CLISocket == "" {
		c.CLISocket = def.CLISocket
	}
}
