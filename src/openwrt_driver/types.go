// Package openwrt_driver drives an OpenWRT radio through uci, iw and netlink.
package openwrt_driver

import (
	"time"
)

// Config describes the wireless sections and interfaces the driver manages.
type Config struct {
	// Radio is the UCI wifi-device section, e.g. "radio0".
	Radio string
	// STASection and APSection are wifi-iface sections, e.g. "tollgate_sta".
	STASection string
	APSection  string
	// STAInterface and APInterface are the kernel interface names.
	STAInterface string
	APInterface  string
	// Network is the logical UCI network the station is attached to, e.g. "wwan".
	Network string

	ConnectTimeout time.Duration
	PollInterval   time.Duration
	ScanTimeout    time.Duration
	// ProbeBeforeConnect runs a targeted scan so an absent AP is reported as not found.
	ProbeBeforeConnect bool
}

const (
	defaultConnectTimeout = 30 * time.Second
	defaultPollInterval   = 3 * time.Second
	defaultScanTimeout    = 20 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Radio == "" {
		c.Radio = "radio0"
	}
	if c.STASection == "" {
		c.STASection = "tollgate_sta"
	}
	if c.APSection == "" {
		c.APSection = "default_radio0"
	}
	if c.Network == "" {
		c.Network = "wwan"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = defaultScanTimeout
	}
	return c
}

// CommandError is returned by CommandRunner when a command exits unsuccessfully.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Command + ": " + e.Err.Error() + ": " + e.Stderr
	}
	return e.Command + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// linkStatus is the parsed output of `iw dev <if> link`.
type linkStatus struct {
	Connected bool
	SSID      string
	BSSID     string
	Signal    int
	Frequency int
}
