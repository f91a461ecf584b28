//go:build !linux
// +build !linux

package openwrt_driver

import (
	"errors"
	"net"
)

var errNetlinkUnsupported = errors.New("netlink functionality only available on Linux")

func interfaceMAC(name string) (net.HardwareAddr, error) {
	return nil, errNetlinkUnsupported
}

func interfaceIPv4(name string) (net.IP, error) {
	return nil, errNetlinkUnsupported
}

func startLinkMonitor(iface string, onDown func()) (linkMonitor, error) {
	logger.Warn("Using stub link monitor - station drops are only seen on Disconnect")
	return nil, errNetlinkUnsupported
}
