//go:build linux
// +build linux

package openwrt_driver

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

func interfaceMAC(name string) (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", name, err)
	}
	return link.Attrs().HardwareAddr, nil
}

// interfaceIPv4 returns the first IPv4 address of name, or nil when none is assigned.
func interfaceIPv4(name string) (net.IP, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", name, err)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("addresses of %s: %w", name, err)
	}
	for _, addr := range addrs {
		if addr.IP != nil && addr.IP.To4() != nil {
			return addr.IP, nil
		}
	}
	return nil, nil
}

// netlinkLinkMonitor calls onDown whenever iface loses its carrier.
type netlinkLinkMonitor struct {
	iface    string
	onDown   func()
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func startLinkMonitor(iface string, onDown func()) (linkMonitor, error) {
	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return nil, fmt.Errorf("failed to subscribe to link updates: %w", err)
	}

	m := &netlinkLinkMonitor{
		iface:    iface,
		onDown:   onDown,
		stopChan: make(chan struct{}),
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)
		logger.WithField("interface", iface).Info("Monitoring station link changes")
		for {
			select {
			case <-m.stopChan:
				return
			case update, ok := <-updates:
				if !ok {
					logger.Warn("Link update channel closed")
					return
				}
				m.handleLinkUpdate(update)
			}
		}
	}()
	return m, nil
}

func (m *netlinkLinkMonitor) handleLinkUpdate(update netlink.LinkUpdate) {
	if update.Link == nil {
		return
	}
	attrs := update.Link.Attrs()
	if attrs == nil || attrs.Name != m.iface {
		return
	}
	if isLinkDown(attrs.OperState, attrs.Flags) {
		logger.WithFields(logrus.Fields{
			"interface":  attrs.Name,
			"oper_state": attrs.OperState.String(),
		}).Debug("Station link down")
		m.onDown()
	}
}

func isLinkDown(state netlink.LinkOperState, flags net.Flags) bool {
	if flags&net.FlagUp == 0 {
		return true
	}
	return state == netlink.OperDown || state == netlink.OperDormant || state == netlink.OperLowerLayerDown
}

func (m *netlinkLinkMonitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
}
