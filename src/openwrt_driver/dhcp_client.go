package openwrt_driver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// DHCPClient brings the station network up with netifd and waits for its lease.
type DHCPClient struct {
	runner       CommandRunner
	clock        clock.Clock
	network      string
	pollInterval time.Duration
	ipv4Of       func(iface string) (net.IP, error)
}

var _ wifi_manager.DHCPClient = (*DHCPClient)(nil)

func NewDHCPClient(network string, runner CommandRunner, clk clock.Clock) *DHCPClient {
	if runner == nil {
		runner = NewExecRunner()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &DHCPClient{
		runner:       runner,
		clock:        clk,
		network:      network,
		pollInterval: time.Second,
		ipv4Of:       interfaceIPv4,
	}
}

// Start runs `ifup` and blocks until iface has an IPv4 address or ctx is done.
func (c *DHCPClient) Start(ctx context.Context, iface string) (net.IP, error) {
	if _, err := c.runner.Run(ctx, "ifup", c.network); err != nil {
		return nil, fmt.Errorf("ifup %s: %w", c.network, err)
	}

	ticker := c.clock.Ticker(c.pollInterval)
	defer ticker.Stop()
	for {
		ip, err := c.ipv4Of(iface)
		if err != nil {
			logger.WithError(err).WithField("interface", iface).Debug("Address lookup failed, retrying")
		} else if ip != nil {
			logger.WithFields(logrus.Fields{
				"network":   c.network,
				"interface": iface,
				"ip":        ip.String(),
			}).Info("DHCP lease acquired")
			return ip, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for address on %s: %w", iface, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop runs `ifdown`, releasing the lease.
func (c *DHCPClient) Stop(iface string) error {
	if _, err := c.runner.Run(context.Background(), "ifdown", c.network); err != nil {
		return fmt.Errorf("ifdown %s: %w", c.network, err)
	}
	logger.WithField("interface", iface).Debug("DHCP client stopped")
	return nil
}
