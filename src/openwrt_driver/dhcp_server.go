package openwrt_driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

const dnsmasqInit = "/etc/init.d/dnsmasq"

// DHCPServer runs dnsmasq for the SoftAP and reports new leases from its lease file.
type DHCPServer struct {
	runner       CommandRunner
	clock        clock.Clock
	leaseFile    string
	pollInterval time.Duration
	readFile     func(name string) ([]byte, error)

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

var _ wifi_manager.DHCPServer = (*DHCPServer)(nil)

func NewDHCPServer(leaseFile string, runner CommandRunner, clk clock.Clock) *DHCPServer {
	if runner == nil {
		runner = NewExecRunner()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &DHCPServer{
		runner:       runner,
		clock:        clk,
		leaseFile:    leaseFile,
		pollInterval: 2 * time.Second,
		readFile:     os.ReadFile,
	}
}

// Start launches dnsmasq and watches the lease file. A lease counts as a join once
// its station is associated with iface. Stations that leave are forgotten, so a
// rejoin on a still valid lease is reported again.
func (s *DHCPServer) Start(iface string, onJoin func(wifi_manager.DHCPLease)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan != nil {
		return errors.New("dhcp server already running")
	}

	if _, err := s.runner.Run(context.Background(), dnsmasqInit, "start"); err != nil {
		return fmt.Errorf("start dnsmasq: %w", err)
	}

	known := make(map[string]struct{})
	if _, err := s.associated(iface); err != nil {
		// Without station dumps only leases handed out from now on are joins.
		for _, lease := range s.readLeases() {
			known[lease.MAC] = struct{}{}
		}
	}

	stop := make(chan struct{})
	s.stopChan = stop
	joins := make(chan wifi_manager.DHCPLease, 16)

	// Stop never waits for an onJoin delivery.
	go func() {
		for {
			select {
			case <-stop:
				return
			case lease := <-joins:
				onJoin(lease)
			}
		}
	}()

	ticker := s.clock.Ticker(s.pollInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			for _, lease := range s.newJoins(iface, known) {
				logger.WithFields(logrus.Fields{
					"interface": iface,
					"mac":       lease.MAC,
					"ip":        lease.IP.String(),
				}).Info("New DHCP lease")
				select {
				case joins <- lease:
				case <-stop:
					return
				}
			}
		}
	}()
	logger.WithField("interface", iface).Info("DHCP server started")
	return nil
}

// newJoins returns the leases of stations not reported yet and updates known.
func (s *DHCPServer) newJoins(iface string, known map[string]struct{}) []wifi_manager.DHCPLease {
	leases := s.readLeases()
	associated, err := s.associated(iface)
	if err != nil {
		logger.WithError(err).WithField("interface", iface).Debug("Station dump failed, matching leases only")
	} else {
		for mac := range known {
			if _, ok := associated[mac]; !ok {
				delete(known, mac)
			}
		}
	}

	var joins []wifi_manager.DHCPLease
	for _, lease := range leases {
		if _, ok := known[lease.MAC]; ok {
			continue
		}
		if err == nil {
			if _, ok := associated[lease.MAC]; !ok {
				continue
			}
		}
		known[lease.MAC] = struct{}{}
		joins = append(joins, lease)
	}
	return joins
}

// associated lists the stations currently associated with iface.
func (s *DHCPServer) associated(iface string) (map[string]struct{}, error) {
	out, err := s.runner.Run(context.Background(), "iw", "dev", iface, "station", "dump")
	if err != nil {
		return nil, err
	}
	stations := make(map[string]struct{})
	for _, mac := range parseStationDump(out) {
		stations[mac] = struct{}{}
	}
	return stations, nil
}

func (s *DHCPServer) Stop() error {
	s.mu.Lock()
	stop := s.stopChan
	s.stopChan = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		s.wg.Wait()
	}
	if _, err := s.runner.Run(context.Background(), dnsmasqInit, "stop"); err != nil {
		return fmt.Errorf("stop dnsmasq: %w", err)
	}
	logger.Info("DHCP server stopped")
	return nil
}

func (s *DHCPServer) readLeases() []wifi_manager.DHCPLease {
	data, err := s.readFile(s.leaseFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.WithError(err).WithField("file", s.leaseFile).Warn("Failed to read lease file")
		}
		return nil
	}
	return parseLeases(string(data))
}

// parseLeases parses dnsmasq lease lines: "<expiry> <mac> <ip> <hostname> <client-id>".
func parseLeases(data string) []wifi_manager.DHCPLease {
	var leases []wifi_manager.DHCPLease
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		mac, err := net.ParseMAC(fields[1])
		if err != nil {
			continue
		}
		ip := net.ParseIP(fields[2])
		if ip == nil || ip.To4() == nil {
			continue
		}
		hostname := fields[3]
		if hostname == "*" {
			hostname = ""
		}
		leases = append(leases, wifi_manager.DHCPLease{
			MAC:      mac.String(),
			IP:       ip,
			Hostname: hostname,
		})
	}
	return leases
}
