package wifi_manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

type connectOutcome int

const (
	connectAccepted connectOutcome = iota
	connectAlreadyConnected
	connectUnreachable
	connectFailed
)

func toDriverAPConfig(c APConfig) DriverAPConfig {
	return DriverAPConfig{
		SSID:       c.SSID,
		Passphrase: c.Passphrase,
		AuthType:   c.AuthType,
		CryptoType: c.CryptoType,
	}
}

func toDriverSoftAPConfig(c SoftAPConfig) DriverSoftAPConfig {
	return DriverSoftAPConfig{
		SSID:       c.SSID,
		Passphrase: c.Passphrase,
		Channel:    c.Channel,
		AuthType:   c.AuthType,
	}
}

// connectAP asks the driver to join config. Must be called with the dispatch lock held.
func (m *Manager) connectAP(config APConfig) (connectOutcome, error) {
	logger.WithFields(logrus.Fields{
		"ssid": config.SSID,
		"auth": config.AuthType.String(),
	}).Info("Attempting to connect to AP")

	err := m.driver.Connect(toDriverAPConfig(config))
	switch {
	case err == nil:
	case errors.Is(err, ErrDriverAlreadyConnected):
		logger.WithField("ssid", config.SSID).Info("Driver reports already connected")
		return connectAlreadyConnected, nil
	case errors.Is(err, ErrDriverAPNotFound):
		logger.WithField("ssid", config.SSID).Warn("Access point not reachable")
		return connectUnreachable, err
	default:
		logger.WithError(err).WithField("ssid", config.SSID).Error("Driver connect failed")
		return connectFailed, err
	}

	if werr := m.store.Write(config); werr != nil {
		logger.WithError(werr).Warn("Failed to persist AP profile")
	}
	m.connectedSSID = config.SSID
	m.staActive = true
	return connectAccepted, nil
}

// disconnectAP is a no-op unless a connection is believed active.
func (m *Manager) disconnectAP() error {
	if !m.staActive {
		logger.Debug("No active station connection, nothing to disconnect")
		return nil
	}
	if err := m.driver.Disconnect(); err != nil {
		return fmt.Errorf("driver disconnect: %w", err)
	}
	m.staActive = false
	logger.WithField("ssid", m.connectedSSID).Info("Disconnect requested")
	return nil
}

// runSoftAP validates config before touching the driver, then starts the
// driver SoftAP followed by the DHCP server.
func (m *Manager) runSoftAP(config SoftAPConfig) error {
	if err := config.Validate(); err != nil {
		return newError(ResultInvalidArgs, "run_softap", err)
	}

	if err := m.driver.StartSoftAP(toDriverSoftAPConfig(config)); err != nil {
		return newError(ResultFail, "run_softap", fmt.Errorf("start softap: %w", err))
	}
	if err := m.dhcpServer.Start(m.apInterface, m.onDHCPLease); err != nil {
		if stopErr := m.driver.StopSoftAP(); stopErr != nil {
			logger.WithError(stopErr).Warn("Failed to roll back softap after DHCP server failure")
		}
		return newError(ResultFail, "run_softap", fmt.Errorf("start dhcp server: %w", err))
	}

	m.softAPConfig = config
	m.numSta = 0
	logger.WithFields(logrus.Fields{
		"ssid":    config.SSID,
		"channel": config.Channel,
	}).Info("SoftAP started")

	if m.state == StateSoftApDisconnectingSta && m.pendingSoftAP != nil {
		m.pendingSoftAP.signal(nil)
		m.pendingSoftAP = nil
	}
	return nil
}

// stopSoftAP stops the DHCP server strictly before the driver SoftAP.
func (m *Manager) stopSoftAP() error {
	var errs []error
	if err := m.dhcpServer.Stop(); err != nil {
		logger.WithError(err).Warn("Failed to stop DHCP server")
		errs = append(errs, fmt.Errorf("stop dhcp server: %w", err))
	}
	if err := m.driver.StopSoftAP(); err != nil {
		logger.WithError(err).Warn("Failed to stop softap")
		errs = append(errs, fmt.Errorf("stop softap: %w", err))
	}
	m.numSta = 0
	return errors.Join(errs...)
}

func (m *Manager) runSTA() error {
	if err := m.driver.StartSTA(); err != nil {
		return fmt.Errorf("start sta: %w", err)
	}
	return nil
}

// startDHCPClient acquires the station address after association.
func (m *Manager) startDHCPClient() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.dhcpTimeout)
	defer cancel()

	ip, err := m.dhcpClient.Start(ctx, m.staInterface)
	if err != nil {
		return err
	}
	m.staIP = ip
	logger.WithFields(logrus.Fields{
		"interface": m.staInterface,
		"ip":        ip.String(),
	}).Info("Acquired station address")
	return nil
}

func (m *Manager) releaseDHCPClient() {
	if err := m.dhcpClient.Stop(m.staInterface); err != nil {
		logger.WithError(err).Warn("Failed to release DHCP client")
	}
	m.staIP = nil
}

// onDHCPLease is the DHCP server join callback.
func (m *Manager) onDHCPLease(lease DHCPLease) {
	m.post(Event{Kind: EventDhcpdGetIp, Payload: lease})
}
