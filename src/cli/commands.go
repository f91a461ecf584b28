package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/sirupsen/logrus"
)

// handleStatusCommand returns the interface status
func (s *CLIServer) handleStatusCommand() CLIResponse {
	info, err := s.manager.GetInfo()
	if err != nil {
		return s.managerFailure("Failed to get info", err)
	}

	status := WifiStatus{
		State:   s.manager.State().String(),
		Mode:    info.Mode.String(),
		Status:  info.Status.String(),
		SSID:    info.SSID,
		RSSI:    info.RSSI,
		NumSta:  info.NumSta,
		Uptime:  s.clock.Since(s.startTime).Round(time.Second).String(),
		Version: GetVersionInfo(),
	}
	if len(info.MAC) > 0 {
		status.MAC = info.MAC.String()
	}
	if info.IP != nil {
		status.IP = info.IP.String()
	}
	return s.success("Wi-Fi status retrieved", status)
}

func (s *CLIServer) handleConnectCommand(args []string, flags map[string]string) CLIResponse {
	if len(args) == 0 {
		return s.failure("Connect command requires an SSID")
	}
	config, err := parseAPConfig(args[0], flags)
	if err != nil {
		return s.failure(err.Error())
	}
	policy, err := parsePolicy(flags, s.opts.Reconnect)
	if err != nil {
		return s.failure(err.Error())
	}

	if err := s.manager.ConnectAP(config, &policy); err != nil {
		if errors.Is(err, wifi_manager.ErrAlreadyConnected) {
			resp := s.success(fmt.Sprintf("Already connected to %s", config.SSID), nil)
			resp.Code = wifi_manager.ResultAlreadyConnected.String()
			return resp
		}
		return s.managerFailure("Failed to connect", err)
	}

	cliLogger.WithFields(logrus.Fields{
		"ssid":   config.SSID,
		"policy": policy.Kind.String(),
	}).Info("Connect requested from CLI")
	return s.success(fmt.Sprintf("Connecting to %s", config.SSID), nil)
}

func (s *CLIServer) handleDisconnectCommand() CLIResponse {
	if err := s.manager.DisconnectAP(); err != nil {
		return s.managerFailure("Failed to disconnect", err)
	}
	return s.success("Disconnecting", nil)
}

type scanOutcome struct {
	result wifi_manager.Result
	aps    []wifi_manager.APRecord
}

// handleScanCommand borrows a listener slot for the duration of one scan.
func (s *CLIServer) handleScanCommand() CLIResponse {
	done := make(chan scanOutcome, 1)
	cb := &wifi_manager.Callbacks{
		// Runs under the manager's dispatch lock; must not block.
		ScanDone: func(result wifi_manager.Result, aps []wifi_manager.APRecord) {
			select {
			case done <- scanOutcome{result: result, aps: aps}:
			default:
			}
		},
	}
	if err := s.manager.RegisterCallbacks(cb); err != nil {
		return s.managerFailure("No listener slot available for scan", err)
	}
	defer func() {
		if err := s.manager.UnregisterCallbacks(cb); err != nil {
			cliLogger.WithError(err).Warn("Failed to unregister scan listener")
		}
	}()

	if err := s.manager.ScanAP(); err != nil {
		return s.managerFailure("Failed to start scan", err)
	}

	timer := s.clock.Timer(s.opts.ScanTimeout)
	defer timer.Stop()
	select {
	case outcome := <-done:
		if outcome.result != wifi_manager.ResultSuccess {
			resp := s.failure("Scan failed")
			resp.Code = outcome.result.String()
			return resp
		}
		aps := outcome.aps
		if aps == nil {
			aps = []wifi_manager.APRecord{}
		}
		return s.success(fmt.Sprintf("Found %d networks", len(aps)), ScanResult{Count: len(aps), APs: aps})
	case <-timer.C:
		return s.failure(fmt.Sprintf("Scan timed out after %s", s.opts.ScanTimeout))
	}
}

func (s *CLIServer) handleModeCommand(args []string, flags map[string]string) CLIResponse {
	if len(args) == 0 {
		return s.failure("Mode command requires a mode (sta, softap)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ModeTimeout)
	defer cancel()

	switch args[0] {
	case "sta":
		if err := s.manager.SetMode(ctx, wifi_manager.ModeSTA, nil); err != nil {
			return s.managerFailure("Failed to switch to STA mode", err)
		}
		return s.success("Switched to STA mode", nil)
	case "softap":
		config, err := s.softAPConfig(flags)
		if err != nil {
			return s.failure(err.Error())
		}
		if err := s.manager.SetMode(ctx, wifi_manager.ModeSoftAP, &config); err != nil {
			return s.managerFailure("Failed to start SoftAP", err)
		}
		return s.success(fmt.Sprintf("SoftAP %s running on channel %d", config.SSID, config.Channel), nil)
	default:
		return s.failure(fmt.Sprintf("Unknown mode: %s (supported: sta, softap)", args[0]))
	}
}

func (s *CLIServer) softAPConfig(flags map[string]string) (wifi_manager.SoftAPConfig, error) {
	config := s.opts.SoftAP
	if ssid, ok := flags["ssid"]; ok {
		config.SSID = ssid
	}
	if passphrase, ok := flags["passphrase"]; ok {
		config.Passphrase = passphrase
		if passphrase == "" {
			config.AuthType = wifi_manager.AuthOpen
		} else if config.AuthType == wifi_manager.AuthOpen {
			config.AuthType = wifi_manager.AuthWPA2PSK
		}
	}
	if ch, ok := flags["channel"]; ok {
		channel, err := strconv.Atoi(ch)
		if err != nil {
			return config, fmt.Errorf("invalid channel %q", ch)
		}
		config.Channel = channel
	}
	if auth, ok := flags["auth"]; ok {
		a, err := wifi_manager.ParseAuthType(auth)
		if err != nil {
			return config, err
		}
		config.AuthType = a
	}
	return config, nil
}

func (s *CLIServer) handleStatsCommand() CLIResponse {
	stats, err := s.manager.GetStats()
	if err != nil {
		return s.managerFailure("Failed to get stats", err)
	}
	return s.success("Callback statistics", stats)
}

func (s *CLIServer) handleProfileCommand(args []string, flags map[string]string) CLIResponse {
	if len(args) == 0 {
		return s.failure("Profile command requires an action (show, save, remove)")
	}

	switch args[0] {
	case "show":
		config, err := s.manager.GetConfig()
		if err != nil {
			return s.managerFailure("No saved profile", err)
		}
		info := ProfileInfo{
			SSID:       config.SSID,
			AuthType:   config.AuthType.String(),
			CryptoType: config.CryptoType.String(),
		}
		if config.Passphrase != "" {
			info.Passphrase = "********"
		}
		return s.success("Saved profile", info)
	case "save":
		if len(args) < 2 {
			return s.failure("Profile save requires an SSID")
		}
		config, err := parseAPConfig(args[1], flags)
		if err != nil {
			return s.failure(err.Error())
		}
		if err := s.manager.SaveConfig(config); err != nil {
			return s.managerFailure("Failed to save profile", err)
		}
		return s.success(fmt.Sprintf("Saved profile for %s", config.SSID), nil)
	case "remove":
		if err := s.manager.RemoveConfig(); err != nil {
			return s.managerFailure("Failed to remove profile", err)
		}
		return s.success("Removed saved profile", nil)
	default:
		return s.failure(fmt.Sprintf("Unknown profile action: %s (supported: show, save, remove)", args[0]))
	}
}

func (s *CLIServer) handleVersionCommand() CLIResponse {
	return s.success(GetVersionInfo(), s.buildInfo())
}

// parseAPConfig builds an AP config from the ssid argument and the passphrase, auth
// and crypto flags. Without --auth a passphrase implies WPA2-PSK.
func parseAPConfig(ssid string, flags map[string]string) (wifi_manager.APConfig, error) {
	config := wifi_manager.APConfig{
		SSID:       ssid,
		Passphrase: flags["passphrase"],
		AuthType:   wifi_manager.AuthOpen,
		CryptoType: wifi_manager.CryptoNone,
	}
	if config.Passphrase != "" {
		config.AuthType = wifi_manager.AuthWPA2PSK
		config.CryptoType = wifi_manager.CryptoAES
	}
	if auth, ok := flags["auth"]; ok {
		a, err := wifi_manager.ParseAuthType(auth)
		if err != nil {
			return config, err
		}
		config.AuthType = a
	}
	if crypto, ok := flags["crypto"]; ok {
		c, err := wifi_manager.ParseCryptoType(crypto)
		if err != nil {
			return config, err
		}
		config.CryptoType = c
	}
	return config, nil
}

// parsePolicy applies the reconnect flags on top of def.
func parsePolicy(flags map[string]string, def wifi_manager.ReconnectPolicy) (wifi_manager.ReconnectPolicy, error) {
	policy := def
	if flags["no-reconnect"] == "true" {
		return wifi_manager.ReconnectPolicy{Kind: wifi_manager.ReconnectNone}, nil
	}
	if v, ok := flags["reconnect-interval"]; ok {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return policy, fmt.Errorf("invalid reconnect interval %q: %w", v, err)
		}
		policy.Kind = wifi_manager.ReconnectInterval
		policy.Interval = interval
	}
	if v, ok := flags["max-tries"]; ok {
		tries, err := strconv.Atoi(v)
		if err != nil {
			return policy, fmt.Errorf("invalid max tries %q", v)
		}
		policy.MaxTries = tries
	}
	return policy, nil
}
