package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/cli"
	"github.com/OpenTollGate/tollgate-module-wifi-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-wifi-go/src/openwrt_driver"
	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

var mainLogger = logrus.WithField("module", "main")

// ProfileConnector is the part of the manager used to join the saved profile at startup.
type ProfileConnector interface {
	GetConfig() (wifi_manager.APConfig, error)
	ConnectAP(config wifi_manager.APConfig, policy *wifi_manager.ReconnectPolicy) error
}

func driverConfig(cfg *config_manager.Config) openwrt_driver.Config {
	r := cfg.Radio
	return openwrt_driver.Config{
		Radio:              r.Radio,
		STASection:         r.STASection,
		APSection:          r.APSection,
		STAInterface:       r.STAInterface,
		APInterface:        r.APInterface,
		Network:            r.Network,
		ConnectTimeout:     time.Duration(r.ConnectTimeoutSeconds) * time.Second,
		PollInterval:       time.Duration(r.PollIntervalSeconds) * time.Second,
		ScanTimeout:        time.Duration(r.ScanTimeoutSeconds) * time.Second,
		ProbeBeforeConnect: r.ProbeBeforeConnect,
	}
}

// connectSavedProfile joins the saved profile, if there is one.
func connectSavedProfile(m ProfileConnector, policy wifi_manager.ReconnectPolicy) error {
	profile, err := m.GetConfig()
	if errors.Is(err, config_manager.ErrNoProfile) {
		mainLogger.Info("No saved profile, staying disconnected")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read saved profile: %w", err)
	}

	mainLogger.WithFields(logrus.Fields{
		"ssid":   profile.SSID,
		"policy": policy.Kind.String(),
	}).Info("Connecting to saved profile")
	if err := m.ConnectAP(profile, &policy); err != nil && !errors.Is(err, wifi_manager.ErrAlreadyConnected) {
		return fmt.Errorf("failed to connect to %s: %w", profile.SSID, err)
	}
	return nil
}

// loggingCallbacks is the permanent listener of the daemon.
func loggingCallbacks() *wifi_manager.Callbacks {
	return &wifi_manager.Callbacks{
		StaConnected: func(result wifi_manager.Result) {
			mainLogger.WithField("result", result.String()).Info("Station connect finished")
		},
		StaDisconnected: func(reason wifi_manager.DisconnectReason) {
			mainLogger.WithField("reason", reason.String()).Info("Station disconnected")
		},
		SoftAPStaJoined: func() {
			mainLogger.Info("Client joined SoftAP")
		},
		SoftAPStaLeft: func() {
			mainLogger.Info("Client left SoftAP")
		},
		ScanDone: func(result wifi_manager.Result, aps []wifi_manager.APRecord) {
			mainLogger.WithFields(logrus.Fields{
				"result": result.String(),
				"count":  len(aps),
			}).Debug("Scan finished")
		},
	}
}

func startupFields(configPath string) logrus.Fields {
	return logrus.Fields{
		"config_path": configPath,
		"version":     cli.GetVersionInfo(),
	}
}

func startMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", addr).Info("Starting metrics server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("Metrics server failed")
		}
	}()
	return server
}

// StateManager is the part of the manager used during shutdown.
type StateManager interface {
	State() wifi_manager.State
	DisconnectAP() error
	Deinit() error
}

// shutdown drops the station link before Deinit, which is refused while connected.
// Connects still in flight are waited out and then disconnected.
func shutdown(m StateManager, clk clock.Clock) {
	deadline := clk.Now().Add(shutdownTimeout)
	for clk.Now().Before(deadline) {
		state := m.State()
		if state == wifi_manager.StateStaDisconnected || state == wifi_manager.StateSoftAp {
			break
		}
		switch state {
		case wifi_manager.StateStaConnected, wifi_manager.StateStaReconnect, wifi_manager.StateStaReconnecting:
			if err := m.DisconnectAP(); err != nil {
				mainLogger.WithError(err).Debug("Disconnect before shutdown refused")
			}
		}
		clk.Sleep(100 * time.Millisecond)
	}
	if err := m.Deinit(); err != nil {
		mainLogger.WithError(err).Error("Failed to deinitialize Wi-Fi manager")
	}
}

func main() {
	configPath := config_manager.ConfigPath()

	configManager, err := config_manager.NewConfigManager(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create config manager")
	}
	cfg, err := configManager.EnsureDefaultConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	InitializeGlobalLogger(cfg.LogLevel, cfg.LogFile)
	mainLogger.WithFields(startupFields(configPath)).Info("Starting TollGate Wi-Fi")

	clk := clock.New()
	runner := openwrt_driver.NewExecRunner()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	reporter, err := wifi_manager.NewMetricsReporter(registry)
	if err != nil {
		mainLogger.WithError(err).Fatal("Failed to register metrics")
	}

	manager, err := wifi_manager.New(wifi_manager.Config{
		Driver:        openwrt_driver.NewDriver(driverConfig(cfg), runner, clk),
		DHCPClient:    openwrt_driver.NewDHCPClient(cfg.Radio.Network, runner, clk),
		DHCPServer:    openwrt_driver.NewDHCPServer(cfg.DHCP.LeaseFile, runner, clk),
		ProfileStore:  config_manager.NewProfileStore(configManager.ProfilePath()),
		ErrorReporter: reporter,
		Clock:         clk,
		STAInterface:  cfg.Radio.STAInterface,
		APInterface:   cfg.Radio.APInterface,
		DHCPTimeout:   time.Duration(cfg.DHCP.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		mainLogger.WithError(err).Fatal("Failed to create Wi-Fi manager")
	}
	registry.MustRegister(wifi_manager.NewStatsCollector(manager))

	if err := manager.Init(loggingCallbacks()); err != nil {
		mainLogger.WithError(err).Fatal("Failed to initialize Wi-Fi manager")
	}

	policy := cfg.Reconnect.Policy()
	if cfg.AutoConnect {
		if err := connectSavedProfile(manager, policy); err != nil {
			mainLogger.WithError(err).Warn("Auto-connect failed")
		}
	}

	var metricsServer *http.Server
	if cfg.MetricsListen != "" {
		metricsServer = startMetricsServer(cfg.MetricsListen, registry)
	}

	cliServer := cli.NewCLIServer(manager, cli.ServerOptions{
		SocketPath:  cfg.CLISocket,
		SoftAP:      cfg.SoftAP.ToManager(),
		Reconnect:   policy,
		ScanTimeout: time.Duration(cfg.Radio.ScanTimeoutSeconds)*time.Second + 5*time.Second,
		Clock:       clk,

		Radio:        cfg.Radio.Radio,
		STAInterface: cfg.Radio.STAInterface,
		APInterface:  cfg.Radio.APInterface,
	})
	if err := cliServer.Start(); err != nil {
		mainLogger.WithError(err).Error("Failed to start CLI server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	mainLogger.WithField("signal", sig.String()).Info("Shutting down TollGate Wi-Fi")

	cliServer.Stop()
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsServer.Shutdown(ctx)
		cancel()
	}
	shutdown(manager, clk)
}
