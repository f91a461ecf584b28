package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

const (
	SocketPath        = "/var/run/tollgate-wifi.sock"
	SocketPermissions = 0666

	defaultScanTimeout = 30 * time.Second
	defaultModeTimeout = 60 * time.Second
)

var cliLogger = logrus.WithField("module", "cli")

// ServerOptions configures a CLIServer. Zero values take defaults.
type ServerOptions struct {
	SocketPath string
	// SoftAP is used by `mode softap` for every flag not given.
	SoftAP wifi_manager.SoftAPConfig
	// Reconnect is the policy of `connect` when no reconnect flag is given.
	Reconnect   wifi_manager.ReconnectPolicy
	ScanTimeout time.Duration
	ModeTimeout time.Duration
	Clock       clock.Clock

	// Reported by `version`.
	Radio        string
	STAInterface string
	APInterface  string
}

// CLIServer handles Unix socket communication for CLI commands
type CLIServer struct {
	manager   WifiManager
	opts      ServerOptions
	clock     clock.Clock
	startTime time.Time
	listener  net.Listener
	running   atomic.Bool
	wg        sync.WaitGroup
}

// NewCLIServer creates a new CLI server instance
func NewCLIServer(manager WifiManager, opts ServerOptions) *CLIServer {
	if opts.SocketPath == "" {
		opts.SocketPath = SocketPath
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = defaultScanTimeout
	}
	if opts.ModeTimeout <= 0 {
		opts.ModeTimeout = defaultModeTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &CLIServer{
		manager:   manager,
		opts:      opts,
		clock:     opts.Clock,
		startTime: opts.Clock.Now(),
	}
}

// Start begins listening on the Unix socket
func (s *CLIServer) Start() error {
	if s.manager == nil {
		return errors.New("cli server has no wifi manager")
	}
	// Remove existing socket file if it exists
	if err := os.Remove(s.opts.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}

	// Set socket permissions so CLI can access it
	if err := os.Chmod(s.opts.SocketPath, SocketPermissions); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	cliLogger.WithField("socket_path", s.opts.SocketPath).Info("CLI server started")

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop shuts down the CLI server. In-flight commands are allowed to finish.
func (s *CLIServer) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()

	os.Remove(s.opts.SocketPath)

	cliLogger.Info("CLI server stopped")
	return nil
}

// acceptConnections handles incoming connections
func (s *CLIServer) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			cliLogger.WithError(err).Error("Failed to accept connection")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection processes a single CLI connection
func (s *CLIServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, 8192)

	// Read until newline (our protocol sends data + \n)
	data, err := reader.ReadBytes('\n')
	if err != nil {
		cliLogger.WithError(err).Error("Failed to read from connection")
		return
	}

	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	cliLogger.WithField("data_length", len(data)).Debug("Received CLI message")

	var msg CLIMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cliLogger.WithError(err).Error("Failed to unmarshal CLI message")
		s.sendError(conn, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	response := s.processCommand(msg)
	s.sendResponse(conn, response)
}

// processCommand executes the CLI command and returns a response
func (s *CLIServer) processCommand(msg CLIMessage) CLIResponse {
	cliLogger.WithFields(logrus.Fields{
		"command": msg.Command,
		"args":    msg.Args,
	}).Debug("Processing CLI command")

	switch msg.Command {
	case "status":
		return s.handleStatusCommand()
	case "connect":
		return s.handleConnectCommand(msg.Args, msg.Flags)
	case "disconnect":
		return s.handleDisconnectCommand()
	case "scan":
		return s.handleScanCommand()
	case "mode":
		return s.handleModeCommand(msg.Args, msg.Flags)
	case "stats":
		return s.handleStatsCommand()
	case "profile":
		return s.handleProfileCommand(msg.Args, msg.Flags)
	case "version":
		return s.handleVersionCommand()
	default:
		return s.failure(fmt.Sprintf("Unknown command: %s", msg.Command))
	}
}

func (s *CLIServer) success(message string, data interface{}) CLIResponse {
	return CLIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: s.clock.Now(),
	}
}

func (s *CLIServer) failure(message string) CLIResponse {
	return CLIResponse{
		Success:   false,
		Error:     message,
		Timestamp: s.clock.Now(),
	}
}

// managerFailure reports a manager error together with its result code.
func (s *CLIServer) managerFailure(action string, err error) CLIResponse {
	resp := s.failure(fmt.Sprintf("%s: %v", action, err))
	resp.Code = wifi_manager.ResultOf(err).String()
	return resp
}

// sendResponse sends a CLIResponse back to the client
func (s *CLIServer) sendResponse(conn net.Conn, response CLIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		cliLogger.WithError(err).Error("Failed to marshal response")
		return
	}

	conn.Write(data)
	conn.Write([]byte("\n"))
}

// sendError sends an error response to the client
func (s *CLIServer) sendError(conn net.Conn, errorMsg string) {
	s.sendResponse(conn, s.failure(errorMsg))
}
