package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// askConfirmation prompts the user for yes/no confirmation
func askConfirmation(message string) bool {
	fmt.Printf("%s (y/N): ", message)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	response := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return response == "y" || response == "yes"
}

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "wifi-cli",
	Short: "TollGate Wi-Fi CLI - Control the Wi-Fi connection manager",
	Long: `TollGate Wi-Fi CLI provides command-line access to the running Wi-Fi service.
You can join and leave access points, scan, switch to SoftAP mode and manage the saved profile.`,
	SilenceUsage: true,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show interface status",
	Long:  "Display state, mode, SSID, addresses and signal of the managed interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("status", nil, nil)
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect [ssid]",
	Short: "Connect to an access point",
	Long: `Join an access point in STA mode. Without --auth a passphrase implies WPA2-PSK.
The reconnect policy defaults to the service configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("connect", args, changedFlags(cmd.Flags()))
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect from the access point",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("disconnect", nil, nil)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for access points",
	Long:  "Run a scan and list the access points found, strongest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("scan", nil, nil)
	},
}

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Switch operating mode",
	Long:  "Switch between station (sta) and access point (softap) mode",
}

var modeSTACmd = &cobra.Command{
	Use:   "sta",
	Short: "Switch to station mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("mode", []string{"sta"}, nil)
	},
}

var modeSoftAPCmd = &cobra.Command{
	Use:   "softap",
	Short: "Start a SoftAP",
	Long:  "Start an access point. Flags not given fall back to the service configuration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("yes")
		if !force {
			fmt.Println("\n⚠️  WARNING: Starting a SoftAP drops the current station connection!")
			if !askConfirmation("\nAre you sure you want to switch to SoftAP mode?") {
				fmt.Println("Operation cancelled.")
				return nil
			}
		}
		flags := changedFlags(cmd.Flags())
		delete(flags, "yes")
		return sendCommandAndDisplay("mode", []string{"softap"}, flags)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show callback statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("stats", nil, nil)
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Saved profile operations",
	Long:  "Show, save or remove the access point joined at startup",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("profile", []string{"show"}, nil)
	},
}

var profileSaveCmd = &cobra.Command{
	Use:   "save [ssid]",
	Short: "Save a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("profile", []string{"save", args[0]}, changedFlags(cmd.Flags()))
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the saved profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !askConfirmation("Remove the saved profile? The router will not reconnect on boot") {
			fmt.Println("Operation cancelled.")
			return nil
		}
		return sendCommandAndDisplay("profile", []string{"remove"}, nil)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("version", nil, nil)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show Wi-Fi service logs",
	Long:  "Display Wi-Fi service logs from logread",
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")
		return executeLogsCommand(tail, follow)
	},
}

func addAPFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("passphrase", "p", "", "Passphrase of the access point")
	cmd.Flags().String("auth", "", "Auth type (open, wep_shared, wpa_psk, wpa2_psk, wpa_wpa2_psk, wpa3_psk)")
	cmd.Flags().String("crypto", "", "Cipher (none, wep_64, wep_128, aes, tkip, tkip_aes)")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", cli.SocketPath, "Path of the service socket")

	addAPFlags(connectCmd)
	connectCmd.Flags().Duration("reconnect-interval", 0, "Retry interval after an unexpected disconnect (e.g. 10s)")
	connectCmd.Flags().Int("max-tries", 0, "Reconnect attempts before giving up (0 = unlimited)")
	connectCmd.Flags().Bool("no-reconnect", false, "Do not reconnect after an unexpected disconnect")

	addAPFlags(profileSaveCmd)

	modeSoftAPCmd.Flags().String("ssid", "", "SSID of the SoftAP")
	modeSoftAPCmd.Flags().StringP("passphrase", "p", "", "Passphrase of the SoftAP (empty = open)")
	modeSoftAPCmd.Flags().Int("channel", 0, "Channel (1-14)")
	modeSoftAPCmd.Flags().String("auth", "", "Auth type of the SoftAP")
	modeSoftAPCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	logsCmd.Flags().IntP("tail", "n", 0, "Number of lines to show from the end (0 = all)")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output (like tail -f)")

	// Build command tree
	modeCmd.AddCommand(modeSTACmd, modeSoftAPCmd)
	profileCmd.AddCommand(profileShowCmd, profileSaveCmd, profileRemoveCmd)
	rootCmd.AddCommand(statusCmd, connectCmd, disconnectCmd, scanCmd, modeCmd, statsCmd, profileCmd, versionCmd, logsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// changedFlags forwards only the flags the user set, so the service applies its own defaults.
func changedFlags(fs *pflag.FlagSet) map[string]string {
	flags := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		flags[f.Name] = f.Value.String()
	})
	return flags
}

func sendCommandAndDisplay(command string, args []string, flags map[string]string) error {
	msg := cli.CLIMessage{
		Command:   command,
		Args:      args,
		Flags:     flags,
		Timestamp: time.Now(),
	}

	response, err := sendCommand(socketPath, msg)
	if err != nil {
		return fmt.Errorf("failed to communicate with the Wi-Fi service: %v\nMake sure the tollgate-wifi service is running", err)
	}

	displayResponse(response)

	if !response.Success {
		return fmt.Errorf("command failed")
	}

	return nil
}

func sendCommand(path string, msg cli.CLIMessage) (*cli.CLIResponse, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Wi-Fi service: %v", err)
	}
	defer conn.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %v", err)
	}

	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("failed to send message: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return nil, fmt.Errorf("no response from service")
	}

	var response cli.CLIResponse
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %v", err)
	}

	return &response, nil
}

// executeLogsCommand executes logread directly to show the service logs
func executeLogsCommand(tail int, follow bool) error {
	args := []string{"-e", "tollgate-wifi"}

	if follow {
		args = append(args, "-f")
	}

	if tail > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", tail))
	}

	cmd := exec.Command("logread", args...)

	// If following, connect stdout/stderr directly for real-time output
	if follow {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to read logs: %v", err)
	}

	fmt.Print(string(output))
	return nil
}
