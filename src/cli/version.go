package cli

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Set with -ldflags "-X github.com/OpenTollGate/tollgate-module-wifi-go/src/cli.Version=..." at build time.
var (
	Version   = "v0.0.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var openWrtReleaseFile = "/etc/openwrt_release"

// BuildInfo is the data of the version command.
type BuildInfo struct {
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	BuildTime    string `json:"build_time"`
	GoVersion    string `json:"go_version"`
	OpenWrt      string `json:"openwrt_version"`
	Radio        string `json:"radio,omitempty"`
	STAInterface string `json:"sta_interface,omitempty"`
	APInterface  string `json:"ap_interface,omitempty"`
}

// GetVersionInfo returns the one-line version reported by status and logs.
func GetVersionInfo() string {
	return fmt.Sprintf("TollGate Wi-Fi %s", Version)
}

// buildInfo describes this binary and the radio the server manages.
func (s *CLIServer) buildInfo() BuildInfo {
	return BuildInfo{
		Version:      Version,
		Commit:       GitCommit,
		BuildTime:    BuildTime,
		GoVersion:    runtime.Version(),
		OpenWrt:      openWrtRelease(openWrtReleaseFile),
		Radio:        s.opts.Radio,
		STAInterface: s.opts.STAInterface,
		APInterface:  s.opts.APInterface,
	}
}

// openWrtRelease returns DISTRIB_DESCRIPTION from an openwrt_release file.
func openWrtRelease(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "unknown"
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if ok && key == "DISTRIB_DESCRIPTION" {
			return strings.Trim(value, `'"`)
		}
	}
	return "unknown"
}
