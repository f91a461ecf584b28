package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/cli"
	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
)

func displayResponse(response *cli.CLIResponse) {
	writeResponse(os.Stdout, response)
}

func writeResponse(w io.Writer, response *cli.CLIResponse) {
	if !response.Success {
		if response.Code != "" {
			fmt.Fprintf(w, "Error: %s (%s)\n", response.Error, response.Code)
		} else {
			fmt.Fprintf(w, "Error: %s\n", response.Error)
		}
		return
	}

	if response.Message != "" {
		fmt.Fprintln(w, response.Message)
	}

	if response.Data == nil {
		return
	}

	if status, ok := decodeData[cli.WifiStatus](response.Data); ok && status.State != "" {
		writeStatus(w, status)
		return
	}
	if scan, ok := decodeData[cli.ScanResult](response.Data); ok && scan.APs != nil {
		writeScan(w, scan)
		return
	}
	if info, ok := decodeData[cli.BuildInfo](response.Data); ok && info.GoVersion != "" {
		writeBuildInfo(w, info)
		return
	}

	dataJSON, err := json.MarshalIndent(response.Data, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%v\n", response.Data)
		return
	}
	fmt.Fprintln(w, string(dataJSON))
}

// decodeData re-decodes the generic JSON payload into T.
func decodeData[T any](data interface{}) (T, bool) {
	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

func writeStatus(w io.Writer, s cli.WifiStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "State:\t%s\n", s.State)
	fmt.Fprintf(tw, "Mode:\t%s\n", s.Mode)
	fmt.Fprintf(tw, "Status:\t%s\n", s.Status)
	if s.SSID != "" {
		fmt.Fprintf(tw, "SSID:\t%s\n", s.SSID)
	}
	if s.MAC != "" {
		fmt.Fprintf(tw, "MAC:\t%s\n", s.MAC)
	}
	if s.IP != "" {
		fmt.Fprintf(tw, "IP:\t%s\n", s.IP)
	}
	if s.RSSI != 0 {
		fmt.Fprintf(tw, "Signal:\t%d dBm\n", s.RSSI)
	}
	if s.Mode == wifi_manager.ModeSoftAP.String() {
		fmt.Fprintf(tw, "Stations:\t%d\n", s.NumSta)
	}
	fmt.Fprintf(tw, "Uptime:\t%s\n", s.Uptime)
	fmt.Fprintf(tw, "Version:\t%s\n", s.Version)
	tw.Flush()
}

func writeBuildInfo(w io.Writer, info cli.BuildInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%s\n", info.Version)
	fmt.Fprintf(tw, "Commit:\t%s\n", info.Commit)
	fmt.Fprintf(tw, "Built:\t%s\n", info.BuildTime)
	fmt.Fprintf(tw, "Go:\t%s\n", info.GoVersion)
	fmt.Fprintf(tw, "OpenWrt:\t%s\n", info.OpenWrt)
	if info.Radio != "" {
		fmt.Fprintf(tw, "Radio:\t%s (sta %s, ap %s)\n", info.Radio, info.STAInterface, info.APInterface)
	}
	tw.Flush()
}

func writeScan(w io.Writer, scan cli.ScanResult) {
	if len(scan.APs) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SSID\tBSSID\tCH\tSIGNAL\tAUTH\tCRYPTO")
	for _, ap := range scan.APs {
		ssid := ap.SSID
		if ssid == "" {
			ssid = "<hidden>"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d dBm\t%s\t%s\n",
			ssid, ap.BSSID, ap.Channel, ap.RSSI, ap.AuthType, ap.CryptoType)
	}
	tw.Flush()
}
