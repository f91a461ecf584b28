package openwrt_driver

import (
	"bufio"
	"bytes"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/sirupsen/logrus"
)

var (
	bssRegex     = regexp.MustCompile(`^BSS ([0-9a-fA-F:]{17})`)
	stationRegex = regexp.MustCompile(`^Station ([0-9a-fA-F:]{17})`)
	linkRegex    = regexp.MustCompile(`^Connected to ([0-9a-fA-F:]{17})`)
)

// scanEntry accumulates one BSS block of `iw dev <if> scan`.
type scanEntry struct {
	record  wifi_manager.DriverScanRecord
	rsn     bool
	wpa     bool
	sae     bool
	privacy bool
	ccmp    bool
	tkip    bool
}

func (e *scanEntry) finish() wifi_manager.DriverScanRecord {
	r := e.record
	switch {
	case e.sae:
		r.AuthType = wifi_manager.AuthWPA3PSK
	case e.rsn && e.wpa:
		r.AuthType = wifi_manager.AuthWPAAndWPA2PSK
	case e.rsn:
		r.AuthType = wifi_manager.AuthWPA2PSK
	case e.wpa:
		r.AuthType = wifi_manager.AuthWPAPSK
	case e.privacy:
		r.AuthType = wifi_manager.AuthWEPShared
	default:
		r.AuthType = wifi_manager.AuthOpen
	}

	switch {
	case e.ccmp && e.tkip:
		r.CryptoType = wifi_manager.CryptoTKIPAndAES
	case e.ccmp:
		r.CryptoType = wifi_manager.CryptoAES
	case e.tkip:
		r.CryptoType = wifi_manager.CryptoTKIP
	case e.privacy && !e.rsn && !e.wpa:
		r.CryptoType = wifi_manager.CryptoWEP128
	default:
		r.CryptoType = wifi_manager.CryptoNone
	}
	if r.Channel == 0 {
		r.Channel = channelFromFrequency(r.Frequency)
	}
	return r
}

// parseScanOutput parses `iw dev <if> scan`. Hidden networks are skipped.
func parseScanOutput(output []byte) ([]wifi_manager.DriverScanRecord, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	var records []wifi_manager.DriverScanRecord
	var current *scanEntry

	flush := func() {
		if current != nil && len(current.record.SSID) > 0 {
			records = append(records, current.finish())
		}
		current = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "BSS ") {
			flush()
			matches := bssRegex.FindStringSubmatch(line)
			if len(matches) < 2 {
				logger.WithField("line", line).Warn("Could not extract BSSID from line")
				continue
			}
			mac, err := net.ParseMAC(matches[1])
			if err != nil {
				logger.WithError(err).WithField("bssid", matches[1]).Warn("Invalid BSSID in scan output")
				continue
			}
			current = &scanEntry{record: wifi_manager.DriverScanRecord{BSSID: []byte(mac)}}
			continue
		}
		if current == nil {
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "SSID:"):
			if ssid := strings.TrimSpace(strings.TrimPrefix(trimmed, "SSID:")); ssid != "" {
				current.record.SSID = []byte(ssid)
			}
		case strings.HasPrefix(trimmed, "signal:"):
			current.record.RSSI = parseSignal(strings.TrimPrefix(trimmed, "signal:"))
		case strings.HasPrefix(trimmed, "freq:"):
			freq, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(trimmed, "freq:")), 64)
			if err == nil {
				current.record.Frequency = int(freq)
			}
		case strings.HasPrefix(trimmed, "DS Parameter set: channel"):
			ch, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(trimmed, "DS Parameter set: channel")))
			if err == nil {
				current.record.Channel = ch
			}
		case strings.HasPrefix(trimmed, "* primary channel:"):
			ch, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(trimmed, "* primary channel:")))
			if err == nil {
				current.record.Channel = ch
			}
		case strings.HasPrefix(trimmed, "capability:"):
			current.privacy = strings.Contains(trimmed, "Privacy")
		case strings.HasPrefix(trimmed, "RSN:"):
			current.rsn = true
		case strings.HasPrefix(trimmed, "WPA:"):
			current.wpa = true
		case strings.Contains(trimmed, "Authentication suites:"):
			if strings.Contains(trimmed, "SAE") && !strings.Contains(trimmed, "PSK") {
				current.sae = true
			}
		case strings.Contains(trimmed, "Pairwise ciphers:"):
			current.ccmp = current.ccmp || strings.Contains(trimmed, "CCMP")
			current.tkip = current.tkip || strings.Contains(trimmed, "TKIP")
		}
	}
	flush()

	return records, scanner.Err()
}

// parseLinkOutput parses `iw dev <if> link`.
func parseLinkOutput(output string) linkStatus {
	var status linkStatus
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Not connected"):
			return linkStatus{}
		case strings.HasPrefix(trimmed, "Connected to"):
			status.Connected = true
			if m := linkRegex.FindStringSubmatch(trimmed); len(m) > 1 {
				status.BSSID = strings.ToLower(m[1])
			}
		case strings.HasPrefix(trimmed, "SSID:"):
			parts := strings.SplitN(trimmed, ":", 2)
			status.SSID = strings.TrimSpace(parts[1])
		case strings.HasPrefix(trimmed, "signal:"):
			status.Signal = parseSignal(strings.TrimPrefix(trimmed, "signal:"))
		case strings.HasPrefix(trimmed, "freq:"):
			freq, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(trimmed, "freq:")), 64)
			if err == nil {
				status.Frequency = int(freq)
			}
		}
	}
	return status
}

// parseStationDump returns the station MACs of `iw dev <if> station dump`.
func parseStationDump(output string) []string {
	var stations []string
	for _, line := range strings.Split(output, "\n") {
		if m := stationRegex.FindStringSubmatch(strings.TrimSpace(line)); len(m) > 1 {
			stations = append(stations, strings.ToLower(m[1]))
		}
	}
	return stations
}

func parseSignal(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(s), "dBm")
	signal, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"signal_str": s,
			"error":      err,
		}).Warn("Failed to parse signal strength")
		return 0
	}
	return int(signal)
}

func channelFromFrequency(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq <= 2472:
		return (freq-2412)/5 + 1
	case freq >= 5160 && freq <= 5885:
		return (freq - 5000) / 5
	default:
		return 0
	}
}
