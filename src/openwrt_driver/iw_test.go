package openwrt_driver

import (
	"net"
	"testing"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scanOutput = `BSS 00:11:22:33:44:55(on phy0-sta0)
	last seen: 123.456s [boottime]
	TSF: 0 usec (0d, 00:00:00)
	freq: 2437
	beacon interval: 100 TUs
	capability: ESS Privacy ShortSlotTime (0x0411)
	signal: -48.00 dBm
	SSID: HomeNet
	DS Parameter set: channel 6
	RSN:	 * Version: 1
		 * Group cipher: CCMP
		 * Pairwise ciphers: CCMP
		 * Authentication suites: PSK
BSS 66:77:88:99:aa:bb(on phy0-sta0) -- associated
	freq: 5180
	capability: ESS (0x0001)
	signal: -71.00 dBm
	SSID: CoffeeShop
BSS de:ad:be:ef:00:01(on phy0-sta0)
	freq: 2412
	capability: ESS Privacy (0x0011)
	signal: -80.00 dBm
	SSID:
BSS de:ad:be:ef:00:02(on phy0-sta0)
	freq: 2462.0
	capability: ESS Privacy (0x0011)
	signal: -66.00 dBm
	SSID: Legacy
	WPA:	 * Version: 1
		 * Group cipher: TKIP
		 * Pairwise ciphers: TKIP
		 * Authentication suites: PSK
	RSN:	 * Version: 1
		 * Group cipher: TKIP
		 * Pairwise ciphers: CCMP TKIP
		 * Authentication suites: PSK
BSS de:ad:be:ef:00:03(on phy0-sta0)
	freq: 2412
	capability: ESS Privacy (0x0011)
	signal: -60.00 dBm
	SSID: Modern
	RSN:	 * Version: 1
		 * Pairwise ciphers: CCMP
		 * Authentication suites: SAE
`

func TestParseScanOutput(t *testing.T) {
	records, err := parseScanOutput([]byte(scanOutput))
	require.NoError(t, err)
	require.Len(t, records, 4, "hidden network is skipped")

	home := records[0]
	assert.Equal(t, "HomeNet", string(home.SSID))
	assert.Equal(t, "00:11:22:33:44:55", net.HardwareAddr(home.BSSID).String())
	assert.Equal(t, -48, home.RSSI)
	assert.Equal(t, 6, home.Channel)
	assert.Equal(t, 2437, home.Frequency)
	assert.Equal(t, wifi_manager.AuthWPA2PSK, home.AuthType)
	assert.Equal(t, wifi_manager.CryptoAES, home.CryptoType)

	coffee := records[1]
	assert.Equal(t, "CoffeeShop", string(coffee.SSID))
	assert.Equal(t, 36, coffee.Channel, "derived from frequency")
	assert.Equal(t, wifi_manager.AuthOpen, coffee.AuthType)
	assert.Equal(t, wifi_manager.CryptoNone, coffee.CryptoType)

	legacy := records[2]
	assert.Equal(t, 11, legacy.Channel)
	assert.Equal(t, wifi_manager.AuthWPAAndWPA2PSK, legacy.AuthType)
	assert.Equal(t, wifi_manager.CryptoTKIPAndAES, legacy.CryptoType)

	assert.Equal(t, wifi_manager.AuthWPA3PSK, records[3].AuthType)
}

func TestParseScanOutputEmpty(t *testing.T) {
	records, err := parseScanOutput(nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

const linkConnected = `Connected to 00:11:22:33:44:55 (on phy0-sta0)
	SSID: HomeNet
	freq: 2437
	RX: 1234 bytes (10 packets)
	TX: 567 bytes (5 packets)
	signal: -52 dBm
	tx bitrate: 72.2 MBit/s
`

func TestParseLinkOutput(t *testing.T) {
	status := parseLinkOutput(linkConnected)
	assert.True(t, status.Connected)
	assert.Equal(t, "HomeNet", status.SSID)
	assert.Equal(t, "00:11:22:33:44:55", status.BSSID)
	assert.Equal(t, -52, status.Signal)
	assert.Equal(t, 2437, status.Frequency)

	assert.Equal(t, linkStatus{}, parseLinkOutput("Not connected.\n"))
}

func TestParseStationDump(t *testing.T) {
	out := "Station AA:BB:CC:DD:EE:01 (on phy0-ap0)\n\tinactive time:\t10 ms\nStation aa:bb:cc:dd:ee:02 (on phy0-ap0)\n"
	assert.Equal(t, []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"}, parseStationDump(out))
	assert.Empty(t, parseStationDump(""))
}

func TestChannelFromFrequency(t *testing.T) {
	tests := map[int]int{2412: 1, 2437: 6, 2472: 13, 2484: 14, 5180: 36, 5745: 149, 900: 0}
	for freq, want := range tests {
		assert.Equal(t, want, channelFromFrequency(freq), "freq %d", freq)
	}
}

func TestUCIEncryption(t *testing.T) {
	tests := []struct {
		auth   wifi_manager.AuthType
		crypto wifi_manager.CryptoType
		want   string
	}{
		{wifi_manager.AuthOpen, wifi_manager.CryptoNone, "none"},
		{wifi_manager.AuthWPA2PSK, wifi_manager.CryptoAES, "psk2+ccmp"},
		{wifi_manager.AuthWPA2PSK, wifi_manager.CryptoUnknown, "psk2"},
		{wifi_manager.AuthWPAPSK, wifi_manager.CryptoTKIP, "psk+tkip"},
		{wifi_manager.AuthWPAAndWPA2PSK, wifi_manager.CryptoTKIPAndAES, "psk-mixed+tkip+ccmp"},
		{wifi_manager.AuthWPA3PSK, wifi_manager.CryptoAES, "sae"},
		{wifi_manager.AuthWEPShared, wifi_manager.CryptoWEP128, "wep+shared"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, uciEncryption(tt.auth, tt.crypto), "%s/%s", tt.auth, tt.crypto)
	}
}
