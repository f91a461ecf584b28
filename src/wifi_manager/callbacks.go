package wifi_manager

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const maxCallbackSlots = 3

// statsCounters are read without the dispatch lock by the metrics collector.
type statsCounters struct {
	connect     atomic.Uint64
	connectFail atomic.Uint64
	disconnect  atomic.Uint64
	reconnect   atomic.Uint64
	joined      atomic.Uint64
	left        atomic.Uint64
	scanDone    atomic.Uint64
}

func (s *statsCounters) snapshot() Stats {
	return Stats{
		Connect:     s.connect.Load(),
		ConnectFail: s.connectFail.Load(),
		Disconnect:  s.disconnect.Load(),
		Reconnect:   s.reconnect.Load(),
		Joined:      s.joined.Load(),
		Left:        s.left.Load(),
		ScanDone:    s.scanDone.Load(),
	}
}

// callbackDispatcher fans events out to the registered listener sets.
// Slot 0 belongs to Init and is never unregistered.
type callbackDispatcher struct {
	slots [maxCallbackSlots]*Callbacks
	stats statsCounters
}

func (d *callbackDispatcher) reset(primary *Callbacks) {
	d.slots = [maxCallbackSlots]*Callbacks{primary}
}

func (d *callbackDispatcher) clear() {
	d.slots = [maxCallbackSlots]*Callbacks{}
}

func (d *callbackDispatcher) register(cb *Callbacks) error {
	free := -1
	for i, slot := range d.slots {
		if slot == cb {
			return newError(ResultFail, "register_cb", errors.New("callbacks already registered"))
		}
		if i > 0 && slot == nil && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return newError(ResultFail, "register_cb", fmt.Errorf("all %d callback slots in use", maxCallbackSlots))
	}
	d.slots[free] = cb
	logger.WithField("slot", free).Debug("Registered callback set")
	return nil
}

func (d *callbackDispatcher) unregister(cb *Callbacks) error {
	if d.slots[0] == cb {
		return newError(ResultFail, "unregister_cb", errors.New("primary callback set cannot be removed"))
	}
	for i := 1; i < maxCallbackSlots; i++ {
		if d.slots[i] == cb {
			d.slots[i] = nil
			logger.WithField("slot", i).Debug("Unregistered callback set")
			return nil
		}
	}
	return newError(ResultCallbackNotRegistered, "unregister_cb", nil)
}

func (d *callbackDispatcher) each(fn func(cb *Callbacks)) int {
	n := 0
	for _, cb := range d.slots {
		if cb != nil {
			fn(cb)
			n++
		}
	}
	return n
}

func (d *callbackDispatcher) staConnected(result Result) {
	if result == ResultSuccess {
		d.stats.connect.Add(1)
	} else {
		d.stats.connectFail.Add(1)
	}
	n := d.each(func(cb *Callbacks) {
		if cb.StaConnected != nil {
			cb.StaConnected(result)
		}
	})
	logger.WithFields(logrus.Fields{"result": result.String(), "listeners": n}).Debug("Broadcast sta_connected")
}

func (d *callbackDispatcher) staDisconnected(reason DisconnectReason) {
	if reason == DisconnectReasonReconnecting {
		d.stats.reconnect.Add(1)
	} else {
		d.stats.disconnect.Add(1)
	}
	n := d.each(func(cb *Callbacks) {
		if cb.StaDisconnected != nil {
			cb.StaDisconnected(reason)
		}
	})
	logger.WithFields(logrus.Fields{"reason": reason.String(), "listeners": n}).Debug("Broadcast sta_disconnected")
}

func (d *callbackDispatcher) softAPStaJoined() {
	d.stats.joined.Add(1)
	d.each(func(cb *Callbacks) {
		if cb.SoftAPStaJoined != nil {
			cb.SoftAPStaJoined()
		}
	})
}

func (d *callbackDispatcher) softAPStaLeft() {
	d.stats.left.Add(1)
	d.each(func(cb *Callbacks) {
		if cb.SoftAPStaLeft != nil {
			cb.SoftAPStaLeft()
		}
	})
}

// scanDone converts the driver records once and hands every listener the same
// result. A conversion failure is reported as ResultFail with no records.
func (d *callbackDispatcher) scanDone(result DriverResult, records []DriverScanRecord) {
	d.stats.scanDone.Add(1)

	code := ResultSuccess
	var aps []APRecord
	if result != DriverSuccess {
		code = ResultFail
	} else {
		converted, err := convertScanRecords(records)
		if err != nil {
			logger.WithError(err).Warn("Failed to convert scan results")
			code = ResultFail
		} else {
			aps = converted
		}
	}

	n := d.each(func(cb *Callbacks) {
		if cb.ScanDone != nil {
			cb.ScanDone(code, aps)
		}
	})
	logger.WithFields(logrus.Fields{
		"result":    code.String(),
		"ap_count":  len(aps),
		"listeners": n,
	}).Debug("Broadcast scan_done")
}

func convertScanRecords(records []DriverScanRecord) ([]APRecord, error) {
	aps := make([]APRecord, 0, len(records))
	for i, r := range records {
		if len(r.SSID) > maxSSIDLength {
			return nil, fmt.Errorf("record %d: ssid length %d exceeds %d", i, len(r.SSID), maxSSIDLength)
		}
		if len(r.BSSID) != 6 {
			return nil, fmt.Errorf("record %d: bssid length %d, want 6", i, len(r.BSSID))
		}
		aps = append(aps, APRecord{
			SSID:       string(r.SSID),
			BSSID:      net.HardwareAddr(r.BSSID).String(),
			RSSI:       r.RSSI,
			Channel:    r.Channel,
			Frequency:  r.Frequency,
			AuthType:   r.AuthType,
			CryptoType: r.CryptoType,
		})
	}
	return aps, nil
}
