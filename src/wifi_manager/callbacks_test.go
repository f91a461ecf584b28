package wifi_manager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterBeforeInit(t *testing.T) {
	h := newTestHarness(t)

	err := h.manager.RegisterCallbacks(&Callbacks{})
	assert.True(t, errors.Is(err, ErrDeinitialized))
	err = h.manager.UnregisterCallbacks(&Callbacks{})
	assert.True(t, errors.Is(err, ErrDeinitialized))
}

func TestRegisterNil(t *testing.T) {
	h := initialized(t)
	assert.Equal(t, ResultInvalidArgs, ResultOf(h.manager.RegisterCallbacks(nil)))
	assert.Equal(t, ResultInvalidArgs, ResultOf(h.manager.UnregisterCallbacks(nil)))
}

func TestCallbackSlots(t *testing.T) {
	var d callbackDispatcher
	primary := &Callbacks{}
	d.reset(primary)

	first, second, third := &Callbacks{}, &Callbacks{}, &Callbacks{}
	require.NoError(t, d.register(first))
	require.NoError(t, d.register(second))

	err := d.register(third)
	assert.Equal(t, ResultFail, ResultOf(err), "all slots in use")

	err = d.register(first)
	assert.Equal(t, ResultFail, ResultOf(err), "duplicate registration")

	err = d.unregister(primary)
	assert.Equal(t, ResultFail, ResultOf(err), "slot 0 is permanent")

	err = d.unregister(third)
	assert.True(t, errors.Is(err, ErrCallbackNotRegistered))

	require.NoError(t, d.unregister(first))
	require.NoError(t, d.register(third))
	assert.Same(t, third, d.slots[1])
	assert.Same(t, second, d.slots[2])
}

func TestUnregisterPrimaryThroughManager(t *testing.T) {
	h := newTestHarness(t)
	h.driver.On("Init", h.manager).Return(nil)
	h.driver.On("SetAutoConnect", false).Return(nil)
	h.driver.On("StartSTA").Return(nil)
	h.driver.On("GetInfo").Return(DriverInfo{MAC: testMAC}, nil)
	h.store.On("Init").Return(nil)

	primary := h.recorder.callbacks()
	require.NoError(t, h.manager.Init(primary))

	err := h.manager.UnregisterCallbacks(primary)
	assert.Equal(t, ResultFail, ResultOf(err))
}

func TestBroadcastCountsOncePerEvent(t *testing.T) {
	h := initialized(t)
	extra1, extra2 := &callbackRecorder{}, &callbackRecorder{}
	require.NoError(t, h.manager.RegisterCallbacks(extra1.callbacks()))
	require.NoError(t, h.manager.RegisterCallbacks(extra2.callbacks()))

	h.connected(t, nil)

	for _, rec := range []*callbackRecorder{h.recorder, extra1, extra2} {
		assert.Equal(t, []Result{ResultSuccess}, rec.connectedResults())
	}
	stats, err := h.manager.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Connect)
}

func TestBroadcastSkipsNilMembers(t *testing.T) {
	var d callbackDispatcher
	called := 0
	d.reset(&Callbacks{})
	require.NoError(t, d.register(&Callbacks{SoftAPStaJoined: func() { called++ }}))

	d.softAPStaJoined()
	d.softAPStaLeft()

	assert.Equal(t, 1, called)
	stats := d.stats.snapshot()
	assert.Equal(t, uint64(1), stats.Joined)
	assert.Equal(t, uint64(1), stats.Left)
}

func TestConvertScanRecords(t *testing.T) {
	aps, err := convertScanRecords([]DriverScanRecord{
		{SSID: []byte("one"), BSSID: []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}, RSSI: -40, Channel: 1, Frequency: 2412},
		{SSID: []byte(""), BSSID: []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x02}, RSSI: -80, Channel: 36, Frequency: 5180},
	})
	require.NoError(t, err)
	require.Len(t, aps, 2)
	assert.Equal(t, "de:ad:be:ef:00:01", aps[0].BSSID)
	assert.Equal(t, 5180, aps[1].Frequency)

	_, err = convertScanRecords([]DriverScanRecord{{SSID: make([]byte, 33), BSSID: make([]byte, 6)}})
	assert.Error(t, err)
}
