package ble

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavecam/internal/clock"
	"wavecam/internal/config"
	"wavecam/internal/device"
	"wavecam/internal/hardware"
)

type fixedCounter uint32

func (c fixedCounter) Count() uint32 { return uint32(c) }

func newTestServer() (*Server, *device.State, *hardware.MockController) {
	state := device.NewState()
	hw := hardware.NewMockController(1)
	s := NewServer(config.BLEConfig{LocalName: "WaveCam"}, state, &clock.Manual{T: 7}, hw, fixedCounter(3), "boot-1")
	return s, state, hw
}

func TestApplyCommand(t *testing.T) {
	s, state, _ := newTestServer()

	require.NoError(t, s.applyCommand([]byte(`{"action":"toggle_led"}`)))
	assert.True(t, state.IndicatorEnabled())
	assert.Equal(t, clock.Tick(7), state.IndicatorChangedAt())

	require.NoError(t, s.applyCommand([]byte(`{"action":"wave"}`)))
	assert.True(t, state.GestureRequested())

	// repeat wave is accepted and changes nothing
	require.NoError(t, s.applyCommand([]byte(`{"action":"wave"}`)))
	assert.True(t, state.GestureRequested())
}

func TestApplyCommand_Rejects(t *testing.T) {
	s, state, _ := newTestServer()

	assert.Error(t, s.applyCommand([]byte(`not json`)))
	assert.ErrorContains(t, s.applyCommand([]byte(`{"action":"dance"}`)), "unknown action")
	assert.False(t, state.IndicatorEnabled())
	assert.False(t, state.GestureRequested())
}

func TestApplyWifiSetup(t *testing.T) {
	s, _, hw := newTestServer()

	require.NoError(t, s.applyWifiSetup([]byte(`{"ssid":"lab","password":"secret"}`)))
	assert.Equal(t, hardware.WifiParameters{SSID: "lab", Password: "secret"}, hw.WifiDetails())

	assert.Error(t, s.applyWifiSetup([]byte(`{"password":"x"}`)))
	assert.Error(t, s.applyWifiSetup([]byte(`{`)))
}

func TestStatusPayload(t *testing.T) {
	s, state, _ := newTestServer()
	state.SetConnectivity(device.Connected)
	state.ToggleIndicator(1)

	data, err := json.Marshal(s.status())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"connected": true,
		"connectivity": "connected",
		"indicator_enabled": true,
		"gesture_active": false,
		"uploads": 3,
		"boot_id": "boot-1"
	}`, string(data))

	state.SetConnectivity(device.Connecting)
	p := s.status()
	assert.False(t, p.Connected)
	assert.Equal(t, "connecting", p.Connectivity)
}

func TestStatusPayload_NoUploader(t *testing.T) {
	state := device.NewState()
	s := NewServer(config.BLEConfig{}, state, &clock.Manual{}, hardware.NewMockController(1), nil, "")
	assert.Zero(t, s.status().Uploads)
}
