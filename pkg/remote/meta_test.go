package remote

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/ardubridge/pkg/bridge"
	"github.com/robotalks/ardubridge/pkg/devices"
)

func simulatedBoard(t *testing.T) (*bridge.Arduino, *devices.Bench) {
	cfg := bridge.NewConfig()
	cfg.StampDir = t.TempDir()
	cfg.Timeout = time.Second
	a, err := cfg.NewArduino()
	require.NoError(t, err)
	led, err := devices.NewLed(a, 13)
	require.NoError(t, err)
	require.NoError(t, a.Register("status", led))
	button, err := devices.NewButton(a, 2)
	require.NoError(t, err)
	require.NoError(t, a.Register("bumper", button))
	dht, err := devices.NewDHT22(a, 4)
	require.NoError(t, err)
	require.NoError(t, a.Register("climate", dht))
	bench := a.Simulate()
	t.Cleanup(func() {
		a.Cleanup(context.Background())
	})
	return a, bench
}

func TestDescribe(t *testing.T) {
	a, _ := simulatedBoard(t)
	meta := Describe("rover", a)
	assert.Equal(t, "rover", meta.Board)
	assert.Len(t, meta.Stamp, 64)
	require.Len(t, meta.Devices, 3)
	assert.Equal(t, DeviceInfo{
		Name:    "status",
		Kind:    devices.KindLed,
		Pins:    []int{13},
		Methods: []string{"turn_on", "turn_off"},
	}, meta.Devices[0])

	var decoded Meta
	require.NoError(t, json.Unmarshal(meta.Encode(), &decoded))
	assert.Equal(t, *meta, decoded)
}

func TestTelemetry(t *testing.T) {
	a, bench := simulatedBoard(t)
	bench.SetClimate(20, 30)
	bench.SetLevel(2, false)
	var published []byte
	task := &Telemetry{Target: a, Timeout: time.Second, Publish: func(data []byte) error {
		published = data
		return nil
	}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, task.Tick(context.Background(), now))

	var state struct {
		Time    string                 `json:"time"`
		Devices map[string]interface{} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(published, &state))
	assert.Equal(t, "2024-05-01T12:00:00Z", state.Time)
	assert.Equal(t, map[string]interface{}{
		"bumper":  "false",
		"climate": "20 30",
	}, state.Devices)
}
