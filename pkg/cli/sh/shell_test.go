package sh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/ardubridge/pkg/bridge"
	"github.com/robotalks/ardubridge/pkg/manifest"
)

func TestCallAndDevices(t *testing.T) {
	cfg := bridge.NewConfig()
	cfg.StampDir = t.TempDir()
	cfg.Timeout = time.Second
	a, err := cfg.NewArduino()
	require.NoError(t, err)
	m, err := manifest.Parse([]byte("devices:\n  - {kind: relay, name: pump, pin: 7}\n  - {kind: servo_motor, name: pan, pin: 9}"))
	require.NoError(t, err)
	_, err = m.Apply(a)
	require.NoError(t, err)
	s := &Shell{Arduino: a, Timeout: time.Second}
	defer a.Cleanup(context.Background())
	ctx := context.Background()

	_, err = s.Call(ctx, "pump", "turn_on")
	require.True(t, errors.Is(err, ErrNoTarget))

	bench := a.Simulate()
	out, err := s.Call(ctx, "pan", "rotate", "120")
	require.NoError(t, err)
	assert.Equal(t, "120", out)
	assert.Equal(t, 120, bench.Angle(9))

	lines := s.Devices()
	require.Len(t, lines, 2)
	assert.Equal(t, DeviceLine{
		Name:    "pump",
		Owner:   "relay_0",
		Pins:    []int{7},
		Methods: []string{"turn_on=0", "turn_off=1"},
	}, lines[0])
	assert.Equal(t, []string{"rotate=2"}, lines[1].Methods)
}
