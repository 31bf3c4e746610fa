package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/ardubridge/pkg/devices"
	"github.com/robotalks/ardubridge/pkg/firmware"
	"github.com/robotalks/ardubridge/pkg/framework"
	"github.com/robotalks/ardubridge/pkg/link"
	"github.com/robotalks/ardubridge/pkg/sim"
	"github.com/robotalks/ardubridge/pkg/toolchain"
)

func fakeCLI(t *testing.T, body string) (path, calls string) {
	dir := t.TempDir()
	path = filepath.Join(dir, "arduino-cli")
	calls = filepath.Join(dir, "calls")
	script := "#!/bin/sh\necho \"$@\" >> " + calls + "\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return
}

func countCalls(t *testing.T, path string) int {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
}

func newTestArduino(t *testing.T, cliPath string) *Arduino {
	cfg := NewConfig()
	cfg.Port = "/dev/ttyFAKE0"
	cfg.Board = "arduino:avr:uno"
	cfg.CLIPath = cliPath
	cfg.CLIArgs = ""
	cfg.StampDir = t.TempDir()
	cfg.Timeout = time.Second
	cfg.ResetDelay = 0
	a, err := cfg.NewArduino()
	require.NoError(t, err)
	a.SketchDir = t.TempDir()
	a.Opener = func(*link.PortConfig) (link.Port, error) {
		return sim.New(cfg.Firmware).Connect(), nil
	}
	t.Cleanup(func() {
		a.Cleanup(context.Background())
	})
	return a
}

func TestRenderIsCachedUntilDeclare(t *testing.T) {
	a := newTestArduino(t, "")
	_, err := devices.NewLed(a, 13)
	require.NoError(t, err)
	p1, err := a.Render()
	require.NoError(t, err)
	p2, err := a.Render()
	require.NoError(t, err)
	assert.True(t, p1 == p2)

	_, err = devices.NewButton(a, 2)
	require.NoError(t, err)
	p3, err := a.Render()
	require.NoError(t, err)
	assert.False(t, p1 == p3)
	assert.NotEqual(t, p1.Stamp, p3.Stamp)
	assert.Len(t, a.Devices(), 2)
	assert.Len(t, a.Summary(), 2)
}

func TestReservedPins(t *testing.T) {
	a := newTestArduino(t, "")
	_, err := devices.NewLed(a, 1)
	require.True(t, errors.Is(err, firmware.ErrExcludedPin), "got %v", err)
	_, err = devices.NewButton(a, 0)
	require.True(t, errors.Is(err, firmware.ErrExcludedPin), "got %v", err)
	assert.Empty(t, a.Devices())

	_, err = devices.NewLed(a, 13)
	require.NoError(t, err)
	assert.Len(t, a.Devices(), 1)
}

func TestBuildSkipsFlashedProgram(t *testing.T) {
	tool, calls := fakeCLI(t, "true")
	a := newTestArduino(t, tool)
	_, err := devices.NewLed(a, 13)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := a.Build(ctx, false)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, countCalls(t, calls))
	prog, err := a.Render()
	require.NoError(t, err)
	stamp, err := a.Stamps().Load("/dev/ttyFAKE0")
	require.NoError(t, err)
	assert.Equal(t, prog.Stamp, stamp)

	res, err = a.Build(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 1, countCalls(t, calls))

	res, err = a.Build(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, countCalls(t, calls))
}

func TestBuildUnavailable(t *testing.T) {
	a := newTestArduino(t, filepath.Join(t.TempDir(), "missing-cli"))
	_, err := devices.NewLed(a, 14)
	require.NoError(t, err)

	res, err := a.Build(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, toolchain.Unavailable, res.Outcome)
	var unavailable *toolchain.UnavailableError
	require.True(t, errors.As(res.Err(), &unavailable))

	prog, err := a.Render()
	require.NoError(t, err)
	data, err := os.ReadFile(res.SketchPath)
	require.NoError(t, err)
	assert.Equal(t, prog.Text, string(data))
	stamp, err := a.Stamps().Load("/dev/ttyFAKE0")
	require.NoError(t, err)
	assert.Empty(t, stamp)
}

func TestBuildReattaches(t *testing.T) {
	tool, _ := fakeCLI(t, "true")
	a := newTestArduino(t, tool)
	_, err := devices.NewLed(a, 13)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.Attach(ctx))
	before := a.Session()
	require.NotNil(t, before)

	_, err = a.Build(ctx, false)
	require.NoError(t, err)
	after := a.Session()
	require.NotNil(t, after)
	assert.False(t, before == after)
	prog, err := a.Render()
	require.NoError(t, err)
	assert.Equal(t, prog.Stamp, after.ExpectedStamp())
}

func TestBuildKeepsEmulator(t *testing.T) {
	tool, calls := fakeCLI(t, "true")
	a := newTestArduino(t, tool)
	opened := 0
	a.Opener = func(*link.PortConfig) (link.Port, error) {
		opened++
		return nil, errors.New("no serial port")
	}
	led, err := devices.NewLed(a, 13)
	require.NoError(t, err)
	bench := a.Simulate()
	before := a.Session()
	ctx := context.Background()

	res, err := a.Build(ctx, false)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, countCalls(t, calls))
	assert.Equal(t, 0, opened)
	assert.True(t, before == a.Session())

	require.NoError(t, led.TurnOn(ctx))
	assert.True(t, bench.Level(13))
}

func TestAttachReplacesEmulator(t *testing.T) {
	a := newTestArduino(t, "")
	_, err := devices.NewLed(a, 13)
	require.NoError(t, err)
	a.Simulate()
	require.NotNil(t, a.Emulator())

	require.NoError(t, a.Attach(context.Background()))
	assert.Nil(t, a.Emulator())
	assert.NotNil(t, a.Session())
}

func TestAttachVerify(t *testing.T) {
	a := newTestArduino(t, "")
	a.cfg.Verify = true
	_, err := devices.NewLed(a, 13)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.Attach(ctx), "nothing known about the port")
	require.NoError(t, a.Detach())

	require.NoError(t, a.Stamps().Save("/dev/ttyFAKE0", "another program"))
	err = a.Attach(ctx)
	require.True(t, errors.Is(err, link.ErrVersionMismatch), "got %v", err)
	assert.Nil(t, a.Session())

	prog, err := a.Render()
	require.NoError(t, err)
	require.NoError(t, a.Stamps().Save("/dev/ttyFAKE0", prog.Stamp))
	require.NoError(t, a.Attach(ctx))
	assert.NotNil(t, a.Session())
}

func TestSimulateAndInvoke(t *testing.T) {
	a := newTestArduino(t, "")
	ctx := context.Background()
	_, err := a.Exchange(ctx, link.Request{Command: 0})
	require.True(t, errors.Is(err, ErrNotAttached))

	led, err := devices.NewLed(a, 13)
	require.NoError(t, err)
	require.NoError(t, a.Register("led", led))
	require.Error(t, a.Register("led", led))
	bench := a.Simulate()

	out, err := a.Invoke(ctx, "led", "turn_on")
	require.NoError(t, err)
	assert.Equal(t, "true", out)
	assert.True(t, bench.Level(13))
	assert.Equal(t, []string{"led"}, a.DeviceNames())

	_, err = a.Invoke(ctx, "lamp", "turn_on")
	require.True(t, errors.Is(err, ErrUnknownDevice))
}

func TestCleanup(t *testing.T) {
	a := newTestArduino(t, "")
	led, err := devices.NewLed(a, 13)
	require.NoError(t, err)
	bench := a.Simulate()
	ctx := context.Background()
	require.NoError(t, led.TurnOn(ctx))

	var order []string
	a.OnCleanup(func(ctx context.Context) error {
		order = append(order, "first")
		return errors.New("first failed")
	})
	a.OnCleanup(func(ctx context.Context) error {
		order = append(order, "led")
		return led.TurnOff(ctx)
	})
	err = a.Cleanup(ctx)
	var agg *framework.AggregatedError
	require.True(t, errors.As(err, &agg))
	assert.Len(t, agg.Errors, 1)
	assert.Equal(t, []string{"led", "first"}, order)
	assert.False(t, bench.Level(13))
	assert.Nil(t, a.Session())
	require.NoError(t, a.Cleanup(ctx))
}

func TestRequiredLibraries(t *testing.T) {
	a := newTestArduino(t, "")
	_, err := devices.NewServoMotor(a, 9)
	require.NoError(t, err)
	_, err = devices.NewDHT11(a, 4)
	require.NoError(t, err)
	_, err = devices.NewLed(a, 13)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Servo": "", "DHT sensor library": ""}, a.RequiredLibraries())
}

func TestStampStore(t *testing.T) {
	s := NewStampStore(filepath.Join(t.TempDir(), "stamps"))
	stamp, err := s.Load("/dev/ttyACM0")
	require.NoError(t, err)
	assert.Empty(t, stamp)

	require.NoError(t, s.Save("/dev/ttyACM0", "abc"))
	require.NoError(t, s.Save("COM3", "def"))
	stamp, err = s.Load("/dev/ttyACM0")
	require.NoError(t, err)
	assert.Equal(t, "abc", stamp)
	stamp, err = s.Load("COM3")
	require.NoError(t, err)
	assert.Equal(t, "def", stamp)

	require.NoError(t, s.Forget("/dev/ttyACM0"))
	require.NoError(t, s.Forget("/dev/ttyACM0"))
	stamp, err = s.Load("/dev/ttyACM0")
	require.NoError(t, err)
	assert.Empty(t, stamp)
}
