// Package bridge puts the registry, renderer, toolchain and serial link
// together behind a single board handle.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ardubridge/pkg/devices"
	"github.com/robotalks/ardubridge/pkg/firmware"
	"github.com/robotalks/ardubridge/pkg/framework"
	"github.com/robotalks/ardubridge/pkg/link"
	"github.com/robotalks/ardubridge/pkg/sim"
	"github.com/robotalks/ardubridge/pkg/toolchain"
)

var (
	// ErrNotAttached indicates an exchange without an open session.
	ErrNotAttached = errors.New("not attached")
	// ErrUnknownDevice indicates a device name never registered.
	ErrUnknownDevice = errors.New("unknown device")
)

// Libraries maps headers included by devices to arduino-cli library names.
var Libraries = map[string]string{
	"Servo.h": "Servo",
	"DHT.h":   "DHT sensor library",
}

// Opener opens the serial port of a board.
type Opener func(*link.PortConfig) (link.Port, error)

// Arduino is a board with its declared devices.
type Arduino struct {
	cfg    Config
	reg    *firmware.Registry
	cli    *toolchain.CLI
	stamps *StampStore

	// Opener defaults to link.Open.
	Opener Opener
	// SketchDir is where Build writes the sketch.
	SketchDir string

	progLock sync.Mutex
	prog     *firmware.Program

	lock     sync.RWMutex
	session  *link.Session
	named    map[string]devices.Device
	names    []string
	cleanups []func(context.Context) error
	emulator *sim.Firmware
}

// New creates an Arduino from cfg.
func New(cfg Config) (*Arduino, error) {
	cfg.Firmware = cfg.Firmware.WithDefaults()
	if err := cfg.Firmware.Validate(); err != nil {
		return nil, err
	}
	if cfg.CLIPath == "" {
		cfg.CLIPath = toolchain.DefaultPath
	}
	cli, err := toolchain.NewCLI(cfg.CLIPath, cfg.CLIArgs)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = link.DefaultTimeout
	}
	return &Arduino{
		cfg:       cfg,
		reg:       firmware.NewRegistry().Exclude(cfg.ReservedPins...),
		cli:       cli,
		stamps:    NewStampStore(cfg.StampDir),
		Opener:    link.Open,
		SketchDir: toolchain.SketchDir(),
		named:     make(map[string]devices.Device),
	}, nil
}

// Config returns the configuration the board was created with.
func (a *Arduino) Config() Config {
	return a.cfg
}

// CLI returns the toolchain adapter.
func (a *Arduino) CLI() *toolchain.CLI {
	return a.cli
}

// Stamps returns the stamp store.
func (a *Arduino) Stamps() *StampStore {
	return a.stamps
}

// Registry returns the device registry.
func (a *Arduino) Registry() *firmware.Registry {
	return a.reg
}

// Declare implements devices.Arduino.
func (a *Arduino) Declare(spec firmware.DeviceSpec) (*firmware.Descriptor, error) {
	desc, err := a.reg.Declare(spec)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("Declared %s on pins %v, commands %v", desc.Owner(), desc.PinNumbers(), desc.Commands)
	return desc, nil
}

// NextInstance implements devices.Arduino.
func (a *Arduino) NextInstance(kind string) int {
	return a.reg.NextInstance(kind)
}

// ByKind implements devices.Arduino.
func (a *Arduino) ByKind(kind string) []*firmware.Descriptor {
	return a.reg.ByKind(kind)
}

// Devices returns all declared descriptors in declaration order.
func (a *Arduino) Devices() []*firmware.Descriptor {
	return a.reg.Descriptors()
}

// Register names a device for Invoke.
func (a *Arduino) Register(name string, dev devices.Device) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if _, exist := a.named[name]; exist {
		return fmt.Errorf("device %q already registered", name)
	}
	a.named[name] = dev
	a.names = append(a.names, name)
	return nil
}

// Device finds a registered device.
func (a *Arduino) Device(name string) (devices.Device, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	dev, ok := a.named[name]
	return dev, ok
}

// DeviceNames returns registered names in registration order.
func (a *Arduino) DeviceNames() []string {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return append([]string(nil), a.names...)
}

// Invoke calls a method of a registered device.
func (a *Arduino) Invoke(ctx context.Context, device, method string, args ...string) (string, error) {
	dev, ok := a.Device(device)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}
	return dev.Invoke(ctx, method, args...)
}

// OnCleanup adds fn to be run by Cleanup, in reverse order.
func (a *Arduino) OnCleanup(fn func(context.Context) error) {
	a.lock.Lock()
	a.cleanups = append(a.cleanups, fn)
	a.lock.Unlock()
}

// Render renders the declared devices. The program is reused until a new
// device is declared.
func (a *Arduino) Render() (*firmware.Program, error) {
	a.progLock.Lock()
	defer a.progLock.Unlock()
	if a.prog != nil && !a.prog.Stale(a.reg) {
		return a.prog, nil
	}
	prog, err := firmware.RenderRegistry(a.cfg.Firmware, a.reg)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("Rendered %d devices, stamp %s", len(prog.Descriptors), prog.Stamp)
	a.prog = prog
	return prog, nil
}

// WriteSketch renders and writes the sketch under dir, formatting it when
// configured.
func (a *Arduino) WriteSketch(ctx context.Context, dir string) (string, error) {
	prog, err := a.Render()
	if err != nil {
		return "", err
	}
	path, err := toolchain.WriteSketch(dir, toolchain.DefaultSketchName, prog)
	if err != nil {
		return "", err
	}
	if a.cfg.Format {
		if err := a.cli.Format(ctx, path); err != nil {
			glog.Warningf("Sketch not formatted: %v", err)
		}
	}
	return path, nil
}

// RequiredLibraries returns the arduino-cli libraries the sketch includes.
// Headers without a known library are skipped.
func (a *Arduino) RequiredLibraries() map[string]string {
	libs := make(map[string]string)
	for _, d := range a.reg.Descriptors() {
		for _, f := range d.FragmentsIn(firmware.SlotLibrary) {
			header := strings.TrimSuffix(strings.TrimPrefix(f.Body, "#include <"), ">")
			if name, ok := Libraries[header]; ok {
				libs[name] = ""
			}
		}
	}
	return libs
}

// Build flashes the rendered program unless the port already runs it or
// fresh is set. An open serial session is closed for the upload and reopened
// after, an emulated one is left alone.
func (a *Arduino) Build(ctx context.Context, fresh bool) (*toolchain.Result, error) {
	prog, err := a.Render()
	if err != nil {
		return nil, err
	}
	if !fresh && a.cfg.Port != "" {
		last, err := a.stamps.Load(a.cfg.Port)
		if err != nil {
			glog.Warningf("Read stamp of %s: %v", a.cfg.Port, err)
		}
		if last == prog.Stamp {
			glog.Infof("%s already runs %s, upload skipped", a.cfg.Port, prog.Stamp)
			return &toolchain.Result{Outcome: toolchain.Success, Step: "upload", Skipped: true}, nil
		}
	}

	if a.cfg.InstallLibraries {
		if libs := a.RequiredLibraries(); len(libs) > 0 {
			if _, err := a.cli.EnsureLibraries(ctx, libs); err != nil {
				return toolchain.NewResult("libraries", "", err), nil
			}
		}
	}

	fqbn, err := a.cli.ResolveBoard(ctx, a.cfg.Board)
	if err != nil {
		path, werr := toolchain.WriteSketch(a.SketchDir, toolchain.DefaultSketchName, prog)
		if werr != nil {
			glog.Errorf("Write sketch: %v", werr)
		}
		return toolchain.NewResult("board", path, err), nil
	}

	reattach := a.Session() != nil && a.Emulator() == nil
	if reattach {
		if err := a.Detach(); err != nil {
			glog.Warningf("Detach before upload: %v", err)
		}
	}
	res := a.cli.BuildAndFlashIn(ctx, a.SketchDir, prog, a.cfg.Port, fqbn)
	if res.Outcome == toolchain.Success {
		if err := a.stamps.Save(a.cfg.Port, prog.Stamp); err != nil {
			glog.Errorf("Save stamp of %s: %v", a.cfg.Port, err)
		}
	}
	if reattach {
		if err := a.Attach(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Attach opens the serial port and starts a session. With Verify set, a
// port last flashed with another program is refused, an unknown one is not.
func (a *Arduino) Attach(ctx context.Context) error {
	prog, err := a.Render()
	if err != nil {
		return err
	}
	if a.cfg.Verify {
		last, err := a.stamps.Load(a.cfg.Port)
		if err != nil {
			return err
		}
		if last != "" && last != prog.Stamp {
			return fmt.Errorf("%w: %s runs %q, expected %q", link.ErrVersionMismatch, a.cfg.Port, last, prog.Stamp)
		}
	}
	port, err := a.Opener(&link.PortConfig{
		Device:      a.cfg.Port,
		Baud:        a.cfg.Firmware.BaudRate,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return err
	}
	if a.cfg.ResetDelay > 0 {
		timer := time.NewTimer(a.cfg.ResetDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			port.Close()
			return ctx.Err()
		case <-timer.C:
		}
	}
	glog.Infof("Attached to %s at %d baud", a.cfg.Port, a.cfg.Firmware.BaudRate)
	a.attach(port, prog.Stamp)
	a.lock.Lock()
	fw := a.emulator
	a.emulator = nil
	a.lock.Unlock()
	if fw != nil {
		fw.Close()
	}
	return nil
}

// AttachPort starts a session over port, which the session then owns.
func (a *Arduino) AttachPort(port link.Port) *link.Session {
	var stamp string
	if prog, err := a.Render(); err == nil {
		stamp = prog.Stamp
	}
	return a.attach(port, stamp)
}

func (a *Arduino) attach(port link.Port, stamp string) *link.Session {
	s := link.NewSession(port, a.cfg.Firmware, link.WithTimeout(a.cfg.Timeout), link.WithExpectedStamp(stamp))
	a.lock.Lock()
	prev := a.session
	a.session = s
	a.lock.Unlock()
	if prev != nil {
		prev.Close()
	}
	return s
}

// Simulate attaches to an emulated board running the declared devices and
// returns the simulated hardware.
func (a *Arduino) Simulate() *devices.Bench {
	fw := sim.New(a.cfg.Firmware)
	bench := devices.Simulate(fw, a.Devices())
	a.AttachPort(fw.Connect())
	a.lock.Lock()
	prev := a.emulator
	a.emulator = fw
	a.lock.Unlock()
	if prev != nil {
		prev.Close()
	}
	glog.Info("Attached to emulated board")
	return bench
}

// Emulator returns the emulated board set up by Simulate.
func (a *Arduino) Emulator() *sim.Firmware {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.emulator
}

// Detach closes the session.
func (a *Arduino) Detach() error {
	a.lock.Lock()
	s := a.session
	a.session = nil
	a.lock.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

// Session returns the open session, nil when detached.
func (a *Arduino) Session() *link.Session {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.session
}

// Exchange implements devices.Arduino.
func (a *Arduino) Exchange(ctx context.Context, req link.Request) (string, error) {
	s := a.Session()
	if s == nil {
		return "", ErrNotAttached
	}
	resp, err := s.Exchange(ctx, req)
	if fw := a.Emulator(); fw != nil {
		fw.Settle()
	}
	return resp, err
}

// Resync drains the link until it's quiet for the given duration.
func (a *Arduino) Resync(ctx context.Context, quiet time.Duration) error {
	s := a.Session()
	if s == nil {
		return ErrNotAttached
	}
	return s.Resync(ctx, quiet)
}

// Cleanup runs the cleanup functions while still attached, then detaches.
func (a *Arduino) Cleanup(ctx context.Context) error {
	a.lock.Lock()
	cleanups := a.cleanups
	a.cleanups = nil
	a.lock.Unlock()

	var errs framework.AggregatedError
	for n := len(cleanups) - 1; n >= 0; n-- {
		errs.Add(cleanups[n](ctx))
	}
	errs.Add(a.Detach())
	a.lock.Lock()
	fw := a.emulator
	a.emulator = nil
	a.lock.Unlock()
	if fw != nil {
		errs.Add(fw.Close())
		fw.Wait()
	}
	return errs.Aggregate()
}

// Summary lists declared devices as "owner: pins -> commands" lines.
func (a *Arduino) Summary() []string {
	descs := a.Devices()
	lines := make([]string, 0, len(descs))
	for _, d := range descs {
		cmds := make([]string, len(d.Commands))
		for n, cmd := range d.Commands {
			cmds[n] = fmt.Sprintf("%s=%d", cmd.Method, cmd.ID)
		}
		sort.Strings(cmds)
		lines = append(lines, fmt.Sprintf("%s: pins %v, %s", d.Owner(), d.PinNumbers(), strings.Join(cmds, " ")))
	}
	return lines
}
