// Package manifest describes a board and its devices in YAML.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/ardubridge/pkg/bridge"
	"github.com/robotalks/ardubridge/pkg/devices"
)

// ErrInvalidManifest indicates a manifest that can't be applied.
var ErrInvalidManifest = errors.New("invalid manifest")

// Kinds accepted in a manifest besides the device kinds.
const (
	KindL293D = "l293d"
	KindMotor = "motor"
)

// Manifest is a board description.
type Manifest struct {
	Port           string   `yaml:"port"`
	Board          string   `yaml:"board"`
	Baud           int      `yaml:"baud"`
	CmdTerminator  string   `yaml:"cmd_terminator"`
	DataTerminator string   `yaml:"data_terminator"`
	WhitespaceSub  string   `yaml:"whitespace_sub"`
	Devices        []Device `yaml:"devices"`
}

// Device is a device entry. Pin and Pins are interchangeable for single pin
// devices. Motors name their L293D Driver and optionally the Channel they
// must end up on.
type Device struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name"`
	Pin     *int   `yaml:"pin,omitempty"`
	Pins    []int  `yaml:"pins,omitempty"`
	Channel int    `yaml:"channel,omitempty"`
	Driver  string `yaml:"driver,omitempty"`
}

// PinList merges Pin and Pins.
func (d *Device) PinList() []int {
	if d.Pin != nil {
		return append([]int{*d.Pin}, d.Pins...)
	}
	return d.Pins
}

// Load reads a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names, kinds, pin counts and driver references without
// declaring anything.
func (m *Manifest) Validate() error {
	names := make(map[string]string)
	for n, d := range m.Devices {
		if d.Name == "" {
			return fmt.Errorf("%w: device %d has no name", ErrInvalidManifest, n)
		}
		if _, exist := names[d.Name]; exist {
			return fmt.Errorf("%w: duplicated name %q", ErrInvalidManifest, d.Name)
		}
		pins := d.PinList()
		switch d.Kind {
		case devices.KindLed, devices.KindRelay, devices.KindButton, devices.KindHallEffectSensor,
			devices.KindServoMotor, devices.KindDHT11, devices.KindDHT22:
			if len(pins) != 1 {
				return fmt.Errorf("%w: %s needs one pin, got %v", ErrInvalidManifest, d.Name, pins)
			}
		case KindL293D:
			if len(pins) != devices.L293DLines {
				return fmt.Errorf("%w: %s needs %d pins, got %v", ErrInvalidManifest, d.Name, devices.L293DLines, pins)
			}
		case KindMotor:
			if names[d.Driver] != KindL293D {
				return fmt.Errorf("%w: %s refers to unknown driver %q", ErrInvalidManifest, d.Name, d.Driver)
			}
			if d.Channel < 0 || d.Channel > devices.L293DLines/3 {
				return fmt.Errorf("%w: %s channel %d", ErrInvalidManifest, d.Name, d.Channel)
			}
		default:
			return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidManifest, d.Name, d.Kind)
		}
		names[d.Name] = d.Kind
	}
	return nil
}

// Configure copies the board settings present in the manifest to cfg.
func (m *Manifest) Configure(cfg *bridge.Config) {
	if m.Port != "" {
		cfg.Port = m.Port
	}
	if m.Board != "" {
		cfg.Board = m.Board
	}
	if m.Baud != 0 {
		cfg.Firmware.BaudRate = m.Baud
	}
	if m.CmdTerminator != "" {
		cfg.Firmware.CmdTerminator = m.CmdTerminator
	}
	if m.DataTerminator != "" {
		cfg.Firmware.DataTerminator = m.DataTerminator
	}
	if m.WhitespaceSub != "" {
		cfg.Firmware.WhitespaceSub = m.WhitespaceSub
	}
}

// Apply declares the devices in order, registers them by name on a and
// returns them. Outputs are switched off and motors stopped on cleanup.
func (m *Manifest) Apply(a *bridge.Arduino) (map[string]devices.Device, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	result := make(map[string]devices.Device)
	drivers := make(map[string]*devices.L293D)
	for _, d := range m.Devices {
		pins := d.PinList()
		var (
			dev     devices.Device
			err     error
			cleanup func(context.Context) error
		)
		switch d.Kind {
		case devices.KindLed:
			var sw *devices.Switch
			if sw, err = devices.NewLed(a, pins[0]); err == nil {
				dev, cleanup = sw, sw.TurnOff
			}
		case devices.KindRelay:
			var sw *devices.Switch
			if sw, err = devices.NewRelay(a, pins[0]); err == nil {
				dev, cleanup = sw, sw.TurnOff
			}
		case devices.KindButton:
			dev, err = asDevice(devices.NewButton(a, pins[0]))
		case devices.KindHallEffectSensor:
			dev, err = asDevice(devices.NewHallEffectSensor(a, pins[0]))
		case devices.KindServoMotor:
			dev, err = asDevice(devices.NewServoMotor(a, pins[0]))
		case devices.KindDHT11:
			dev, err = asDevice(devices.NewDHT11(a, pins[0]))
		case devices.KindDHT22:
			dev, err = asDevice(devices.NewDHT22(a, pins[0]))
		case KindL293D:
			var drv *devices.L293D
			if drv, err = devices.NewL293D(a, pins); err == nil {
				drivers[d.Name] = drv
			}
		case KindMotor:
			var motor *devices.DCMotor
			if motor, err = drivers[d.Driver].AttachMotor(); err == nil {
				if d.Channel != 0 && motor.Channel != d.Channel {
					return result, fmt.Errorf("%w: %s landed on channel %d, not %d", ErrInvalidManifest, d.Name, motor.Channel, d.Channel)
				}
				dev, cleanup = motor, motor.Stop
			}
		}
		if err != nil {
			return result, fmt.Errorf("%s: %w", d.Name, err)
		}
		if dev == nil {
			continue
		}
		if err := a.Register(d.Name, dev); err != nil {
			return result, err
		}
		if cleanup != nil {
			a.OnCleanup(cleanup)
		}
		result[d.Name] = dev
	}
	return result, nil
}

func asDevice[T devices.Device](dev T, err error) (devices.Device, error) {
	if err != nil {
		return nil, err
	}
	return dev, nil
}
