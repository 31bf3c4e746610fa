package devices

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/robotalks/ardubridge/pkg/firmware"
)

// Kinds of on/off devices.
const (
	KindLed   = "led"
	KindRelay = "relay"
)

// Switch is an output device that is turned on and off, e.g. a LED or a
// relay.
type Switch struct {
	device
	on   bool
	lock sync.Mutex
}

// NewLed declares a LED on pin.
func NewLed(a Arduino, pin int) (*Switch, error) {
	return newSwitch(a, KindLed, pin)
}

// NewRelay declares a relay on pin.
func NewRelay(a Arduino, pin int) (*Switch, error) {
	return newSwitch(a, KindRelay, pin)
}

func newSwitch(a Arduino, kind string, pin int) (*Switch, error) {
	d, err := declare(a, firmware.DeviceSpec{
		Kind: kind,
		Pins: pinSpec(pin, firmware.PinOutput),
		Methods: []firmware.Method{
			{Name: "turn_on", Body: fmt.Sprintf("digitalWrite(%d, HIGH);", pin)},
			{Name: "turn_off", Body: fmt.Sprintf("digitalWrite(%d, LOW);", pin)},
		},
	})
	if err != nil {
		return nil, err
	}
	return &Switch{device: d}, nil
}

// On reports the last state set.
func (s *Switch) On() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.on
}

// TurnOn turns the device on, it does nothing if it's already on.
func (s *Switch) TurnOn(ctx context.Context) error {
	return s.set(ctx, true)
}

// TurnOff turns the device off, it does nothing if it's already off.
func (s *Switch) TurnOff(ctx context.Context) error {
	return s.set(ctx, false)
}

func (s *Switch) set(ctx context.Context, on bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.on == on {
		return nil
	}
	method := "turn_off"
	if on {
		method = "turn_on"
	}
	if err := s.call(ctx, method); err != nil {
		return err
	}
	s.on = on
	return nil
}

// Invoke implements Device.
func (s *Switch) Invoke(ctx context.Context, method string, args ...string) (string, error) {
	if err := expectArgs(method, args, 0); err != nil {
		return "", err
	}
	var err error
	switch method {
	case "turn_on":
		err = s.TurnOn(ctx)
	case "turn_off":
		err = s.TurnOff(ctx)
	case "state":
	default:
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownMethod, s.desc.Kind, method)
	}
	if err != nil {
		return "", err
	}
	return strconv.FormatBool(s.On()), nil
}
