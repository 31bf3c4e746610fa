package devices

import (
	"context"
	"fmt"
	"strconv"

	"github.com/robotalks/ardubridge/pkg/firmware"
)

// Kinds of digital inputs.
const (
	KindButton           = "button"
	KindHallEffectSensor = "hall_effect_sensor"
)

// DigitalInput reads the level of a pin, e.g. a button or a hall effect
// sensor.
type DigitalInput struct {
	device
}

// NewButton declares a button on pin with the internal pull-up enabled.
// Read reports false while the button is pressed.
func NewButton(a Arduino, pin int) (*DigitalInput, error) {
	return newDigitalInput(a, KindButton, pin, firmware.PinInputPullUp)
}

// NewHallEffectSensor declares a hall effect sensor on pin.
func NewHallEffectSensor(a Arduino, pin int) (*DigitalInput, error) {
	return newDigitalInput(a, KindHallEffectSensor, pin, firmware.PinInput)
}

func newDigitalInput(a Arduino, kind string, pin int, mode firmware.PinMode) (*DigitalInput, error) {
	d, err := declare(a, firmware.DeviceSpec{
		Kind: kind,
		Pins: pinSpec(pin, mode),
		Methods: []firmware.Method{
			{Name: "read", Body: fmt.Sprintf("sendResponse(String(digitalRead(%d)));", pin)},
		},
	})
	if err != nil {
		return nil, err
	}
	return &DigitalInput{device: d}, nil
}

// Read returns the pin level.
func (i *DigitalInput) Read(ctx context.Context) (bool, error) {
	resp, err := i.query(ctx, "read")
	if err != nil {
		return false, err
	}
	switch resp {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s read %q", ErrSensorRead, i.desc.Kind, resp)
}

// Invoke implements Device.
func (i *DigitalInput) Invoke(ctx context.Context, method string, args ...string) (string, error) {
	if method != "read" {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownMethod, i.desc.Kind, method)
	}
	if err := expectArgs(method, args, 0); err != nil {
		return "", err
	}
	level, err := i.Read(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatBool(level), nil
}
