package devices

import (
	"context"
	"fmt"
	"sync"

	"github.com/robotalks/ardubridge/pkg/firmware"
)

// KindL293DMotor is the kind of a motor attached to a L293D channel.
const KindL293DMotor = "l293d_motor"

// L293DLines is the number of control lines of a two channel L293D.
const L293DLines = 6

// Direction is the rotating direction of a DC motor.
type Direction int

// Directions.
const (
	Stopped Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	}
	return "stopped"
}

// L293D is a two channel DC motor driver. Each channel uses three lines
// (EN, A, B) and is declared when a motor is attached.
type L293D struct {
	arduino Arduino
	pins    [L293DLines]int
	motors  []*DCMotor
	lock    sync.Mutex
}

// NewL293D creates a driver on pins in the order
// EN1, IN1, IN2, EN2, IN3, IN4.
func NewL293D(a Arduino, pins []int) (*L293D, error) {
	if len(pins) != L293DLines {
		return nil, &firmware.RegistrationError{Kind: "l293d", Pins: pins, Err: firmware.ErrCapacity}
	}
	seen := make(map[int]bool)
	for _, pin := range pins {
		if seen[pin] {
			return nil, &firmware.RegistrationError{Kind: "l293d", Pins: pins, Err: firmware.ErrDuplicatePin}
		}
		seen[pin] = true
	}
	drv := &L293D{arduino: a}
	copy(drv.pins[:], pins)
	return drv, nil
}

// Pins returns the control lines.
func (d *L293D) Pins() []int {
	return append([]int(nil), d.pins[:]...)
}

// Motors returns the attached motors in channel order.
func (d *L293D) Motors() []*DCMotor {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]*DCMotor(nil), d.motors...)
}

// AttachMotor declares a motor on the next free channel.
func (d *L293D) AttachMotor() (*DCMotor, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	channel := d.nextChannel()
	if channel > L293DLines/3 {
		return nil, &firmware.RegistrationError{Kind: KindL293DMotor, Pins: d.pins[:], Err: firmware.ErrCapacity}
	}
	lines := d.pins[(channel-1)*3 : channel*3]
	en, a, b := lines[0], lines[1], lines[2]
	dev, err := declare(d.arduino, firmware.DeviceSpec{
		Kind:  KindL293DMotor,
		Pins:  []firmware.Pin{{Number: en, Mode: firmware.PinOutput}, {Number: a, Mode: firmware.PinOutput}, {Number: b, Mode: firmware.PinOutput}},
		Lines: 3,
		Methods: []firmware.Method{
			{Name: "forward", Body: fmt.Sprintf("digitalWrite(%d, HIGH);\ndigitalWrite(%d, LOW);\ndigitalWrite(%d, HIGH);", a, b, en)},
			{Name: "backward", Body: fmt.Sprintf("digitalWrite(%d, LOW);\ndigitalWrite(%d, HIGH);\ndigitalWrite(%d, HIGH);", a, b, en)},
			{Name: "stop", Body: fmt.Sprintf("digitalWrite(%d, LOW);", en)},
		},
	})
	if err != nil {
		return nil, err
	}
	m := &DCMotor{device: dev, Channel: channel}
	d.motors = append(d.motors, m)
	return m, nil
}

// nextChannel finds the first channel not declared yet, looking at sibling
// motors already on the board.
func (d *L293D) nextChannel() int {
	used := make(map[int]bool)
	for _, sibling := range d.arduino.ByKind(KindL293DMotor) {
		pins := sibling.PinNumbers()
		if len(pins) == 0 {
			continue
		}
		for n := 0; n < L293DLines; n += 3 {
			if pins[0] == d.pins[n] {
				used[n/3+1] = true
			}
		}
	}
	channel := 1
	for used[channel] {
		channel++
	}
	return channel
}

// Stop stops all attached motors.
func (d *L293D) Stop(ctx context.Context) error {
	for _, m := range d.Motors() {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DCMotor is a motor on a L293D channel.
type DCMotor struct {
	device
	Channel   int
	direction Direction
	lock      sync.Mutex
}

// Direction returns the last direction set.
func (m *DCMotor) Direction() Direction {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.direction
}

// Forward runs the motor forward.
func (m *DCMotor) Forward(ctx context.Context) error {
	return m.run(ctx, Forward, "forward")
}

// Backward runs the motor backward.
func (m *DCMotor) Backward(ctx context.Context) error {
	return m.run(ctx, Backward, "backward")
}

// Stop disables the channel.
func (m *DCMotor) Stop(ctx context.Context) error {
	return m.run(ctx, Stopped, "stop")
}

func (m *DCMotor) run(ctx context.Context, dir Direction, method string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if err := m.call(ctx, method); err != nil {
		return err
	}
	m.direction = dir
	return nil
}

// Invoke implements Device.
func (m *DCMotor) Invoke(ctx context.Context, method string, args ...string) (string, error) {
	if err := expectArgs(method, args, 0); err != nil {
		return "", err
	}
	var err error
	switch method {
	case "forward":
		err = m.Forward(ctx)
	case "backward":
		err = m.Backward(ctx)
	case "stop":
		err = m.Stop(ctx)
	case "direction":
	default:
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownMethod, m.desc.Kind, method)
	}
	if err != nil {
		return "", err
	}
	return m.Direction().String(), nil
}
