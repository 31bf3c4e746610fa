package devices

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/robotalks/ardubridge/pkg/firmware"
)

// KindServoMotor is the kind of ServoMotor.
const KindServoMotor = "servo_motor"

// Servo angle range in degrees.
const (
	MinAngle = 0
	MaxAngle = 180
)

// ServoMotor is a hobby servo driven by the Servo library.
type ServoMotor struct {
	device
	angle int
	lock  sync.Mutex
}

// NewServoMotor declares a servo on pin, it starts at 0 degrees.
func NewServoMotor(a Arduino, pin int) (*ServoMotor, error) {
	v := fmt.Sprintf("servo%d", a.NextInstance(KindServoMotor))
	d, err := declare(a, firmware.DeviceSpec{
		Kind:      KindServoMotor,
		Pins:      pinSpec(pin, firmware.PinCustom),
		Libraries: []string{"Servo.h"},
		Global:    fmt.Sprintf("Servo %s;", v),
		Setup:     fmt.Sprintf("%s.attach(%d);\n%s.write(0);", v, pin, v),
		Methods: []firmware.Method{{
			Name: "rotate",
			Body: fmt.Sprintf("String data = receiveData();\nint angle = data.toInt();\n%s.write(angle);", v),
		}},
	})
	if err != nil {
		return nil, err
	}
	return &ServoMotor{device: d}, nil
}

// Angle returns the last angle set.
func (s *ServoMotor) Angle() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.angle
}

// Rotate moves the servo to angle degrees.
func (s *ServoMotor) Rotate(ctx context.Context, angle int) error {
	if angle < MinAngle || angle > MaxAngle {
		return fmt.Errorf("%w: angle %d out of range [%d, %d]", ErrInvalidArgument, angle, MinAngle, MaxAngle)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.send(ctx, "rotate", strconv.Itoa(angle)); err != nil {
		return err
	}
	s.angle = angle
	return nil
}

// Invoke implements Device.
func (s *ServoMotor) Invoke(ctx context.Context, method string, args ...string) (string, error) {
	switch method {
	case "rotate":
		if err := expectArgs(method, args, 1); err != nil {
			return "", err
		}
		angle, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("%w: angle %q", ErrInvalidArgument, args[0])
		}
		if err := s.Rotate(ctx, angle); err != nil {
			return "", err
		}
	case "angle":
	default:
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownMethod, s.desc.Kind, method)
	}
	return strconv.Itoa(s.Angle()), nil
}
