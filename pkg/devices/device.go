// Package devices declares common devices on a board and exposes their
// methods.
package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/robotalks/ardubridge/pkg/firmware"
	"github.com/robotalks/ardubridge/pkg/link"
)

var (
	// ErrInvalidArgument indicates a method argument out of range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSensorRead indicates a response that can't be interpreted.
	ErrSensorRead = errors.New("sensor read failed")
	// ErrUnknownMethod indicates Invoke with a method the device doesn't have.
	ErrUnknownMethod = errors.New("unknown method")
)

// Arduino is the board devices are declared on.
type Arduino interface {
	Declare(firmware.DeviceSpec) (*firmware.Descriptor, error)
	NextInstance(kind string) int
	ByKind(kind string) []*firmware.Descriptor
	Exchange(context.Context, link.Request) (string, error)
}

// Device is a declared device.
type Device interface {
	Descriptor() *firmware.Descriptor
	// Invoke calls a method by name with string arguments and returns the
	// result as text.
	Invoke(ctx context.Context, method string, args ...string) (string, error)
}

type device struct {
	arduino Arduino
	desc    *firmware.Descriptor
}

func declare(a Arduino, spec firmware.DeviceSpec) (device, error) {
	desc, err := a.Declare(spec)
	if err != nil {
		return device{}, err
	}
	return device{arduino: a, desc: desc}, nil
}

// Descriptor implements Device.
func (d *device) Descriptor() *firmware.Descriptor {
	return d.desc
}

func (d *device) request(method string) (link.Request, error) {
	id, ok := d.desc.CommandID(method)
	if !ok {
		return link.Request{}, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, d.desc.Kind, method)
	}
	return link.Request{Command: id}, nil
}

// call runs a method without data or response.
func (d *device) call(ctx context.Context, method string) error {
	req, err := d.request(method)
	if err != nil {
		return err
	}
	_, err = d.arduino.Exchange(ctx, req)
	return err
}

// query runs a method and reads its response.
func (d *device) query(ctx context.Context, method string) (string, error) {
	req, err := d.request(method)
	if err != nil {
		return "", err
	}
	req.Reply = true
	return d.arduino.Exchange(ctx, req)
}

// send runs a method with a data frame.
func (d *device) send(ctx context.Context, method, data string) error {
	req, err := d.request(method)
	if err != nil {
		return err
	}
	req.Data, req.HasData = data, true
	_, err = d.arduino.Exchange(ctx, req)
	return err
}

func expectArgs(method string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrInvalidArgument, method, n, len(args))
	}
	return nil
}

func pinSpec(pin int, mode firmware.PinMode) []firmware.Pin {
	return []firmware.Pin{{Number: pin, Mode: mode}}
}
