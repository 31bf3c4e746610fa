package firmware

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicatePin indicates a requested pin is already used by a declared device.
	ErrDuplicatePin = errors.New("pin already in use")
	// ErrCapacity indicates the declaration needs control lines the session can't provide.
	ErrCapacity = errors.New("insufficient control lines")
	// ErrExcludedPin indicates a requested pin is kept off limits, e.g. the serial lines.
	ErrExcludedPin = errors.New("pin excluded")
	// ErrInvalidDevice indicates a declaration without a usable kind or methods.
	ErrInvalidDevice = errors.New("invalid device")
	// ErrInvalidConfig indicates a session config which can't be rendered.
	ErrInvalidConfig = errors.New("invalid config")
)

// RegistrationError is returned by Declare when a device can't be added.
// The registry is unchanged when this is returned.
type RegistrationError struct {
	Kind string
	Pins []int
	Err  error
}

// Error implements error.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("declare %s on pins %v: %v", e.Kind, e.Pins, e.Err)
}

// Unwrap returns the underlying reason.
func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// RenderError reports a caller supplied fragment which can't be inserted into
// the skeleton.
type RenderError struct {
	Owner  string
	Slot   Slot
	Reason string
}

// Error implements error.
func (e *RenderError) Error() string {
	return fmt.Sprintf("%s fragment of %s: %s", e.Slot, e.Owner, e.Reason)
}
