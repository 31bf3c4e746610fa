package toolchain

import (
	"errors"
	"fmt"
)

// ErrInvalidVersion indicates a library version that is neither "latest"
// nor major.minor.patch.
var ErrInvalidVersion = errors.New("invalid library version")

// UnavailableError is returned when a tool can't be resolved or started.
type UnavailableError struct {
	Tool string
	Err  error
}

// Error implements error.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying error.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// FailureError is returned when a tool ran and exited non-zero.
type FailureError struct {
	Step     string
	ExitCode int
	Output   string
}

// Error implements error.
func (e *FailureError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d", e.Step, e.ExitCode)
}
