package link

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed indicates the session was closed.
	ErrClosed = errors.New("session closed")
	// ErrUnencodablePayload indicates a payload that can't survive the
	// whitespace substitution, e.g. it contains the substitution token or a
	// terminator.
	ErrUnencodablePayload = errors.New("payload cannot be encoded")
	// ErrInvalidCommand indicates a negative command identifier, which the
	// firmware ignores without an acknowledgment.
	ErrInvalidCommand = errors.New("invalid command identifier")
	// ErrVersionMismatch indicates the board is known to run a different
	// program than the one expected.
	ErrVersionMismatch = errors.New("firmware version mismatch")
)

// TimeoutError is returned when the board stops answering within the timeout.
type TimeoutError struct {
	Op      string
	After   time.Duration
	Partial string
}

// Error implements error.
func (e *TimeoutError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("%s: no complete frame after %v, got %q", e.Op, e.After, e.Partial)
	}
	return fmt.Sprintf("%s: no reply after %v", e.Op, e.After)
}

// Timeout reports true, matching net.Error.
func (e *TimeoutError) Timeout() bool {
	return true
}

// DesyncError is returned when the board answers something unexpected.
type DesyncError struct {
	Op       string
	Expected string
	Got      string
}

// Error implements error.
func (e *DesyncError) Error() string {
	return fmt.Sprintf("%s: expect %q, got %q", e.Op, e.Expected, e.Got)
}
