package arm

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-servobus/servo"
)

var (
	// ErrNoResponse is matched by every *NoResponseError.
	ErrNoResponse = errors.New("arm: no response")
	// ErrOperationFailed is matched by every *OperationFailedError.
	ErrOperationFailed = errors.New("arm: operation failed")

	ErrUnknownAxis   = errors.New("arm: unknown axis")
	ErrDuplicateAxis = errors.New("arm: duplicate axis")
)

// NoResponseError reports that an axis sent no terminal reply in time.
type NoResponseError struct {
	Axis    Axis
	Timeout time.Duration
}

func (e *NoResponseError) Error() string {
	return fmt.Sprintf("arm: no response from axis %s within %v", e.Axis, e.Timeout)
}

func (e *NoResponseError) Unwrap() error { return ErrNoResponse }

// OperationFailedError reports a command the controller answered with a
// failure status.
type OperationFailedError struct {
	Axis Axis
	Op   servo.Opcode
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("arm: axis %s: %s failed", e.Axis, e.Op)
}

func (e *OperationFailedError) Unwrap() error { return ErrOperationFailed }
