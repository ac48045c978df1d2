package bus

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("bus: transport failure")
	// ErrLagged is returned once by Channel.Recv after frames were dropped
	// because the channel's buffer was full. Later calls resume with the
	// frames that were kept.
	ErrLagged = errors.New("bus: receiver lagged, frames dropped")
	// ErrSessionClosed is returned by a Channel used after its session ended.
	ErrSessionClosed = errors.New("bus: session closed")
)

// TransportError reports a read or write failure of the underlying transport.
// It ends the session it occurred in.
type TransportError struct {
	// Op is "read" or "write".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bus: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// Errors combines the errors of every failed result, each prefixed with its
// key. It returns nil when all operations succeeded.
func Errors[K, T any](results []Result[K, T]) error {
	var err error
	for _, r := range results {
		if r.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%v: %w", r.Key, r.Err))
		}
	}

	return err
}
