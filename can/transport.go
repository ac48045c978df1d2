package can

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for frames and transports.
var (
	ErrInvalidID    = errors.New("can: identifier out of range")
	ErrFrameTooLong = errors.New("can: frame payload exceeds 8 bytes")
	ErrClosed       = errors.New("can: transport closed")
	ErrUnsupported  = errors.New("can: transport not supported on this platform")
)

// PollInterval bounds how long a blocking read may ignore context cancellation.
const PollInterval = 50 * time.Millisecond

// Transport is a duplex channel of frames over one physical link.
//
// ReadFrame blocks until a frame arrives, ctx is done, or the link fails.
// WriteFrame blocks until the frame has been handed to the link. Implementations
// must return promptly (within PollInterval) once ctx is done, returning ctx.Err().
//
// A Transport is driven by at most one reader and one writer goroutine at a time.
type Transport interface {
	ReadFrame(ctx context.Context) (Frame, error)
	WriteFrame(ctx context.Context, f Frame) error
	Close() error
}
