package arm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-servobus/bus"
	"github.com/arloliu/go-servobus/can"
	"github.com/arloliu/go-servobus/servo"
)

// DefaultReplyTimeout bounds each wait for a terminal reply.
const DefaultReplyTimeout = 100 * time.Millisecond

// Receiver yields every frame seen on the bus. *bus.Channel implements it.
type Receiver interface {
	Recv(ctx context.Context) (can.Frame, error)
}

// Port sends and receives frames. *bus.Channel implements it.
type Port interface {
	Receiver
	Send(ctx context.Context, f can.Frame) error
}

var _ Port = (*bus.Channel)(nil)

// Verdict is a classifier's decision about one reply.
type Verdict[T any] struct {
	value T
	err   error
	done  bool
}

// Continue means the reply does not end the wait.
func Continue[T any]() Verdict[T] { return Verdict[T]{} }

// Done ends the wait successfully with v.
func Done[T any](v T) Verdict[T] { return Verdict[T]{value: v, done: true} }

// Fail ends the wait with err.
func Fail[T any](err error) Verdict[T] { return Verdict[T]{err: err, done: true} }

// Classifier inspects one decoded reply from the awaited axis.
type Classifier[T any] func(servo.Response) Verdict[T]

// Await reads frames from rx until classify returns a terminal verdict for a
// reply from axis. Frames from other identifiers are skipped. The whole wait
// is bounded by timeout; on expiry it returns a *NoResponseError.
//
// A frame from axis that fails to decode ends the wait with the decode error.
func Await[T any](ctx context.Context, rx Receiver, axis Axis, timeout time.Duration, classify Classifier[T]) (T, error) {
	var zero T

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := axis.ID()
	for {
		f, err := rx.Recv(wctx)
		if err != nil {
			switch {
			case errors.Is(err, bus.ErrLagged):
				// dropped frames may have held the reply; keep waiting until the deadline
				continue
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				return zero, &NoResponseError{Axis: axis, Timeout: timeout}
			default:
				return zero, err
			}
		}

		if f.ID != id {
			continue
		}

		resp, err := servo.Decode(id, f)
		if err != nil {
			return zero, fmt.Errorf("arm: axis %s: %w", axis, err)
		}

		if v := classify(resp); v.done {
			return v.value, v.err
		}
	}
}

// Exchange sends req to axis and awaits its terminal reply. The timeout
// covers only the wait, not the time spent queueing req.
func Exchange[T any](ctx context.Context, port Port, axis Axis, req servo.Request, timeout time.Duration, classify Classifier[T]) (T, error) {
	var zero T

	f, err := servo.Encode(req, axis.ID())
	if err != nil {
		return zero, fmt.Errorf("arm: axis %s: %w", axis, err)
	}
	if err := port.Send(ctx, f); err != nil {
		return zero, err
	}

	return Await(ctx, port, axis, timeout, classify)
}
