package bus

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/go-servobus/can"
	"github.com/arloliu/go-servobus/logger"
)

// Operation is run once per key in a session. ctx is canceled when the
// session ends early, either because the caller's context is done or because
// the transport failed.
type Operation[K, T any] func(ctx context.Context, key K, ch *Channel) (T, error)

// Result is the outcome of one operation.
type Result[K, T any] struct {
	Key   K
	Value T
	Err   error
}

// Run starts a session on m: it subscribes one Channel per key, runs op for
// every key concurrently, waits for all of them and then stops the relays.
//
// Results are in key order. Every operation runs to completion even when
// another one fails. The returned error is, by precedence:
//   - the *TransportError that ended the session early,
//   - ctx.Err() when ctx was done,
//   - the first operation error in completion order.
//
// Frames queued with Channel.Send before an operation returned are written
// before Run returns. Sessions on the same Mux are serialized.
func Run[K, T any](ctx context.Context, m *Mux, keys []K, op Operation[K, T]) ([]Result[K, T], error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-m.sem }()

	m.metrics.incSessionCount()

	sess, cancel := context.WithCancelCause(ctx)
	defer cancel(ErrSessionClosed)

	collector := make(chan can.Frame, m.cfg.collectorCapacity)

	// subscribe before any operation can send, so no reply is missed
	chans := make([]*Channel, len(keys))
	for i := range keys {
		chans[i] = m.subscribe(sess, collector)
	}
	defer func() {
		for _, c := range chans {
			m.unsubscribe(c)
		}
	}()

	relays, relayCtx := errgroup.WithContext(sess)
	recvCtx, stopRecv := context.WithCancel(relayCtx)
	relays.Go(func() error {
		return m.recvRelay(recvCtx)
	})
	relays.Go(func() error {
		defer stopRecv()
		return m.sendRelay(relayCtx, collector)
	})

	relayDone := make(chan error, 1)
	go func() {
		err := relays.Wait()
		if err != nil {
			cancel(err)
		}
		relayDone <- err
	}()

	results := make([]Result[K, T], len(keys))
	done := make(chan error, len(keys))
	for i, key := range keys {
		i, key := i, key
		go func() {
			m.metrics.incOpsRunning()
			defer m.metrics.decOpsRunning()

			v, err := op(sess, key, chans[i])
			if err != nil {
				m.metrics.incOpsFailed()
			}
			results[i] = Result[K, T]{Key: key, Value: v, Err: err}
			done <- err
		}()
	}

	var firstErr error
	for range keys {
		if err := <-done; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// every operation has returned; closing the collector lets the send relay
	// flush what is queued and then stop the receive relay
	close(collector)
	relayErr := <-relayDone

	switch {
	case relayErr != nil:
		m.logger.Error("bus: session ended by transport failure", "error", relayErr)
		return results, relayErr
	case ctx.Err() != nil:
		return results, ctx.Err()
	default:
		return results, firstErr
	}
}

func (m *Mux) recvRelay(ctx context.Context) error {
	trace := m.logger.Level() <= logger.DebugLevel
	for {
		f, err := m.t.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &TransportError{Op: "read", Err: err}
		}

		m.metrics.incFramesRecv()
		if trace {
			m.logger.Debug("bus: frame received", "frame", f.String())
		}
		m.publish(f)
	}
}

func (m *Mux) sendRelay(ctx context.Context, collector <-chan can.Frame) error {
	trace := m.logger.Level() <= logger.DebugLevel
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-collector:
			if !ok {
				return nil
			}
			if err := m.t.WriteFrame(ctx, f); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return &TransportError{Op: "write", Err: err}
			}

			m.metrics.incFramesSent()
			if trace {
				m.logger.Debug("bus: frame sent", "frame", f.String())
			}
		}
	}
}
