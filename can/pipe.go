package can

import (
	"context"
	"sync"
)

const pipeQueueSize = 64

// PipeEnd is one side of an in-memory link created by NewPipe.
type PipeEnd struct {
	in   chan Frame
	out  chan Frame
	done chan struct{}
	once *sync.Once
}

var _ Transport = (*PipeEnd)(nil)

// NewPipe returns two connected transports: frames written on one side are read
// on the other. Closing either side closes both.
func NewPipe() (*PipeEnd, *PipeEnd) {
	ab := make(chan Frame, pipeQueueSize)
	ba := make(chan Frame, pipeQueueSize)
	done := make(chan struct{})
	once := &sync.Once{}

	return &PipeEnd{in: ba, out: ab, done: done, once: once},
		&PipeEnd{in: ab, out: ba, done: done, once: once}
}

func (p *PipeEnd) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-p.done:
		return Frame{}, ErrClosed
	case f := <-p.in:
		return f, nil
	}
}

func (p *PipeEnd) WriteFrame(ctx context.Context, f Frame) error {
	// check closed first so a write racing with Close never succeeds silently
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	case p.out <- f:
		return nil
	}
}

func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
