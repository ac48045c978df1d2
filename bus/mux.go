// Package bus multiplexes one CAN transport between concurrent operations.
//
// A session started with Run gives every operation its own Channel. Each
// Channel receives a copy of every frame read from the transport after the
// session started (broadcast fan-out) and sends into one bounded queue that a
// single relay drains to the transport (collector fan-in). Operations are
// responsible for picking the frames that concern them.
//
//	           ┌──────────┐  every frame   ┌───────────┐
//	transport ─┤ rx relay ├───────────────►│ Channel 1 │─┐
//	    ▲      └──────────┘        ├──────►│ Channel 2 │ │ Send
//	    │      ┌──────────┐        └──────►│ Channel n │ │
//	    └──────┤ tx relay │◄──collector (cap 1)──────────┘
//	           └──────────┘
package bus

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-servobus/can"
	"github.com/arloliu/go-servobus/logger"
)

// Mux owns a transport and runs sessions on it, one at a time.
type Mux struct {
	t       can.Transport
	cfg     *Config
	logger  logger.Logger
	metrics Metrics

	subs   *xsync.MapOf[uint64, *subscriber]
	nextID atomic.Uint64

	// sem serializes sessions; a transport has a single reader.
	sem chan struct{}
}

// NewMux creates a multiplexer over t. The Mux does not close t.
func NewMux(t can.Transport, opts ...Option) (*Mux, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Mux{
		t:      t,
		cfg:    cfg,
		logger: cfg.logger,
		subs:   xsync.NewMapOf[uint64, *subscriber](),
		sem:    make(chan struct{}, 1),
	}, nil
}

// Metrics returns the live counters of m.
func (m *Mux) Metrics() *Metrics {
	return &m.metrics
}

// Config returns the configuration m was created with.
func (m *Mux) Config() *Config {
	return m.cfg
}

type subscriber struct {
	ch     chan can.Frame
	lagged atomic.Bool
}

// subscribe registers a new channel. Frames published before this call are
// never delivered to it.
func (m *Mux) subscribe(sess context.Context, collector chan<- can.Frame) *Channel {
	id := m.nextID.Add(1)
	sub := &subscriber{ch: make(chan can.Frame, m.cfg.broadcastCapacity)}
	m.subs.Store(id, sub)

	return &Channel{id: id, sub: sub, tx: collector, sess: sess}
}

func (m *Mux) unsubscribe(c *Channel) {
	m.subs.Delete(c.id)
}

// publish hands f to every subscriber without blocking. A subscriber whose
// buffer is full misses f and is marked lagged.
func (m *Mux) publish(f can.Frame) {
	m.subs.Range(func(id uint64, sub *subscriber) bool {
		select {
		case sub.ch <- f:
		default:
			sub.lagged.Store(true)
			m.metrics.incFramesLagged()
			m.logger.Debug("bus: subscriber lagged", "subscriber", id, "frame", f.String())
		}
		return true
	})
}

// Channel is one operation's view of the bus. It must not be used after the
// operation it was given to has returned.
type Channel struct {
	id   uint64
	sub  *subscriber
	tx   chan<- can.Frame
	sess context.Context
}

// Send queues f for transmission. It blocks while the send queue is full.
func (c *Channel) Send(ctx context.Context, f can.Frame) error {
	if c.sess.Err() != nil {
		return context.Cause(c.sess)
	}

	select {
	case c.tx <- f:
		return nil
	case <-c.sess.Done():
		return context.Cause(c.sess)
	case <-ctx.Done():
		if c.sess.Err() != nil {
			return context.Cause(c.sess)
		}
		return ctx.Err()
	}
}

// Recv returns the next frame read from the bus, whatever its identifier.
// After frames were dropped for this channel it returns ErrLagged once.
//
// When the session ends because of a transport failure, Recv returns the
// *TransportError.
func (c *Channel) Recv(ctx context.Context) (can.Frame, error) {
	if c.sub.lagged.CompareAndSwap(true, false) {
		return can.Frame{}, ErrLagged
	}

	select {
	case f := <-c.sub.ch:
		return f, nil
	case <-c.sess.Done():
		return can.Frame{}, context.Cause(c.sess)
	case <-ctx.Done():
		if c.sess.Err() != nil {
			return can.Frame{}, context.Cause(c.sess)
		}
		return can.Frame{}, ctx.Err()
	}
}
