// Package servotest provides a simulated servo bus: a set of fake controllers
// answering request frames on a can.Transport, with scriptable replies for tests.
package servotest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/go-servobus/can"
	"github.com/arloliu/go-servobus/internal/pool"
	"github.com/arloliu/go-servobus/logger"
	"github.com/arloliu/go-servobus/servo"
)

// Reply is one frame a simulated controller sends back.
type Reply struct {
	// Resp is encoded with servo.EncodeResponse for the node's identifier.
	Resp servo.Response
	// Frame is sent verbatim when set, taking precedence over Resp. It allows
	// corrupted or foreign-addressed frames.
	Frame *can.Frame
	// Delay is waited before the reply is sent.
	Delay time.Duration
}

// Node is the state of one simulated controller.
type Node struct {
	mu       sync.Mutex
	id       can.ID
	position int64
	enabled  bool
	mode     servo.WorkMode
	silent   bool
	scripts  map[servo.Opcode][][]Reply
	received []servo.Opcode
}

// ID returns the node's identifier.
func (n *Node) ID() can.ID { return n.id }

// Position returns the encoder value, 0x4000 per turn.
func (n *Node) Position() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.position
}

// SetPosition sets the encoder value returned by ReadEncoderAddition.
func (n *Node) SetPosition(v int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.position = v
}

// Enabled reports whether an Enable(true) request was received last.
func (n *Node) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.enabled
}

// WorkMode returns the last mode set with SetWorkMode.
func (n *Node) WorkMode() servo.WorkMode {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.mode
}

// SetSilent makes the node ignore every request.
func (n *Node) SetSilent(silent bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.silent = silent
}

// Script queues replies for the next request with opcode op, replacing the
// default behavior once. Calling Script again queues another one-shot script.
// An empty replies list makes the node stay silent for that request.
func (n *Node) Script(op servo.Opcode, replies ...Reply) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.scripts[op] = append(n.scripts[op], replies)
}

// Received returns the opcodes of every valid request seen so far, in order.
func (n *Node) Received() []servo.Opcode {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]servo.Opcode, len(n.received))
	copy(out, n.received)

	return out
}

// Bus serves a set of simulated nodes on one transport.
type Bus struct {
	t      can.Transport
	nodes  map[can.ID]*Node
	logger logger.Logger
	wg     sync.WaitGroup
	wmu    sync.Mutex
}

// NewBus creates nodes for ids on the controller side of t.
func NewBus(t can.Transport, l logger.Logger, ids ...can.ID) *Bus {
	if l == nil {
		l = logger.GetLogger()
	}

	b := &Bus{t: t, nodes: make(map[can.ID]*Node, len(ids)), logger: l}
	for _, id := range ids {
		b.nodes[id] = &Node{id: id, scripts: make(map[servo.Opcode][][]Reply)}
	}

	return b
}

// Node returns the node for id, or nil.
func (b *Bus) Node(id can.ID) *Node {
	return b.nodes[id]
}

// Serve answers requests until ctx is done or the transport fails. It returns
// nil on cancellation or when the transport is closed.
func (b *Bus) Serve(ctx context.Context) error {
	defer b.wg.Wait()

	for {
		f, err := b.t.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, can.ErrClosed) {
				return nil
			}
			return err
		}

		node, ok := b.nodes[f.ID]
		if !ok {
			continue
		}

		replies, ok := node.handle(f)
		if !ok {
			b.logger.Debug("servotest: dropped request", "id", f.ID, "frame", f)
			continue
		}

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.send(ctx, node.id, replies)
		}()
	}
}

func (b *Bus) send(ctx context.Context, id can.ID, replies []Reply) {
	for _, r := range replies {
		if !pool.Sleep(ctx, r.Delay) {
			return
		}

		var f can.Frame
		if r.Frame != nil {
			f = *r.Frame
		} else {
			var err error
			if f, err = servo.EncodeResponse(r.Resp, id); err != nil {
				b.logger.Error("servotest: encode reply", "id", id, "error", err)
				return
			}
		}

		// replies of one request keep their order; the lock keeps a whole
		// frame write atomic against other nodes' replies
		b.wmu.Lock()
		err := b.t.WriteFrame(ctx, f)
		b.wmu.Unlock()
		if err != nil {
			return
		}
	}
}

// handle validates a request frame and returns the replies to send.
func (n *Node) handle(f can.Frame) ([]Reply, bool) {
	data := f.Payload()
	if len(data) < 2 || servo.Checksum(f.ID, data[:len(data)-1]) != data[len(data)-1] {
		return nil, false
	}
	op := servo.Opcode(data[0])
	args := data[1 : len(data)-1]

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.silent || !op.Known() {
		return nil, false
	}
	n.received = append(n.received, op)

	if queued := n.scripts[op]; len(queued) > 0 {
		n.scripts[op] = queued[1:]
		return queued[0], true
	}

	return n.defaultReplies(op, args), true
}

// defaultReplies models a healthy controller. n.mu is held.
func (n *Node) defaultReplies(op servo.Opcode, args []byte) []Reply {
	switch op {
	case servo.OpReadEncoderAddition:
		return []Reply{{Resp: servo.EncoderAdditionResponse{Value: n.position}}}

	case servo.OpReadEncoderCarry:
		return []Reply{{Resp: servo.EncoderCarryResponse{
			Carry: int32(n.position >> 14), //nolint:gosec // simulator range
			Value: uint16(n.position & 0x3fff),
		}}}

	case servo.OpReadSpeed:
		return []Reply{{Resp: servo.SpeedResponse{}}}
	case servo.OpReadPulses:
		return []Reply{{Resp: servo.PulsesResponse{}}}
	case servo.OpReadIOPorts:
		return []Reply{{Resp: servo.IOPortsResponse{}}}
	case servo.OpReadPositionError:
		return []Reply{{Resp: servo.PositionErrorResponse{}}}
	case servo.OpReadEnPin:
		return []Reply{{Resp: servo.EnPinResponse{Enabled: n.enabled}}}
	case servo.OpReadLockedRotor:
		return []Reply{{Resp: servo.LockedRotorResponse{}}}

	case servo.OpReadGoBackToZeroStatus, servo.OpCalibrate:
		return []Reply{{Resp: servo.ProgressResponse{Op: op, Status: servo.ProgressSuccess}}}

	case servo.OpGoHome:
		n.position = 0
		return []Reply{
			{Resp: servo.ProgressResponse{Op: op, Status: servo.ProgressBusy}},
			{Resp: servo.ProgressResponse{Op: op, Status: servo.ProgressSuccess}},
		}

	case servo.OpQueryStatus:
		return []Reply{{Resp: servo.QueryStatusResponse{Status: servo.MotorStopped, Known: true}}}

	case servo.OpSetWorkMode:
		if len(args) > 0 {
			n.mode = servo.WorkMode(args[0])
		}
	case servo.OpEnable:
		n.enabled = len(args) > 0 && args[0] != 0
	case servo.OpSetAxisZero:
		n.position = 0

	case servo.OpRunAbsoluteMotion:
		if len(args) >= 6 {
			n.position = int64(int32(uint32(args[3])<<24|uint32(args[4])<<16|uint32(args[5])<<8) >> 8)
		}
		return motionReplies(op)

	case servo.OpRunRelativeMotion:
		if len(args) >= 6 {
			n.position += int64(int32(uint32(args[3])<<24|uint32(args[4])<<16|uint32(args[5])<<8) >> 8)
		}
		return motionReplies(op)

	case servo.OpRunSpeedMode, servo.OpRunRelativePulses:
		return motionReplies(op)
	}

	return []Reply{{Resp: servo.AckResponse{Op: op, Success: true}}}
}

func motionReplies(op servo.Opcode) []Reply {
	return []Reply{
		{Resp: servo.MotionResponse{Op: op, Status: servo.MotionBusy}},
		{Resp: servo.MotionResponse{Op: op, Status: servo.MotionSuccess}, Delay: time.Millisecond},
	}
}
