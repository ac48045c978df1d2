package arm

import (
	"context"
	"fmt"
	"math"

	"github.com/arloliu/go-servobus/bus"
	"github.com/arloliu/go-servobus/can"
	"github.com/arloliu/go-servobus/logger"
	"github.com/arloliu/go-servobus/servo"
)

// EncoderUnitsPerTurn is the encoder resolution of one motor turn.
const EncoderUnitsPerTurn = 0x4000

// Controller runs arm commands on every requested axis at once over one bus.
type Controller struct {
	mux    *bus.Mux
	cfg    *Config
	logger logger.Logger
}

// NewController creates a controller on t. The caller keeps ownership of t.
func NewController(t can.Transport, opts ...Option) (*Controller, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	muxOpts := append([]bus.Option{bus.WithLogger(cfg.logger)}, cfg.muxOpts...)
	mux, err := bus.NewMux(t, muxOpts...)
	if err != nil {
		return nil, err
	}

	return &Controller{mux: mux, cfg: cfg, logger: cfg.logger}, nil
}

// Mux returns the bus the controller runs on, for its metrics.
func (c *Controller) Mux() *bus.Mux {
	return c.mux
}

// Init puts every axis in serial FOC mode and turns on automatic screen-off.
// An axis stops at its first failed step.
func (c *Controller) Init(ctx context.Context, axes []Axis) ([]bus.Result[Axis, struct{}], error) {
	return run(ctx, c, "init", axes, func(ctx context.Context, axis Axis, port *bus.Channel) (struct{}, error) {
		steps := []servo.Request{
			servo.SetWorkMode{Mode: servo.WorkModeSrVFOC},
			servo.SetAutoSSD{Enable: true},
		}
		for _, req := range steps {
			if _, err := Exchange(ctx, port, axis, req, c.cfg.replyTimeout, AckClassifier(axis, req.Opcode())); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
}

// Enable powers on the drivers of axes.
func (c *Controller) Enable(ctx context.Context, axes []Axis) ([]bus.Result[Axis, struct{}], error) {
	return c.ack(ctx, "enable", axes, servo.Enable{Enabled: true})
}

// SetOrigin makes the current position the zero of every axis.
func (c *Controller) SetOrigin(ctx context.Context, axes []Axis) ([]bus.Result[Axis, struct{}], error) {
	return c.ack(ctx, "set-origin", axes, servo.SetAxisZero{})
}

// MotorPositions reads the encoder of every axis, in EncoderUnitsPerTurn per
// motor turn from the origin.
func (c *Controller) MotorPositions(ctx context.Context, axes []Axis) ([]bus.Result[Axis, int64], error) {
	return run(ctx, c, "get-motor-pos", axes, func(ctx context.Context, axis Axis, port *bus.Channel) (int64, error) {
		return Exchange(ctx, port, axis, servo.ReadEncoderAddition{}, c.cfg.replyTimeout, EncoderAdditionClassifier())
	})
}

// Move is an absolute motor position target.
type Move struct {
	// Position in motor turns from the origin.
	Position float64
	// Speed in RPM; the axis default when nil.
	Speed *uint16
	// Accel is the raw acceleration byte; the axis default when nil.
	// See AccelFromRate.
	Accel *uint8
}

// Target returns the position in encoder units, truncated toward zero.
func (m Move) Target() (int32, error) {
	v := m.Position * EncoderUnitsPerTurn
	if math.IsNaN(v) || v < servo.MinAxisTarget || v > servo.MaxAxisTarget {
		return 0, fmt.Errorf("%w: position %v turns", servo.ErrOutOfRange, m.Position)
	}
	return int32(v), nil
}

// request builds the motion command for axis, filling in its defaults.
func (m Move) request(axis Axis) (servo.RunAbsoluteMotion, error) {
	target, err := m.Target()
	if err != nil {
		return servo.RunAbsoluteMotion{}, err
	}

	req := servo.RunAbsoluteMotion{
		Speed:   axis.DefaultSpeed(),
		Accel:   axis.DefaultAccel(),
		AbsAxis: target,
	}
	if m.Speed != nil {
		req.Speed = *m.Speed
	}
	if m.Accel != nil {
		req.Accel = *m.Accel
	}

	return req, nil
}

// SetMotorPositions moves every axis to the same absolute motor position and
// waits until each one stops. An axis that stopped at an end stop reports
// servo.MotionLimitReached without error.
func (c *Controller) SetMotorPositions(ctx context.Context, axes []Axis, move Move) ([]bus.Result[Axis, servo.MotionStatus], error) {
	if _, err := move.Target(); err != nil {
		return nil, err
	}

	return run(ctx, c, "set-motor-pos", axes, func(ctx context.Context, axis Axis, port *bus.Channel) (servo.MotionStatus, error) {
		req, err := move.request(axis)
		if err != nil {
			return 0, err
		}
		return Exchange(ctx, port, axis, req, c.cfg.replyTimeout, MotionClassifier(axis, req.Opcode(), c.logger))
	})
}

// AccelFromRate converts an acceleration in RPM/s to the raw acceleration
// byte. The controller raises the speed by 1 RPM every (256-raw)*50µs, so the
// representable rates run from 78.4 (raw 1) to 20000 (raw 255); rates outside
// are clamped.
func AccelFromRate(rpmPerSec float64) uint8 {
	if math.IsNaN(rpmPerSec) || rpmPerSec <= 0 {
		return 1
	}

	raw := math.Round(256 - 20000/rpmPerSec)
	switch {
	case raw < 1:
		return 1
	case raw > 255:
		return 255
	}

	return uint8(raw)
}

func (c *Controller) ack(ctx context.Context, name string, axes []Axis, req servo.Request) ([]bus.Result[Axis, struct{}], error) {
	return run(ctx, c, name, axes, func(ctx context.Context, axis Axis, port *bus.Channel) (struct{}, error) {
		return Exchange(ctx, port, axis, req, c.cfg.replyTimeout, AckClassifier(axis, req.Opcode()))
	})
}

// run validates axes and runs op for each one in a bus session, logging
// every failed axis.
func run[T any](ctx context.Context, c *Controller, name string, axes []Axis, op bus.Operation[Axis, T]) ([]bus.Result[Axis, T], error) {
	if err := validateAxes(axes); err != nil {
		return nil, err
	}

	results, err := bus.Run(ctx, c.mux, axes, op)
	for _, r := range results {
		if r.Err != nil {
			c.logger.Error("axis command failed", "command", name, "axis", r.Key.String(), "error", r.Err)
		}
	}
	if err != nil {
		return results, err
	}

	c.logger.Debug("axis command done", "command", name, "axes", len(axes))

	return results, nil
}
