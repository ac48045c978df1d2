package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/arloliu/go-servobus/arm"
	"github.com/arloliu/go-servobus/can"
	"github.com/arloliu/go-servobus/logger"
	"github.com/arloliu/go-servobus/servo/servotest"
)

const (
	transportSocketCAN = "socketcan"
	transportSLCAN     = "slcan"
	transportSim       = "sim"
)

// openTransport opens the transport selected by the global flags. The
// returned close function releases it and anything started with it.
func openTransport(c *cli.Context, l logger.Logger) (can.Transport, func(), error) {
	switch kind := strings.ToLower(c.String(flagTransport)); kind {
	case transportSocketCAN:
		t, err := can.DialSocketCAN(c.String(flagIfname))
		if err != nil {
			return nil, nil, err
		}
		return t, func() { _ = t.Close() }, nil

	case transportSLCAN:
		t, err := can.OpenSLCAN(c.String(flagSerialPort), can.SLCANConfig{
			BaudRate: c.Int(flagSerialBaud),
			Bitrate:  c.Int(flagCANBitrate),
		})
		if err != nil {
			return nil, nil, err
		}
		return t, func() { _ = t.Close() }, nil

	case transportSim:
		return openSim(l)

	default:
		return nil, nil, fmt.Errorf("unknown transport %q, want %s, %s or %s",
			kind, transportSocketCAN, transportSLCAN, transportSim)
	}
}

// openSim starts simulated controllers for every axis on an in-memory bus.
func openSim(l logger.Logger) (can.Transport, func(), error) {
	local, remote := can.NewPipe()

	ids := make([]can.ID, 0, 6)
	for _, a := range arm.AllAxes() {
		ids = append(ids, a.ID())
	}
	sim := servotest.NewBus(remote, l.With("component", "sim"), ids...)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := sim.Serve(ctx); err != nil {
			l.Error("simulator stopped", "error", err)
		}
	}()

	return local, func() {
		cancel()
		<-served
		_ = local.Close()
	}, nil
}
