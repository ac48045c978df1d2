package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/arloliu/go-servobus/arm"
	"github.com/arloliu/go-servobus/bus"
	"github.com/arloliu/go-servobus/can"
	"github.com/arloliu/go-servobus/logger"
	"github.com/arloliu/go-servobus/servo"
)

const (
	// Global flags.
	flagTransport    = "transport"
	flagIfname       = "ifname"
	flagSerialPort   = "serial-port"
	flagSerialBaud   = "serial-baud"
	flagCANBitrate   = "can-bitrate"
	flagLogLevel     = "log-level"
	flagConsole      = "console"
	flagReplyTimeout = "reply-timeout"

	// axes flags.
	flagAll  = "all"
	flagAxes = "axes"

	// set-motor-pos flags.
	flagSpeed    = "speed"
	flagAccel    = "accel"
	flagAccelRaw = "accel-raw"
)

const metadataLogger = "logger"

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:            "arctosctl",
		Usage:           "control the axes of an Arctos robot arm over CAN",
		HideHelpCommand: true,
		Writer:          stdout,
		ErrWriter:       stderr,
		Metadata:        map[string]any{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagTransport,
				Usage:   "bus `KIND`: socketcan, slcan or sim",
				Value:   transportSocketCAN,
				EnvVars: []string{"ARCTOS_TRANSPORT"},
			},
			&cli.StringFlag{
				Name:    flagIfname,
				Aliases: []string{"i"},
				Usage:   "SocketCAN interface `NAME`",
				Value:   "can0",
				EnvVars: []string{"ARCTOS_IFNAME"},
			},
			&cli.StringFlag{
				Name:  flagSerialPort,
				Usage: "serial `DEVICE` of the SLCAN adapter",
				Value: "/dev/ttyACM0",
			},
			&cli.IntFlag{
				Name:  flagSerialBaud,
				Usage: "baud rate of the SLCAN serial link",
				Value: can.DefaultSLCANBaudRate,
			},
			&cli.IntFlag{
				Name:  flagCANBitrate,
				Usage: "CAN bitrate in bit/s (SLCAN only)",
				Value: can.DefaultSLCANBitrate,
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Usage:   "log `LEVEL`: debug, info, warn or error",
				Value:   "info",
				EnvVars: []string{"ARCTOS_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  flagConsole,
				Usage: "human readable log output instead of JSON",
			},
			&cli.DurationFlag{
				Name:  flagReplyTimeout,
				Usage: "how long each axis may take to reply",
				Value: arm.DefaultReplyTimeout,
			},
		},
		Before: func(c *cli.Context) error {
			lvl, err := logger.ParseLevel(c.String(flagLogLevel))
			if err != nil {
				return err
			}
			l := logger.NewSlog(lvl, logger.Options{Output: c.App.ErrWriter, Console: c.Bool(flagConsole)})
			logger.SetDefault(l)
			c.App.Metadata[metadataLogger] = logger.Logger(l)

			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "axes",
				Usage:     "run a command on a set of axes",
				UsageText: "arctosctl axes (--all | --axes x,y,...) <command>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    flagAll,
						Aliases: []string{"a"},
						Usage:   "every axis",
					},
					&cli.StringSliceFlag{
						Name:  flagAxes,
						Usage: "axes to command, from x, y, z, a, b, c",
					},
				},
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "configure the axis controllers",
						Action: axesAction(initAction),
					},
					{
						Name:   "enable",
						Usage:  "power on the axis motors",
						Action: axesAction(enableAction),
					},
					{
						Name:   "set-origin",
						Usage:  "make the current position the origin of the axes",
						Action: axesAction(setOriginAction),
					},
					{
						Name:   "get-motor-pos",
						Usage:  "print the axis positions in encoder units from the origin",
						Action: axesAction(getMotorPosAction),
					},
					{
						Name:      "set-motor-pos",
						Usage:     "move the axes to a position in motor turns from the origin",
						ArgsUsage: "POSITION",
						Flags: []cli.Flag{
							&cli.UintFlag{
								Name:    flagSpeed,
								Aliases: []string{"s"},
								Usage:   "speed in RPM, the axis default when unset",
							},
							&cli.Float64Flag{
								Name:  flagAccel,
								Usage: "acceleration in RPM/s",
							},
							&cli.UintFlag{
								Name:  flagAccelRaw,
								Usage: "raw acceleration 1..255; the speed rises by 1 RPM every (256-raw)*50µs",
							},
						},
						Action: axesAction(setMotorPosAction),
					},
				},
			},
		},
	}
}

type axesCommand func(ctx context.Context, c *cli.Context, ctrl *arm.Controller, axes []arm.Axis) error

// axesAction resolves the axes and the transport, runs cmd and reports its
// outcome with exit code 1 on failure.
func axesAction(cmd axesCommand) cli.ActionFunc {
	return func(c *cli.Context) error {
		l := appLogger(c)

		axes, err := selectedAxes(c)
		if err != nil {
			return cli.Exit(err, 1)
		}

		t, closeTransport, err := openTransport(c, l)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer closeTransport()

		ctrl, err := arm.NewController(t, arm.WithLogger(l), arm.WithReplyTimeout(c.Duration(flagReplyTimeout)))
		if err != nil {
			return cli.Exit(err, 1)
		}

		err = cmd(c.Context, c, ctrl, axes)

		m := ctrl.Mux().Metrics()
		l.Debug("bus metrics",
			"framesSent", m.FramesSent.Load(),
			"framesRecv", m.FramesRecv.Load(),
			"framesLagged", m.FramesLagged.Load(),
			"opsFailed", m.OpsFailed.Load(),
		)

		if err != nil {
			return cli.Exit(err, 1)
		}

		return nil
	}
}

func appLogger(c *cli.Context) logger.Logger {
	if l, ok := c.App.Metadata[metadataLogger].(logger.Logger); ok {
		return l
	}
	return logger.GetLogger()
}

func selectedAxes(c *cli.Context) ([]arm.Axis, error) {
	if c.Bool(flagAll) {
		return arm.AllAxes(), nil
	}

	var names []string
	for _, v := range c.StringSlice(flagAxes) {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		return nil, errors.New("no axes selected, use --all or --axes")
	}

	return arm.ParseAxes(names)
}

func initAction(ctx context.Context, c *cli.Context, ctrl *arm.Controller, axes []arm.Axis) error {
	results, err := ctrl.Init(ctx, axes)
	printResults(c.App.Writer, results, ackString)
	return err
}

func enableAction(ctx context.Context, c *cli.Context, ctrl *arm.Controller, axes []arm.Axis) error {
	results, err := ctrl.Enable(ctx, axes)
	printResults(c.App.Writer, results, ackString)
	return err
}

func setOriginAction(ctx context.Context, c *cli.Context, ctrl *arm.Controller, axes []arm.Axis) error {
	results, err := ctrl.SetOrigin(ctx, axes)
	printResults(c.App.Writer, results, ackString)
	return err
}

func getMotorPosAction(ctx context.Context, c *cli.Context, ctrl *arm.Controller, axes []arm.Axis) error {
	results, err := ctrl.MotorPositions(ctx, axes)
	printResults(c.App.Writer, results, func(v int64) string { return strconv.FormatInt(v, 10) })
	return err
}

func setMotorPosAction(ctx context.Context, c *cli.Context, ctrl *arm.Controller, axes []arm.Axis) error {
	move, err := parseMove(c)
	if err != nil {
		return err
	}

	results, err := ctrl.SetMotorPositions(ctx, axes, move)
	printResults(c.App.Writer, results, servo.MotionStatus.String)
	return err
}

func parseMove(c *cli.Context) (arm.Move, error) {
	if c.NArg() != 1 {
		return arm.Move{}, errors.New("set-motor-pos takes exactly one POSITION argument")
	}
	pos, err := strconv.ParseFloat(c.Args().First(), 64)
	if err != nil {
		return arm.Move{}, fmt.Errorf("invalid position %q: %w", c.Args().First(), err)
	}

	move := arm.Move{Position: pos}

	if c.IsSet(flagSpeed) {
		s := c.Uint(flagSpeed)
		if s > 3000 {
			return arm.Move{}, fmt.Errorf("speed %d RPM out of range [0, 3000]", s)
		}
		speed := uint16(s) //nolint:gosec // bounded above
		move.Speed = &speed
	}

	switch {
	case c.IsSet(flagAccel) && c.IsSet(flagAccelRaw):
		return arm.Move{}, fmt.Errorf("--%s and --%s are mutually exclusive", flagAccel, flagAccelRaw)
	case c.IsSet(flagAccel):
		accel := arm.AccelFromRate(c.Float64(flagAccel))
		move.Accel = &accel
	case c.IsSet(flagAccelRaw):
		raw := c.Uint(flagAccelRaw)
		if raw > 255 {
			return arm.Move{}, fmt.Errorf("raw acceleration %d out of range [0, 255]", raw)
		}
		accel := uint8(raw) //nolint:gosec // bounded above
		move.Accel = &accel
	}

	return move, nil
}

func ackString(struct{}) string { return "success" }

// printResults writes one AXIS=value line per axis; failed axes print "fail".
func printResults[T any](w io.Writer, results []bus.Result[arm.Axis, T], format func(T) string) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s=fail\n", r.Key)
			continue
		}
		fmt.Fprintf(w, "%s=%s\n", r.Key, format(r.Value))
	}
}
