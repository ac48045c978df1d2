package arm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-servobus/bus"
	"github.com/arloliu/go-servobus/can"
	"github.com/arloliu/go-servobus/logger"
	"github.com/arloliu/go-servobus/servo"
	"github.com/arloliu/go-servobus/servo/servotest"
)

type testArm struct {
	ctrl *Controller
	sim  *servotest.Bus
	log  *logger.MockLogger
}

func (a *testArm) node(axis Axis) *servotest.Node {
	return a.sim.Node(axis.ID())
}

// newTestArm connects a controller to simulated controllers for axes.
func newTestArm(t *testing.T, axes []Axis, opts ...Option) *testArm {
	t.Helper()

	local, remote := can.NewPipe()
	l := logger.NewMockLogger().AllowAll()

	ids := make([]can.ID, 0, len(axes))
	for _, a := range axes {
		ids = append(ids, a.ID())
	}
	sim := servotest.NewBus(remote, l, ids...)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = sim.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-served
		_ = local.Close()
	})

	ctrl, err := NewController(local, append([]Option{WithLogger(l)}, opts...)...)
	require.NoError(t, err)

	return &testArm{ctrl: ctrl, sim: sim, log: l}
}

func TestController_Init(t *testing.T) {
	require := require.New(t)

	arm := newTestArm(t, AllAxes())
	results, err := arm.ctrl.Init(context.Background(), AllAxes())
	require.NoError(err)
	require.Len(results, 6)

	for i, a := range AllAxes() {
		require.Equal(a, results[i].Key)
		require.NoError(results[i].Err)
		require.Equal(servo.WorkModeSrVFOC, arm.node(a).WorkMode())
		require.Equal([]servo.Opcode{servo.OpSetWorkMode, servo.OpSetAutoSSD}, arm.node(a).Received())
	}
}

func TestController_InitFailureAbortsAxis(t *testing.T) {
	require := require.New(t)

	axes := []Axis{AxisX, AxisY}
	arm := newTestArm(t, axes)
	arm.node(AxisY).Script(servo.OpSetWorkMode, servotest.Reply{
		Resp: servo.AckResponse{Op: servo.OpSetWorkMode, Success: false},
	})

	results, err := arm.ctrl.Init(context.Background(), axes)
	require.ErrorIs(err, ErrOperationFailed)

	var failed *OperationFailedError
	require.ErrorAs(results[1].Err, &failed)
	require.Equal(AxisY, failed.Axis)
	require.Equal(servo.OpSetWorkMode, failed.Op)

	// the second step is never sent to the failed axis
	require.Equal([]servo.Opcode{servo.OpSetWorkMode}, arm.node(AxisY).Received())

	require.NoError(results[0].Err)
	require.Equal([]servo.Opcode{servo.OpSetWorkMode, servo.OpSetAutoSSD}, arm.node(AxisX).Received())

	arm.log.AssertCalled(t, "Error", "axis command failed",
		[]any{"command", "init", "axis", "Y", "error", results[1].Err})
}

func TestController_EnableAndSetOrigin(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	axes := []Axis{AxisA, AxisC}
	arm := newTestArm(t, axes)
	arm.node(AxisA).SetPosition(12345)

	_, err := arm.ctrl.Enable(ctx, axes)
	require.NoError(err)
	require.True(arm.node(AxisA).Enabled())
	require.True(arm.node(AxisC).Enabled())

	_, err = arm.ctrl.SetOrigin(ctx, axes)
	require.NoError(err)
	require.Zero(arm.node(AxisA).Position())
}

func TestController_MotorPositions(t *testing.T) {
	require := require.New(t)

	axes := []Axis{AxisX, AxisY, AxisZ}
	arm := newTestArm(t, axes)
	arm.node(AxisX).SetPosition(0x4000)
	arm.node(AxisY).SetPosition(-0x2000)
	arm.node(AxisZ).SetPosition(0)

	results, err := arm.ctrl.MotorPositions(context.Background(), axes)
	require.NoError(err)
	require.Equal(int64(0x4000), results[0].Value)
	require.Equal(int64(-0x2000), results[1].Value)
	require.Equal(int64(0), results[2].Value)
}

func TestController_NoResponse(t *testing.T) {
	require := require.New(t)

	// AxisC has no simulated controller
	arm := newTestArm(t, []Axis{AxisX})

	start := time.Now()
	results, err := arm.ctrl.MotorPositions(context.Background(), []Axis{AxisX, AxisC})
	elapsed := time.Since(start)

	require.ErrorIs(err, ErrNoResponse)
	require.GreaterOrEqual(elapsed, DefaultReplyTimeout-10*time.Millisecond)
	require.Less(elapsed, 5*DefaultReplyTimeout)

	require.NoError(results[0].Err, "other axes complete normally")

	var noResp *NoResponseError
	require.ErrorAs(results[1].Err, &noResp)
	require.Equal(AxisC, noResp.Axis)
}

func TestController_SilentNodeTimesOutDespiteTraffic(t *testing.T) {
	require := require.New(t)

	axes := []Axis{AxisX, AxisY}
	arm := newTestArm(t, axes)
	arm.node(AxisY).SetSilent(true)
	// X keeps the bus busy while Y waits
	replies := make([]servotest.Reply, 0, 11)
	for i := 0; i < 10; i++ {
		replies = append(replies, servotest.Reply{
			Resp:  servo.MotionResponse{Op: servo.OpRunAbsoluteMotion, Status: servo.MotionBusy},
			Delay: 5 * time.Millisecond,
		})
	}
	replies = append(replies, servotest.Reply{Resp: servo.MotionResponse{Op: servo.OpRunAbsoluteMotion, Status: servo.MotionSuccess}})
	arm.node(AxisX).Script(servo.OpRunAbsoluteMotion, replies...)

	results, err := arm.ctrl.SetMotorPositions(context.Background(), axes, Move{Position: 1})
	require.ErrorIs(err, ErrNoResponse)
	require.NoError(results[0].Err)
	require.Equal(servo.MotionSuccess, results[0].Value)
	require.ErrorIs(results[1].Err, ErrNoResponse)
}

func TestController_SetMotorPositions(t *testing.T) {
	require := require.New(t)

	axes := []Axis{AxisX, AxisB}
	arm := newTestArm(t, axes)

	results, err := arm.ctrl.SetMotorPositions(context.Background(), axes, Move{Position: 1.5})
	require.NoError(err)
	for _, r := range results {
		require.Equal(servo.MotionSuccess, r.Value)
	}
	require.Equal(int64(0x6000), arm.node(AxisX).Position())
	require.Equal(int64(0x6000), arm.node(AxisB).Position())
}

func TestController_SetMotorPositionsBusyBusySuccess(t *testing.T) {
	require := require.New(t)

	arm := newTestArm(t, []Axis{AxisZ})
	arm.node(AxisZ).Script(servo.OpRunAbsoluteMotion,
		servotest.Reply{Resp: servo.MotionResponse{Op: servo.OpRunAbsoluteMotion, Status: servo.MotionBusy}},
		servotest.Reply{Resp: servo.MotionResponse{Op: servo.OpRunAbsoluteMotion, Status: servo.MotionBusy}, Delay: 5 * time.Millisecond},
		servotest.Reply{Resp: servo.MotionResponse{Op: servo.OpRunAbsoluteMotion, Status: servo.MotionSuccess}, Delay: 5 * time.Millisecond},
	)

	results, err := arm.ctrl.SetMotorPositions(context.Background(), []Axis{AxisZ}, Move{Position: -2})
	require.NoError(err)
	require.Equal(servo.MotionSuccess, results[0].Value)
}

func TestController_SetMotorPositionsLimitReached(t *testing.T) {
	require := require.New(t)

	arm := newTestArm(t, []Axis{AxisX})
	arm.node(AxisX).Script(servo.OpRunAbsoluteMotion,
		servotest.Reply{Resp: servo.MotionResponse{Op: servo.OpRunAbsoluteMotion, Status: servo.MotionBusy}},
		servotest.Reply{Resp: servo.MotionResponse{Op: servo.OpRunAbsoluteMotion, Status: servo.MotionLimitReached}},
	)

	results, err := arm.ctrl.SetMotorPositions(context.Background(), []Axis{AxisX}, Move{Position: 10})
	require.NoError(err, "an end stop is not an error")
	require.Equal(servo.MotionLimitReached, results[0].Value)

	arm.log.AssertCalled(t, "Warn", "axis stopped at end stop", []any{"axis", "X", "opcode", "RunAbsoluteMotion"})
}

func TestController_SetMotorPositionsFail(t *testing.T) {
	require := require.New(t)

	arm := newTestArm(t, []Axis{AxisX})
	arm.node(AxisX).Script(servo.OpRunAbsoluteMotion,
		servotest.Reply{Resp: servo.MotionResponse{Op: servo.OpRunAbsoluteMotion, Status: servo.MotionBusy}},
		servotest.Reply{Resp: servo.MotionResponse{Op: servo.OpRunAbsoluteMotion, Status: servo.MotionFail}},
	)

	_, err := arm.ctrl.SetMotorPositions(context.Background(), []Axis{AxisX}, Move{Position: 1})
	require.ErrorIs(err, ErrOperationFailed)

	var failed *OperationFailedError
	require.ErrorAs(err, &failed)
	require.Equal(AxisX, failed.Axis)
	require.Equal(servo.OpRunAbsoluteMotion, failed.Op)
	require.Contains(err.Error(), "axis X")
}

func TestController_MoveOverrides(t *testing.T) {
	require := require.New(t)

	arm := newTestArm(t, []Axis{AxisY})
	speed, accel := uint16(3000), uint8(255)

	_, err := arm.ctrl.SetMotorPositions(context.Background(), []Axis{AxisY}, Move{Position: -0.25, Speed: &speed, Accel: &accel})
	require.NoError(err)
	require.Equal(int64(-0x1000), arm.node(AxisY).Position())

	_, err = arm.ctrl.SetMotorPositions(context.Background(), []Axis{AxisY}, Move{Position: 1 << 10})
	require.ErrorIs(err, servo.ErrOutOfRange)
}

func TestController_CorruptReply(t *testing.T) {
	require := require.New(t)

	arm := newTestArm(t, []Axis{AxisX})
	bad := can.Frame{ID: AxisX.ID(), Len: 3, Data: [8]byte{0xF3, 0x01, 0x00}}
	arm.node(AxisX).Script(servo.OpEnable, servotest.Reply{Frame: &bad})

	_, err := arm.ctrl.Enable(context.Background(), []Axis{AxisX})
	require.ErrorIs(err, servo.ErrChecksumMismatch)
	require.Contains(err.Error(), "axis X")
}

func TestController_InvalidAxes(t *testing.T) {
	require := require.New(t)

	arm := newTestArm(t, nil)

	_, err := arm.ctrl.Enable(context.Background(), []Axis{AxisX, AxisX})
	require.ErrorIs(err, ErrDuplicateAxis)

	_, err = arm.ctrl.Enable(context.Background(), []Axis{Axis(9)})
	require.ErrorIs(err, ErrUnknownAxis)
}

func TestController_Options(t *testing.T) {
	require := require.New(t)

	local, _ := can.NewPipe()
	defer local.Close()

	_, err := NewController(local, WithReplyTimeout(time.Millisecond))
	require.Error(err)

	_, err = NewController(local, WithLogger(nil))
	require.Error(err)

	_, err = NewController(local, WithMuxOptions(bus.WithBroadcastCapacity(0)))
	require.Error(err)

	ctrl, err := NewController(local, WithReplyTimeout(time.Second), WithMuxOptions(bus.WithBroadcastCapacity(32)))
	require.NoError(err)
	require.Equal(time.Second, ctrl.cfg.ReplyTimeout())
	require.Equal(32, ctrl.Mux().Config().BroadcastCapacity())
}

func TestAccelFromRate(t *testing.T) {
	tests := []struct {
		rate     float64
		expected uint8
	}{
		{500, 216},
		{1000, 236},
		{20000, 255},
		{1e9, 255},
		{78.4313725, 1},
		{10, 1},
		{0, 1},
		{-5, 1},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, AccelFromRate(tt.rate), "rate %v", tt.rate)
	}
}
