package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-servobus/can"
	"github.com/arloliu/go-servobus/logger"
)

func newTestMux(t *testing.T, opts ...Option) (*Mux, *can.PipeEnd) {
	t.Helper()

	local, remote := can.NewPipe()
	t.Cleanup(func() { _ = local.Close() })

	m, err := NewMux(local, opts...)
	require.NoError(t, err)

	return m, remote
}

// echo writes every frame read on remote back to it until the pipe closes.
func echo(remote *can.PipeEnd) {
	go func() {
		ctx := context.Background()
		for {
			f, err := remote.ReadFrame(ctx)
			if err != nil {
				return
			}
			if err := remote.WriteFrame(ctx, f); err != nil {
				return
			}
		}
	}()
}

func frame(id uint16, data ...byte) can.Frame {
	f, _ := can.NewFrame(can.StandardID(id), data)
	return f
}

func TestNewMux_Options(t *testing.T) {
	require := require.New(t)

	local, _ := can.NewPipe()

	m, err := NewMux(local)
	require.NoError(err)
	require.Equal(DefaultBroadcastCapacity, m.Config().BroadcastCapacity())
	require.Equal(DefaultCollectorCapacity, m.Config().CollectorCapacity())

	m, err = NewMux(local, WithBroadcastCapacity(4), WithCollectorCapacity(2), WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(err)
	require.Equal(4, m.Config().BroadcastCapacity())
	require.Equal(2, m.Config().CollectorCapacity())

	_, err = NewMux(local, WithBroadcastCapacity(0))
	require.Error(err)
	_, err = NewMux(local, WithCollectorCapacity(MaxQueueCapacity+1))
	require.Error(err)
	_, err = NewMux(local, WithLogger(nil))
	require.Error(err)
}

func TestRun_FanOut(t *testing.T) {
	require := require.New(t)

	m, remote := newTestMux(t)
	echo(remote)

	keys := []uint16{1, 2, 3}
	results, err := Run(context.Background(), m, keys, func(ctx context.Context, key uint16, ch *Channel) (int, error) {
		if err := ch.Send(ctx, frame(key, byte(key))); err != nil {
			return 0, err
		}

		// every channel sees every echoed frame; count until our own arrives
		seen := 0
		for {
			f, err := ch.Recv(ctx)
			if err != nil {
				return seen, err
			}
			seen++
			if f.ID == can.StandardID(key) {
				if f.Payload()[0] != byte(key) {
					return seen, fmt.Errorf("unexpected frame %s", f)
				}
				return seen, nil
			}
		}
	})
	require.NoError(err)
	require.Len(results, 3)

	for i, r := range results {
		require.Equal(keys[i], r.Key)
		require.NoError(r.Err)
		require.GreaterOrEqual(r.Value, 1)
	}

	require.Equal(uint64(3), m.Metrics().FramesSent.Load())
	require.Equal(uint64(3), m.Metrics().FramesRecv.Load())
	require.Equal(uint64(1), m.Metrics().SessionCount.Load())
	require.Zero(m.Metrics().OpsRunning.Load())
}

func TestRun_JoinAll(t *testing.T) {
	require := require.New(t)

	m, _ := newTestMux(t)
	errBoom := errors.New("boom")

	var finished atomic.Int32
	results, err := Run(context.Background(), m, []string{"a", "b", "c"}, func(ctx context.Context, key string, _ *Channel) (string, error) {
		if key == "b" {
			return "", errBoom
		}
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		finished.Add(1)

		return key + key, nil
	})

	require.ErrorIs(err, errBoom)
	require.Equal(int32(2), finished.Load(), "a failure must not cancel the others")
	require.Equal("aa", results[0].Value)
	require.ErrorIs(results[1].Err, errBoom)
	require.Equal("cc", results[2].Value)
	require.Equal(uint64(1), m.Metrics().OpsFailed.Load())

	joined := Errors(results)
	require.ErrorIs(joined, errBoom)
	require.Contains(joined.Error(), "b: boom")
}

func TestRun_FirstErrorInCompletionOrder(t *testing.T) {
	m, _ := newTestMux(t)
	errSlow := errors.New("slow")
	errFast := errors.New("fast")

	_, err := Run(context.Background(), m, []int{0, 1}, func(_ context.Context, key int, _ *Channel) (struct{}, error) {
		if key == 0 {
			time.Sleep(30 * time.Millisecond)
			return struct{}{}, errSlow
		}
		return struct{}{}, errFast
	})
	require.ErrorIs(t, err, errFast)
}

func TestRun_TransportFailure(t *testing.T) {
	require := require.New(t)

	m, remote := newTestMux(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = remote.Close()
	}()

	results, err := Run(context.Background(), m, []int{1, 2}, func(ctx context.Context, _ int, ch *Channel) (can.Frame, error) {
		return ch.Recv(ctx)
	})

	require.ErrorIs(err, ErrTransport)
	require.ErrorIs(err, can.ErrClosed)

	var terr *TransportError
	require.ErrorAs(err, &terr)
	require.Equal("read", terr.Op)

	for _, r := range results {
		require.ErrorIs(r.Err, ErrTransport)
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	m, _ := newTestMux(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results, err := Run(ctx, m, []int{1}, func(ctx context.Context, _ int, ch *Channel) (can.Frame, error) {
		return ch.Recv(ctx)
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Error(t, results[0].Err)
}

func TestRun_SendOrderAndFlush(t *testing.T) {
	require := require.New(t)

	m, remote := newTestMux(t)

	_, err := Run(context.Background(), m, []int{0}, func(ctx context.Context, _ int, ch *Channel) (struct{}, error) {
		for i := 0; i < 5; i++ {
			if err := ch.Send(ctx, frame(1, byte(i))); err != nil {
				return struct{}{}, err
			}
		}
		// return without waiting for the writes
		return struct{}{}, nil
	})
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		f, err := remote.ReadFrame(ctx)
		require.NoError(err)
		require.Equal([]byte{byte(i)}, f.Payload(), "frame %d", i)
	}
}

func TestRun_Lagged(t *testing.T) {
	require := require.New(t)

	m, remote := newTestMux(t, WithBroadcastCapacity(1))

	_, err := Run(context.Background(), m, []int{0}, func(ctx context.Context, _ int, ch *Channel) (struct{}, error) {
		for i := 0; i < 3; i++ {
			if err := remote.WriteFrame(ctx, frame(1, byte(i))); err != nil {
				return struct{}{}, err
			}
		}

		deadline := time.Now().Add(time.Second)
		for m.Metrics().FramesRecv.Load() < 3 {
			if time.Now().After(deadline) {
				return struct{}{}, errors.New("frames not received")
			}
			time.Sleep(time.Millisecond)
		}

		if _, err := ch.Recv(ctx); !errors.Is(err, ErrLagged) {
			return struct{}{}, fmt.Errorf("expected lagged, got %v", err)
		}

		// the frame that fit the buffer is still delivered
		f, err := ch.Recv(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if f.Payload()[0] != 0 {
			return struct{}{}, fmt.Errorf("unexpected frame %s", f)
		}

		return struct{}{}, nil
	})
	require.NoError(err)
	require.Equal(uint64(2), m.Metrics().FramesLagged.Load())
}

func TestRun_SessionsDoNotShareFrames(t *testing.T) {
	require := require.New(t)

	m, remote := newTestMux(t)
	echo(remote)

	ctx := context.Background()
	for round := 0; round < 3; round++ {
		results, err := Run(ctx, m, []int{round}, func(ctx context.Context, _ int, ch *Channel) (byte, error) {
			if err := ch.Send(ctx, frame(1, byte(round))); err != nil {
				return 0, err
			}
			f, err := ch.Recv(ctx)
			if err != nil {
				return 0, err
			}
			return f.Payload()[0], nil
		})
		require.NoError(err)
		require.Equal(byte(round), results[0].Value)
	}
	require.Equal(uint64(3), m.Metrics().SessionCount.Load())
}

func TestChannel_UseAfterSession(t *testing.T) {
	require := require.New(t)

	m, _ := newTestMux(t)

	var leaked *Channel
	_, err := Run(context.Background(), m, []int{0}, func(_ context.Context, _ int, ch *Channel) (struct{}, error) {
		leaked = ch
		return struct{}{}, nil
	})
	require.NoError(err)

	_, err = leaked.Recv(context.Background())
	require.ErrorIs(err, ErrSessionClosed)
}

func TestErrors_AllSucceeded(t *testing.T) {
	require.NoError(t, Errors([]Result[int, int]{{Key: 1}, {Key: 2}}))
}
