package can

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipe_Duplex(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	a, b := NewPipe()
	defer a.Close()

	f1, _ := NewFrame(StandardID(1), []byte{0x31, 0x32})
	f2, _ := NewFrame(StandardID(2), []byte{0x31, 0x33})

	require.NoError(a.WriteFrame(ctx, f1))
	require.NoError(a.WriteFrame(ctx, f2))
	require.NoError(b.WriteFrame(ctx, f2))

	got, err := b.ReadFrame(ctx)
	require.NoError(err)
	require.Equal(f1, got)
	got, err = b.ReadFrame(ctx)
	require.NoError(err)
	require.Equal(f2, got)

	got, err = a.ReadFrame(ctx)
	require.NoError(err)
	require.Equal(f2, got)
}

func TestPipe_ReadHonorsContext(t *testing.T) {
	a, _ := NewPipe()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.ReadFrame(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestPipe_CloseEitherSide(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	a, b := NewPipe()

	errCh := make(chan error, 1)
	go func() {
		_, err := a.ReadFrame(ctx)
		errCh <- err
	}()

	require.NoError(b.Close())
	require.NoError(b.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(err, ErrClosed)
	case <-time.After(time.Second):
		require.Fail("read not unblocked by close")
	}

	require.ErrorIs(a.WriteFrame(ctx, Frame{}), ErrClosed)
	require.ErrorIs(b.WriteFrame(ctx, Frame{}), ErrClosed)
}
