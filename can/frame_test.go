package can

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	require := require.New(t)

	require.True(StandardID(0x7FF).Valid())
	require.False(StandardID(0x800).Valid())
	require.True(ExtendedID(MaxExtendedID).Valid())
	require.False(ExtendedID(MaxExtendedID + 1).Valid())

	require.Equal([]byte{0x00, 0x01}, StandardID(1).Bytes())
	require.Equal([]byte{0x07, 0xFF}, StandardID(0x7FF).Bytes())
	require.Equal([]byte{0x12, 0x34, 0x56, 0x78}, ExtendedID(0x12345678).Bytes())

	require.Equal("001", StandardID(1).String())
	require.Equal("00000001", ExtendedID(1).String())
	require.NotEqual(StandardID(1), ExtendedID(1))
}

func TestNewFrame(t *testing.T) {
	require := require.New(t)

	data := []byte{0xF5, 0x01, 0x2C}
	f, err := NewFrame(StandardID(1), data)
	require.NoError(err)
	require.Equal(uint8(3), f.Len)
	require.Equal(data, f.Payload())
	require.Equal("001#f5012c", f.String())

	// the frame owns its bytes
	data[0] = 0
	require.Equal(byte(0xF5), f.Payload()[0])

	_, err = NewFrame(StandardID(1), make([]byte, 9))
	require.ErrorIs(err, ErrFrameTooLong)

	_, err = NewFrame(StandardID(0x800), nil)
	require.ErrorIs(err, ErrInvalidID)

	f, err = NewFrame(ExtendedID(0x1ABCDEF), nil)
	require.NoError(err)
	require.Empty(f.Payload())
}

func TestFrame_PayloadClampsLen(t *testing.T) {
	f := Frame{Len: 200}
	require.Len(t, f.Payload(), MaxDataLen)
}
