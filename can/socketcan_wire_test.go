package can

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSocketCANWire(t *testing.T) {
	tests := []struct {
		description string
		frame       Frame
		rawID       uint32
	}{
		{
			description: "standard",
			frame:       Frame{ID: StandardID(1), Len: 3, Data: [8]byte{0xF3, 0x01, 0xF5}},
			rawID:       1,
		},
		{
			description: "extended",
			frame:       Frame{ID: ExtendedID(0x1ABCDEF), Len: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}},
			rawID:       0x1ABCDEF | canEFFFlag,
		},
		{
			description: "empty",
			frame:       Frame{ID: StandardID(0x7FF)},
			rawID:       0x7FF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			require := require.New(t)

			buf := make([]byte, socketCANFrameSize)
			marshalSocketCAN(tt.frame, buf)
			require.Equal(tt.rawID, binary.NativeEndian.Uint32(buf[0:4]))
			require.Equal(tt.frame.Len, buf[4])

			got, ok, err := unmarshalSocketCAN(buf)
			require.NoError(err)
			require.True(ok)
			require.Equal(tt.frame, got)
		})
	}
}

func TestSocketCANWire_SkipsRemoteAndErrorFrames(t *testing.T) {
	require := require.New(t)

	buf := make([]byte, socketCANFrameSize)
	for _, flag := range []uint32{canRTRFlag, canERRFlag} {
		binary.NativeEndian.PutUint32(buf[0:4], 0x123|flag)
		_, ok, err := unmarshalSocketCAN(buf)
		require.NoError(err)
		require.False(ok)
	}

	_, _, err := unmarshalSocketCAN(buf[:8])
	require.Error(err)
}
