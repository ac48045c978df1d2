// Package can provides the CAN frame model and the duplex frame transports the
// servo bus runs on.
//
// A Transport is the only thing the rest of the module knows about the physical
// link. Three implementations are provided:
//
//   - Pipe: two connected in-memory endpoints, used by tests and the simulator.
//   - SocketCAN: a raw AF_CAN socket on Linux (see DialSocketCAN).
//   - SLCAN: the Lawicel ASCII protocol spoken by USB-serial CAN adapters (see OpenSLCAN).
package can

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// MaxDataLen is the maximum payload length of a classic CAN frame.
const MaxDataLen = 8

const (
	// MaxStandardID is the largest 11-bit identifier.
	MaxStandardID = 0x7FF
	// MaxExtendedID is the largest 29-bit identifier.
	MaxExtendedID = 0x1FFFFFFF
)

// ID is a CAN arbitration identifier, either standard (11-bit) or extended (29-bit).
type ID struct {
	Value    uint32
	Extended bool
}

// StandardID returns an 11-bit identifier. Values above MaxStandardID are rejected
// by Valid and by NewFrame.
func StandardID(v uint16) ID {
	return ID{Value: uint32(v)}
}

// ExtendedID returns a 29-bit identifier.
func ExtendedID(v uint32) ID {
	return ID{Value: v, Extended: true}
}

// Valid reports whether the value fits the identifier's width.
func (id ID) Valid() bool {
	if id.Extended {
		return id.Value <= MaxExtendedID
	}
	return id.Value <= MaxStandardID
}

// Bytes returns the identifier in big-endian order: 2 bytes for a standard
// identifier, 4 bytes for an extended one.
func (id ID) Bytes() []byte {
	if id.Extended {
		return binary.BigEndian.AppendUint32(nil, id.Value)
	}
	return binary.BigEndian.AppendUint16(nil, uint16(id.Value)) //nolint:gosec // standard IDs are 11 bits
}

func (id ID) String() string {
	if id.Extended {
		return fmt.Sprintf("%08X", id.Value)
	}
	return fmt.Sprintf("%03X", id.Value)
}

// Frame is a classic CAN data frame. It is a value type; copies never share
// payload storage, so a frame can be handed to several goroutines safely.
type Frame struct {
	ID   ID
	Len  uint8
	Data [MaxDataLen]byte
}

// NewFrame builds a frame, copying data. It fails if the identifier is out of
// range or data is longer than MaxDataLen.
func NewFrame(id ID, data []byte) (Frame, error) {
	if !id.Valid() {
		return Frame{}, fmt.Errorf("%w: %#x", ErrInvalidID, id.Value)
	}
	if len(data) > MaxDataLen {
		return Frame{}, fmt.Errorf("%w: got %d bytes", ErrFrameTooLong, len(data))
	}

	f := Frame{ID: id, Len: uint8(len(data))} //nolint:gosec // bounded above
	copy(f.Data[:], data)

	return f, nil
}

// Payload returns a copy of the valid portion of Data.
func (f Frame) Payload() []byte {
	n := min(int(f.Len), MaxDataLen)
	return f.Data[:n]
}

// String formats the frame the way candump does: "001#F5012CB0004000F2".
func (f Frame) String() string {
	return f.ID.String() + "#" + hex.EncodeToString(f.Payload())
}
