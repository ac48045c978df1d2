package can

import (
	"encoding/binary"
	"fmt"
)

// struct can_frame layout from linux/can.h.
const (
	socketCANFrameSize = 16

	canEFFFlag = 0x80000000
	canRTRFlag = 0x40000000
	canERRFlag = 0x20000000
	canEFFMask = 0x1FFFFFFF
	canSFFMask = 0x000007FF
)

// marshalSocketCAN encodes f into a struct can_frame in host byte order.
func marshalSocketCAN(f Frame, buf []byte) {
	id := f.ID.Value
	if f.ID.Extended {
		id = (id & canEFFMask) | canEFFFlag
	} else {
		id &= canSFFMask
	}

	binary.NativeEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	buf[5], buf[6], buf[7] = 0, 0, 0
	copy(buf[8:16], f.Data[:])
}

// unmarshalSocketCAN decodes a struct can_frame. ok is false for remote and
// error frames, which the servo bus never uses.
func unmarshalSocketCAN(buf []byte) (f Frame, ok bool, err error) {
	if len(buf) != socketCANFrameSize {
		return Frame{}, false, fmt.Errorf("can: short socketcan read: %d bytes", len(buf))
	}

	raw := binary.NativeEndian.Uint32(buf[0:4])
	if raw&(canRTRFlag|canERRFlag) != 0 {
		return Frame{}, false, nil
	}

	if raw&canEFFFlag != 0 {
		f.ID = ExtendedID(raw & canEFFMask)
	} else {
		f.ID = ID{Value: raw & canSFFMask}
	}

	f.Len = min(buf[4], MaxDataLen)
	copy(f.Data[:], buf[8:16])

	return f, true, nil
}
