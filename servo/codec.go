package servo

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-servobus/can"
)

// Checksum returns the frame check byte: the sum of the identifier's
// big-endian bytes and the payload, truncated to 8 bits. The device manual
// calls it CRC, but it is a plain sum.
func Checksum(id can.ID, payload []byte) byte {
	var sum byte
	for _, b := range id.Bytes() {
		sum += b
	}
	for _, b := range payload {
		sum += b
	}

	return sum
}

// Encode builds the frame for req addressed to id:
//
//	[opcode][payload][checksum]
//
// It fails with ErrOutOfRange when a field violates its declared range.
func Encode(req Request, id can.ID) (can.Frame, error) {
	if req == nil {
		return can.Frame{}, errors.New("servo: nil request")
	}

	return encode(req.Opcode(), req.appendPayload, id)
}

// EncodeResponse builds the reply frame a controller would send for resp.
// It is the inverse of Decode and is used by simulators and tests.
func EncodeResponse(resp Response, id can.ID) (can.Frame, error) {
	if resp == nil {
		return can.Frame{}, errors.New("servo: nil response")
	}

	return encode(resp.Opcode(), resp.appendPayload, id)
}

func encode(op Opcode, appendPayload func([]byte) ([]byte, error), id can.ID) (can.Frame, error) {
	buf := make([]byte, 1, can.MaxDataLen)
	buf[0] = byte(op)

	buf, err := appendPayload(buf)
	if err != nil {
		return can.Frame{}, fmt.Errorf("servo: encode %s: %w", op, err)
	}

	buf = append(buf, Checksum(id, buf))

	return can.NewFrame(id, buf)
}

// Decode parses a reply frame received from the controller addressed by id.
//
// Validation happens in order: checksum, opcode, payload length, enum values.
// Bytes beyond the length a variant needs are ignored.
func Decode(id can.ID, f can.Frame) (Response, error) {
	data := f.Payload()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrPayloadTooShort)
	}

	body, actual := data[:len(data)-1], data[len(data)-1]
	if expected := Checksum(id, body); expected != actual {
		return nil, &ChecksumMismatchError{Expected: expected, Actual: actual}
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("%w: frame has no opcode", ErrPayloadTooShort)
	}

	op := Opcode(body[0])
	if !op.Known() {
		return nil, &UnknownOpcodeError{Opcode: body[0]}
	}

	return parseResponse(op, body[1:])
}
