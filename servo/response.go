package servo

import (
	"encoding/binary"
	"fmt"
)

// Encoder addition values are 48-bit two's complement.
const (
	MinEncoderAddition = -(1 << 47)
	MaxEncoderAddition = 1<<47 - 1
)

// Response is a decoded reply from a servo controller. The set of
// implementations is closed; type-switch on the concrete type.
type Response interface {
	Opcode() Opcode
	appendPayload(dst []byte) ([]byte, error)
}

// EncoderCarryResponse answers ReadEncoderCarry.
type EncoderCarryResponse struct {
	// Carry is the number of completed turns, CCW positive.
	Carry int32
	// Value is the angle within the turn, 0..0x3FFF.
	Value uint16
}

// EncoderAdditionResponse answers ReadEncoderAddition.
type EncoderAdditionResponse struct {
	// Value is the position from zero; 0x4000 is one turn.
	Value int64
}

// SpeedResponse answers ReadSpeed.
type SpeedResponse struct {
	RPM int16
}

// PulsesResponse answers ReadPulses.
type PulsesResponse struct {
	Pulses int32
}

// IOPortsResponse answers ReadIOPorts.
type IOPortsResponse struct {
	In1, In2   bool
	Out1, Out2 bool
}

// PositionErrorResponse answers ReadPositionError. 51200 units are 360 degrees.
type PositionErrorResponse struct {
	Error int32
}

// EnPinResponse answers ReadEnPin.
type EnPinResponse struct {
	Enabled bool
}

// LockedRotorResponse answers ReadLockedRotor.
type LockedRotorResponse struct {
	Locked bool
}

// ProgressResponse answers ReadGoBackToZeroStatus, Calibrate and GoHome.
type ProgressResponse struct {
	Op     Opcode
	Status ProgressStatus
}

// AckResponse answers every command whose reply is a single success flag.
type AckResponse struct {
	Op      Opcode
	Success bool
}

// QueryStatusResponse answers QueryStatus. Known is false when the controller
// reported that the query failed.
type QueryStatusResponse struct {
	Status MotorStatus
	Known  bool
}

// MotionResponse answers RunSpeedMode and the position motion commands. A
// motion command may be answered several times: Busy while moving, then a
// terminal status.
type MotionResponse struct {
	Op     Opcode
	Status MotionStatus
}

func (EncoderCarryResponse) Opcode() Opcode    { return OpReadEncoderCarry }
func (EncoderAdditionResponse) Opcode() Opcode { return OpReadEncoderAddition }
func (SpeedResponse) Opcode() Opcode           { return OpReadSpeed }
func (PulsesResponse) Opcode() Opcode          { return OpReadPulses }
func (IOPortsResponse) Opcode() Opcode         { return OpReadIOPorts }
func (PositionErrorResponse) Opcode() Opcode   { return OpReadPositionError }
func (EnPinResponse) Opcode() Opcode           { return OpReadEnPin }
func (LockedRotorResponse) Opcode() Opcode     { return OpReadLockedRotor }
func (r ProgressResponse) Opcode() Opcode      { return r.Op }
func (r AckResponse) Opcode() Opcode           { return r.Op }
func (QueryStatusResponse) Opcode() Opcode     { return OpQueryStatus }
func (r MotionResponse) Opcode() Opcode        { return r.Op }

func (r EncoderCarryResponse) appendPayload(dst []byte) ([]byte, error) {
	dst = binary.BigEndian.AppendUint32(dst, uint32(r.Carry)) //nolint:gosec // two's complement
	return binary.BigEndian.AppendUint16(dst, r.Value), nil
}

func (r EncoderAdditionResponse) appendPayload(dst []byte) ([]byte, error) {
	if r.Value < MinEncoderAddition || r.Value > MaxEncoderAddition {
		return nil, outOfRange("Value", r.Value, "within a signed 48-bit range")
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(r.Value)) //nolint:gosec // two's complement

	return append(dst, b[2:]...), nil
}

func (r SpeedResponse) appendPayload(dst []byte) ([]byte, error) {
	return binary.BigEndian.AppendUint16(dst, uint16(r.RPM)), nil //nolint:gosec // two's complement
}

func (r PulsesResponse) appendPayload(dst []byte) ([]byte, error) {
	return binary.BigEndian.AppendUint32(dst, uint32(r.Pulses)), nil //nolint:gosec // two's complement
}

func (r IOPortsResponse) appendPayload(dst []byte) ([]byte, error) {
	var b byte
	for i, set := range []bool{r.In1, r.In2, r.Out1, r.Out2} {
		if set {
			b |= 1 << i
		}
	}
	return append(dst, b), nil
}

func (r PositionErrorResponse) appendPayload(dst []byte) ([]byte, error) {
	return binary.BigEndian.AppendUint32(dst, uint32(r.Error)), nil //nolint:gosec // two's complement
}

func (r EnPinResponse) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, boolByte(r.Enabled)), nil
}

func (r LockedRotorResponse) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, boolByte(r.Locked)), nil
}

func (r ProgressResponse) appendPayload(dst []byte) ([]byte, error) {
	if responseKinds[r.Op].kind != kindProgress {
		return nil, fmt.Errorf("%w: %s has no progress reply", ErrOutOfRange, r.Op)
	}
	if !r.Status.Valid() {
		return nil, outOfRange("Status", r.Status, "a ProgressStatus")
	}
	if r.Op == OpGoHome {
		return append(dst, goHomeRaw[r.Status]), nil
	}
	return append(dst, byte(r.Status)), nil
}

func (r AckResponse) appendPayload(dst []byte) ([]byte, error) {
	if responseKinds[r.Op].kind != kindAck {
		return nil, fmt.Errorf("%w: %s has no acknowledge reply", ErrOutOfRange, r.Op)
	}
	return append(dst, boolByte(r.Success)), nil
}

func (r QueryStatusResponse) appendPayload(dst []byte) ([]byte, error) {
	if !r.Known {
		return append(dst, 0), nil
	}
	if !r.Status.Valid() {
		return nil, outOfRange("Status", r.Status, "a MotorStatus")
	}
	return append(dst, byte(r.Status)), nil
}

func (r MotionResponse) appendPayload(dst []byte) ([]byte, error) {
	if responseKinds[r.Op].kind != kindMotion {
		return nil, fmt.Errorf("%w: %s has no motion reply", ErrOutOfRange, r.Op)
	}
	if !r.Status.Valid() {
		return nil, outOfRange("Status", r.Status, "a MotionStatus")
	}
	return append(dst, byte(r.Status)), nil
}

type responseKind uint8

const (
	kindEncoderCarry responseKind = iota + 1
	kindEncoderAddition
	kindSpeed
	kindPulses
	kindIOPorts
	kindPositionError
	kindEnPin
	kindLockedRotor
	kindProgress
	kindAck
	kindQueryStatus
	kindMotion
)

type responseLayout struct {
	kind responseKind
	size int
}

// responseKinds maps every opcode to the shape of its reply payload
// (opcode and checksum excluded).
var responseKinds = map[Opcode]responseLayout{
	OpReadEncoderCarry:            {kindEncoderCarry, 6},
	OpReadEncoderAddition:         {kindEncoderAddition, 6},
	OpReadSpeed:                   {kindSpeed, 2},
	OpReadPulses:                  {kindPulses, 4},
	OpReadIOPorts:                 {kindIOPorts, 1},
	OpReadPositionError:           {kindPositionError, 4},
	OpReadEnPin:                   {kindEnPin, 1},
	OpReadGoBackToZeroStatus:      {kindProgress, 1},
	OpReleaseMotorShaft:           {kindAck, 1},
	OpReadLockedRotor:             {kindLockedRotor, 1},
	OpRestoreDefaults:             {kindAck, 1},
	OpCalibrate:                   {kindProgress, 1},
	OpSetWorkMode:                 {kindAck, 1},
	OpSetCurrent:                  {kindAck, 1},
	OpSetSubdivision:              {kindAck, 1},
	OpSetEnPinActiveMode:          {kindAck, 1},
	OpSetDir:                      {kindAck, 1},
	OpSetAutoSSD:                  {kindAck, 1},
	OpSetLockedRotorProtection:    {kindAck, 1},
	OpSetSubdivisionInterpolation: {kindAck, 1},
	OpSetCanBitRate:               {kindAck, 1},
	OpSetCanID:                    {kindAck, 1},
	OpSetCanResponses:             {kindAck, 1},
	OpSetGroupID:                  {kindAck, 1},
	OpSetKeyLock:                  {kindAck, 1},
	OpSetHome:                     {kindAck, 1},
	OpGoHome:                      {kindProgress, 1},
	OpSetAxisZero:                 {kindAck, 1},
	OpSetZeroOnPowerOn:            {kindAck, 1},
	OpQueryStatus:                 {kindQueryStatus, 1},
	OpEnable:                      {kindAck, 1},
	OpRunRelativeMotion:           {kindMotion, 1},
	OpRunAbsoluteMotion:           {kindMotion, 1},
	OpRunSpeedMode:                {kindMotion, 1},
	OpRunRelativePulses:           {kindMotion, 1},
	OpSaveRunModeParams:           {kindAck, 1},
}

// GoHome reports progress with its own encoding: 0 fail, 1 busy, 2 success.
var (
	goHomeStatus = map[byte]ProgressStatus{0: ProgressFail, 1: ProgressBusy, 2: ProgressSuccess}
	goHomeRaw    = map[ProgressStatus]byte{ProgressFail: 0, ProgressBusy: 1, ProgressSuccess: 2}
)

// parseResponse decodes the payload that follows the opcode. Bytes beyond
// the layout size are ignored.
func parseResponse(op Opcode, data []byte) (Response, error) {
	layout, ok := responseKinds[op]
	if !ok {
		return nil, &UnknownOpcodeError{Opcode: byte(op)}
	}
	if len(data) < layout.size {
		return nil, &PayloadTooShortError{Op: op, Want: layout.size, Got: len(data)}
	}

	switch layout.kind {
	case kindEncoderCarry:
		return EncoderCarryResponse{
			Carry: int32(binary.BigEndian.Uint32(data[0:4])), //nolint:gosec // two's complement
			Value: binary.BigEndian.Uint16(data[4:6]),
		}, nil

	case kindEncoderAddition:
		return EncoderAdditionResponse{Value: signExtend48(data[:6])}, nil

	case kindSpeed:
		return SpeedResponse{RPM: int16(binary.BigEndian.Uint16(data))}, nil //nolint:gosec // two's complement

	case kindPulses:
		return PulsesResponse{Pulses: int32(binary.BigEndian.Uint32(data))}, nil //nolint:gosec // two's complement

	case kindIOPorts:
		b := data[0]
		return IOPortsResponse{
			In1:  b&0b0001 != 0,
			In2:  b&0b0010 != 0,
			Out1: b&0b0100 != 0,
			Out2: b&0b1000 != 0,
		}, nil

	case kindPositionError:
		return PositionErrorResponse{Error: int32(binary.BigEndian.Uint32(data))}, nil //nolint:gosec // two's complement

	case kindEnPin:
		return EnPinResponse{Enabled: data[0] != 0}, nil

	case kindLockedRotor:
		return LockedRotorResponse{Locked: data[0] != 0}, nil

	case kindProgress:
		if op == OpGoHome {
			status, ok := goHomeStatus[data[0]]
			if !ok {
				return nil, &InvalidEnumValueError{Field: "ProgressStatus (GoHome)", Value: data[0]}
			}
			return ProgressResponse{Op: op, Status: status}, nil
		}
		status := ProgressStatus(data[0])
		if !status.Valid() {
			return nil, &InvalidEnumValueError{Field: "ProgressStatus", Value: data[0]}
		}
		return ProgressResponse{Op: op, Status: status}, nil

	case kindAck:
		return AckResponse{Op: op, Success: data[0] != 0}, nil

	case kindQueryStatus:
		if data[0] == 0 {
			return QueryStatusResponse{}, nil
		}
		status := MotorStatus(data[0])
		if !status.Valid() {
			return nil, &InvalidEnumValueError{Field: "MotorStatus", Value: data[0]}
		}
		return QueryStatusResponse{Status: status, Known: true}, nil

	case kindMotion:
		status := MotionStatus(data[0])
		if !status.Valid() {
			return nil, &InvalidEnumValueError{Field: "MotionStatus", Value: data[0]}
		}
		return MotionResponse{Op: op, Status: status}, nil
	}

	return nil, &UnknownOpcodeError{Opcode: byte(op)}
}

// signExtend48 widens a big-endian 48-bit value. The sign test is b[0] > 0x80,
// not the top bit, so a leading 0x80 byte decodes as a large positive value.
func signExtend48(b []byte) int64 {
	var ext byte
	if b[0] > 0x80 {
		ext = 0xff
	}
	return int64(binary.BigEndian.Uint64([]byte{ext, ext, b[0], b[1], b[2], b[3], b[4], b[5]})) //nolint:gosec // two's complement
}
