package servo

import (
	"encoding/binary"
)

// Field limits enforced by Encode.
const (
	MaxBusID     = 0x7FF
	MaxHomeSpeed = 3000
	// MaxSpeed is the largest speed that fits the 12-bit field packed next to
	// the direction bit of RunSpeedMode and RunRelativePulses.
	MaxSpeed = 3000

	MinAxisTarget = -(1 << 23)
	MaxAxisTarget = 1<<23 - 1
)

// Request is a command sent to a servo controller. The set of implementations
// is closed; use Encode to turn one into a frame.
type Request interface {
	Opcode() Opcode
	appendPayload(dst []byte) ([]byte, error)
}

type noArgs struct{}

func (noArgs) appendPayload(dst []byte) ([]byte, error) { return dst, nil }

// ReadEncoderCarry reads the encoder as turn count plus angle within the turn.
type ReadEncoderCarry struct{ noArgs }

// ReadEncoderAddition reads the accumulated encoder value, 0x4000 per turn.
type ReadEncoderAddition struct{ noArgs }

// ReadSpeed reads the current speed in RPM.
type ReadSpeed struct{ noArgs }

// ReadPulses reads the number of step pulses received.
type ReadPulses struct{ noArgs }

// ReadIOPorts reads the IN/OUT port levels.
type ReadIOPorts struct{ noArgs }

// ReadPositionError reads the difference between target and actual angle.
type ReadPositionError struct{ noArgs }

// ReadEnPin reads the state of the EN pin.
type ReadEnPin struct{ noArgs }

// ReadGoBackToZeroStatus reads the status of the power-on return to zero.
type ReadGoBackToZeroStatus struct{ noArgs }

// ReleaseMotorShaft releases a shaft locked by the stall protection.
type ReleaseMotorShaft struct{ noArgs }

// ReadLockedRotor reads whether the stall protection locked the shaft.
type ReadLockedRotor struct{ noArgs }

// RestoreDefaults restores the factory parameters.
type RestoreDefaults struct{ noArgs }

// Calibrate starts encoder calibration. The motor must be unloaded.
type Calibrate struct{ noArgs }

// GoHome starts the homing sequence configured with SetHome.
type GoHome struct{ noArgs }

// SetAxisZero makes the current position the zero of the axis.
type SetAxisZero struct{ noArgs }

// QueryStatus queries the motor state.
type QueryStatus struct{ noArgs }

func (ReadEncoderCarry) Opcode() Opcode       { return OpReadEncoderCarry }
func (ReadEncoderAddition) Opcode() Opcode    { return OpReadEncoderAddition }
func (ReadSpeed) Opcode() Opcode              { return OpReadSpeed }
func (ReadPulses) Opcode() Opcode             { return OpReadPulses }
func (ReadIOPorts) Opcode() Opcode            { return OpReadIOPorts }
func (ReadPositionError) Opcode() Opcode      { return OpReadPositionError }
func (ReadEnPin) Opcode() Opcode              { return OpReadEnPin }
func (ReadGoBackToZeroStatus) Opcode() Opcode { return OpReadGoBackToZeroStatus }
func (ReleaseMotorShaft) Opcode() Opcode      { return OpReleaseMotorShaft }
func (ReadLockedRotor) Opcode() Opcode        { return OpReadLockedRotor }
func (RestoreDefaults) Opcode() Opcode        { return OpRestoreDefaults }
func (Calibrate) Opcode() Opcode              { return OpCalibrate }
func (GoHome) Opcode() Opcode                 { return OpGoHome }
func (SetAxisZero) Opcode() Opcode            { return OpSetAxisZero }
func (QueryStatus) Opcode() Opcode            { return OpQueryStatus }

// SetWorkMode selects the control mode.
type SetWorkMode struct {
	Mode WorkMode
}

func (SetWorkMode) Opcode() Opcode { return OpSetWorkMode }

func (r SetWorkMode) appendPayload(dst []byte) ([]byte, error) {
	if !r.Mode.Valid() {
		return nil, outOfRange("Mode", r.Mode, "a WorkMode")
	}
	return append(dst, byte(r.Mode)), nil
}

// SetCurrent sets the working current in mA.
type SetCurrent struct {
	MilliAmps uint16
}

func (SetCurrent) Opcode() Opcode { return OpSetCurrent }

func (r SetCurrent) appendPayload(dst []byte) ([]byte, error) {
	return binary.BigEndian.AppendUint16(dst, r.MilliAmps), nil
}

// SetSubdivision sets the microstepping subdivision.
type SetSubdivision struct {
	Microsteps uint8
}

func (SetSubdivision) Opcode() Opcode { return OpSetSubdivision }

func (r SetSubdivision) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, r.Microsteps), nil
}

// SetEnPinActiveMode sets the active level of the EN pin.
type SetEnPinActiveMode struct {
	Active EnPinActiveMode
}

func (SetEnPinActiveMode) Opcode() Opcode { return OpSetEnPinActiveMode }

func (r SetEnPinActiveMode) appendPayload(dst []byte) ([]byte, error) {
	if !r.Active.Valid() {
		return nil, outOfRange("Active", r.Active, "an EnPinActiveMode")
	}
	return append(dst, byte(r.Active)), nil
}

// SetDir sets the positive direction of rotation.
type SetDir struct {
	Dir Direction
}

func (SetDir) Opcode() Opcode { return OpSetDir }

func (r SetDir) appendPayload(dst []byte) ([]byte, error) {
	if !r.Dir.Valid() {
		return nil, outOfRange("Dir", r.Dir, "a Direction")
	}
	return append(dst, byte(r.Dir)), nil
}

// SetAutoSSD turns automatic screen-off on or off.
type SetAutoSSD struct {
	Enable bool
}

// SetLockedRotorProtection turns stall protection on or off.
type SetLockedRotorProtection struct {
	Enable bool
}

// SetSubdivisionInterpolation turns step interpolation on or off.
type SetSubdivisionInterpolation struct {
	Enable bool
}

// SetCanResponses turns command responses on or off.
type SetCanResponses struct {
	Enable bool
}

// SetKeyLock locks or unlocks the front panel keys.
type SetKeyLock struct {
	Enable bool
}

func (SetAutoSSD) Opcode() Opcode                  { return OpSetAutoSSD }
func (SetLockedRotorProtection) Opcode() Opcode    { return OpSetLockedRotorProtection }
func (SetSubdivisionInterpolation) Opcode() Opcode { return OpSetSubdivisionInterpolation }
func (SetCanResponses) Opcode() Opcode             { return OpSetCanResponses }
func (SetKeyLock) Opcode() Opcode                  { return OpSetKeyLock }

func (r SetAutoSSD) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, boolByte(r.Enable)), nil
}

func (r SetLockedRotorProtection) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, boolByte(r.Enable)), nil
}

func (r SetSubdivisionInterpolation) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, boolByte(r.Enable)), nil
}

func (r SetCanResponses) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, boolByte(r.Enable)), nil
}

func (r SetKeyLock) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, boolByte(r.Enable)), nil
}

// SetCanBitRate changes the controller's CAN bitrate.
type SetCanBitRate struct {
	Rate CanBitRate
}

func (SetCanBitRate) Opcode() Opcode { return OpSetCanBitRate }

func (r SetCanBitRate) appendPayload(dst []byte) ([]byte, error) {
	if !r.Rate.Valid() {
		return nil, outOfRange("Rate", r.Rate, "a CanBitRate")
	}
	return append(dst, byte(r.Rate)), nil
}

// SetCanID changes the controller's CAN identifier.
type SetCanID struct {
	ID uint16
}

func (SetCanID) Opcode() Opcode { return OpSetCanID }

func (r SetCanID) appendPayload(dst []byte) ([]byte, error) {
	if r.ID > MaxBusID {
		return nil, outOfRange("ID", r.ID, "<= 0x7FF")
	}
	return binary.BigEndian.AppendUint16(dst, r.ID), nil
}

// SetGroupID sets the group identifier the controller also listens on.
type SetGroupID struct {
	ID uint16
}

func (SetGroupID) Opcode() Opcode { return OpSetGroupID }

func (r SetGroupID) appendPayload(dst []byte) ([]byte, error) {
	if r.ID > MaxBusID {
		return nil, outOfRange("ID", r.ID, "<= 0x7FF")
	}
	return binary.BigEndian.AppendUint16(dst, r.ID), nil
}

// SetHome configures the homing sequence.
type SetHome struct {
	Trig     HomeTrig
	Dir      Direction
	Speed    uint16
	EndLimit bool
}

func (SetHome) Opcode() Opcode { return OpSetHome }

func (r SetHome) appendPayload(dst []byte) ([]byte, error) {
	switch {
	case !r.Trig.Valid():
		return nil, outOfRange("Trig", r.Trig, "a HomeTrig")
	case !r.Dir.Valid():
		return nil, outOfRange("Dir", r.Dir, "a Direction")
	case r.Speed > MaxHomeSpeed:
		return nil, outOfRange("Speed", r.Speed, "<= 3000")
	}

	dst = append(dst, byte(r.Trig), byte(r.Dir))
	dst = binary.BigEndian.AppendUint16(dst, r.Speed)

	return append(dst, boolByte(r.EndLimit)), nil
}

// SetZeroOnPowerOn configures the return to zero at power-on.
type SetZeroOnPowerOn struct {
	Mode   ZeroMode
	Enable bool
	Speed  ZeroModeSpeed
	Dir    Direction
}

func (SetZeroOnPowerOn) Opcode() Opcode { return OpSetZeroOnPowerOn }

func (r SetZeroOnPowerOn) appendPayload(dst []byte) ([]byte, error) {
	switch {
	case !r.Mode.Valid():
		return nil, outOfRange("Mode", r.Mode, "a ZeroMode")
	case !r.Speed.Valid():
		return nil, outOfRange("Speed", r.Speed, "a ZeroModeSpeed")
	case !r.Dir.Valid():
		return nil, outOfRange("Dir", r.Dir, "a Direction")
	}

	return append(dst, byte(r.Mode), boolByte(r.Enable), byte(r.Speed), byte(r.Dir)), nil
}

// Enable powers the motor driver on or off.
type Enable struct {
	Enabled bool
}

func (Enable) Opcode() Opcode { return OpEnable }

func (r Enable) appendPayload(dst []byte) ([]byte, error) {
	return append(dst, boolByte(r.Enabled)), nil
}

// RunSpeedMode runs the motor continuously at Speed RPM.
type RunSpeedMode struct {
	Dir   Direction
	Speed uint16
	Accel uint8
}

func (RunSpeedMode) Opcode() Opcode { return OpRunSpeedMode }

func (r RunSpeedMode) appendPayload(dst []byte) ([]byte, error) {
	dst, err := appendDirSpeed(dst, r.Dir, r.Speed)
	if err != nil {
		return nil, err
	}
	return append(dst, r.Accel), nil
}

// SaveRunModeParams saves or clears the speed-mode parameters used at power-on.
type SaveRunModeParams struct {
	State SaveState
}

func (SaveRunModeParams) Opcode() Opcode { return OpSaveRunModeParams }

func (r SaveRunModeParams) appendPayload(dst []byte) ([]byte, error) {
	if !r.State.Valid() {
		return nil, outOfRange("State", r.State, "a SaveState")
	}
	return append(dst, byte(r.State)), nil
}

// RunRelativePulses moves by a number of step pulses.
type RunRelativePulses struct {
	Dir    Direction
	Speed  uint16
	Accel  uint8
	Pulses uint16
}

func (RunRelativePulses) Opcode() Opcode { return OpRunRelativePulses }

func (r RunRelativePulses) appendPayload(dst []byte) ([]byte, error) {
	dst, err := appendDirSpeed(dst, r.Dir, r.Speed)
	if err != nil {
		return nil, err
	}
	dst = append(dst, r.Accel)

	return binary.BigEndian.AppendUint16(dst, r.Pulses), nil
}

// RunRelativeMotion moves by RelAxis encoder units (0x4000 per turn).
type RunRelativeMotion struct {
	Speed   uint16
	Accel   uint8
	RelAxis int32
}

func (RunRelativeMotion) Opcode() Opcode { return OpRunRelativeMotion }

func (r RunRelativeMotion) appendPayload(dst []byte) ([]byte, error) {
	return appendMotion(dst, r.Speed, r.Accel, "RelAxis", r.RelAxis)
}

// RunAbsoluteMotion moves to AbsAxis encoder units (0x4000 per turn) from zero.
type RunAbsoluteMotion struct {
	Speed   uint16
	Accel   uint8
	AbsAxis int32
}

func (RunAbsoluteMotion) Opcode() Opcode { return OpRunAbsoluteMotion }

func (r RunAbsoluteMotion) appendPayload(dst []byte) ([]byte, error) {
	return appendMotion(dst, r.Speed, r.Accel, "AbsAxis", r.AbsAxis)
}

// appendDirSpeed packs the direction into bit 7 of the first byte, above the
// high nibble of the speed.
func appendDirSpeed(dst []byte, dir Direction, speed uint16) ([]byte, error) {
	if !dir.Valid() {
		return nil, outOfRange("Dir", dir, "a Direction")
	}
	if speed > MaxSpeed {
		return nil, outOfRange("Speed", speed, "<= 3000")
	}

	return append(dst, byte(dir)<<7|byte(speed>>8), byte(speed)), nil
}

// appendMotion writes speed, accel and a signed 24-bit target.
func appendMotion(dst []byte, speed uint16, accel uint8, field string, target int32) ([]byte, error) {
	if target < MinAxisTarget || target > MaxAxisTarget {
		return nil, outOfRange(field, target, "within a signed 24-bit range")
	}

	dst = binary.BigEndian.AppendUint16(dst, speed)
	dst = append(dst, accel)
	u := uint32(target) //nolint:gosec // two's complement, low 24 bits kept

	return append(dst, byte(u>>16), byte(u>>8), byte(u)), nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
