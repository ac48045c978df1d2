package servo

import (
	"errors"
	"fmt"
)

// Sentinel errors for the servo frame codec. The typed errors below carry the
// details and match their sentinel with errors.Is.
var (
	// ErrOutOfRange is returned by Encode when a request field violates its
	// declared range. It is a caller bug, not a bus condition.
	ErrOutOfRange = errors.New("servo: field out of range")

	ErrChecksumMismatch = errors.New("servo: checksum mismatch")
	ErrUnknownOpcode    = errors.New("servo: unknown opcode")
	ErrPayloadTooShort  = errors.New("servo: payload too short")
	ErrInvalidEnumValue = errors.New("servo: invalid enum value")
)

// ChecksumMismatchError reports a frame whose trailing byte does not match the
// checksum computed over its identifier and payload.
type ChecksumMismatchError struct {
	Expected byte
	Actual   byte
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("servo: checksum mismatch: expected %#02x, got %#02x", e.Expected, e.Actual)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }

// UnknownOpcodeError reports a response whose first byte is not in the command set.
type UnknownOpcodeError struct {
	Opcode byte
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("servo: unknown opcode %#02x", e.Opcode)
}

func (e *UnknownOpcodeError) Unwrap() error { return ErrUnknownOpcode }

// PayloadTooShortError reports a response with fewer bytes than its variant needs.
type PayloadTooShortError struct {
	Op   Opcode
	Want int
	Got  int
}

func (e *PayloadTooShortError) Error() string {
	return fmt.Sprintf("servo: %s payload too short: want %d bytes, got %d", e.Op, e.Want, e.Got)
}

func (e *PayloadTooShortError) Unwrap() error { return ErrPayloadTooShort }

// InvalidEnumValueError reports a status byte outside its enumeration.
type InvalidEnumValueError struct {
	Field string
	Value uint8
}

func (e *InvalidEnumValueError) Error() string {
	return fmt.Sprintf("servo: invalid value %d for %s", e.Value, e.Field)
}

func (e *InvalidEnumValueError) Unwrap() error { return ErrInvalidEnumValue }

func outOfRange(field string, v any, limit string) error {
	return fmt.Errorf("%w: %s=%v, must be %s", ErrOutOfRange, field, v, limit)
}
