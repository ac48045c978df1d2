package servo

import "fmt"

// Opcode is the first byte of every request and response frame.
type Opcode uint8

// Read commands.
const (
	OpReadEncoderCarry       Opcode = 0x30
	OpReadEncoderAddition    Opcode = 0x31
	OpReadSpeed              Opcode = 0x32
	OpReadPulses             Opcode = 0x33
	OpReadIOPorts            Opcode = 0x34
	OpReadPositionError      Opcode = 0x39
	OpReadEnPin              Opcode = 0x3a
	OpReadGoBackToZeroStatus Opcode = 0x3b
	OpReleaseMotorShaft      Opcode = 0x3d
	OpReadLockedRotor        Opcode = 0x3e
	OpRestoreDefaults        Opcode = 0x3f
	OpCalibrate              Opcode = 0x80
)

// Configuration commands.
const (
	OpSetWorkMode                 Opcode = 0x82
	OpSetCurrent                  Opcode = 0x83
	OpSetSubdivision              Opcode = 0x84
	OpSetEnPinActiveMode          Opcode = 0x85
	OpSetDir                      Opcode = 0x86
	OpSetAutoSSD                  Opcode = 0x87
	OpSetLockedRotorProtection    Opcode = 0x88
	OpSetSubdivisionInterpolation Opcode = 0x89
	OpSetCanBitRate               Opcode = 0x8a
	OpSetCanID                    Opcode = 0x8b
	OpSetCanResponses             Opcode = 0x8c
	OpSetGroupID                  Opcode = 0x8d
	OpSetKeyLock                  Opcode = 0x8f
	OpSetHome                     Opcode = 0x90
	OpGoHome                      Opcode = 0x91
	OpSetAxisZero                 Opcode = 0x92
	OpSetZeroOnPowerOn            Opcode = 0x9a
)

// Motor control commands.
const (
	OpQueryStatus       Opcode = 0xf1
	OpEnable            Opcode = 0xf3
	OpRunRelativeMotion Opcode = 0xf4
	OpRunAbsoluteMotion Opcode = 0xf5
	OpRunSpeedMode      Opcode = 0xf6
	OpRunRelativePulses Opcode = 0xfd
	OpSaveRunModeParams Opcode = 0xff
)

var opcodeNames = map[Opcode]string{
	OpReadEncoderCarry:            "ReadEncoderCarry",
	OpReadEncoderAddition:         "ReadEncoderAddition",
	OpReadSpeed:                   "ReadSpeed",
	OpReadPulses:                  "ReadPulses",
	OpReadIOPorts:                 "ReadIOPorts",
	OpReadPositionError:           "ReadPositionError",
	OpReadEnPin:                   "ReadEnPin",
	OpReadGoBackToZeroStatus:      "ReadGoBackToZeroStatus",
	OpReleaseMotorShaft:           "ReleaseMotorShaft",
	OpReadLockedRotor:             "ReadLockedRotor",
	OpRestoreDefaults:             "RestoreDefaults",
	OpCalibrate:                   "Calibrate",
	OpSetWorkMode:                 "SetWorkMode",
	OpSetCurrent:                  "SetCurrent",
	OpSetSubdivision:              "SetSubdivision",
	OpSetEnPinActiveMode:          "SetEnPinActiveMode",
	OpSetDir:                      "SetDir",
	OpSetAutoSSD:                  "SetAutoSSD",
	OpSetLockedRotorProtection:    "SetLockedRotorProtection",
	OpSetSubdivisionInterpolation: "SetSubdivisionInterpolation",
	OpSetCanBitRate:               "SetCanBitRate",
	OpSetCanID:                    "SetCanID",
	OpSetCanResponses:             "SetCanResponses",
	OpSetGroupID:                  "SetGroupID",
	OpSetKeyLock:                  "SetKeyLock",
	OpSetHome:                     "SetHome",
	OpGoHome:                      "GoHome",
	OpSetAxisZero:                 "SetAxisZero",
	OpSetZeroOnPowerOn:            "SetZeroOnPowerOn",
	OpQueryStatus:                 "QueryStatus",
	OpEnable:                      "Enable",
	OpRunRelativeMotion:           "RunRelativeMotion",
	OpRunAbsoluteMotion:           "RunAbsoluteMotion",
	OpRunSpeedMode:                "RunSpeedMode",
	OpRunRelativePulses:           "RunRelativePulses",
	OpSaveRunModeParams:           "SaveRunModeParams",
}

// Known reports whether op is part of the command set.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%#02x)", uint8(op))
}
