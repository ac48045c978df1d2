package servo

import "fmt"

// WorkMode selects open loop, closed loop or FOC control, for pulse (CR) or
// serial/CAN (SR) command interfaces.
type WorkMode uint8

const (
	WorkModeCrOpen WorkMode = iota
	WorkModeCrClose
	WorkModeCrVFOC
	WorkModeSrOpen
	WorkModeSrClose
	WorkModeSrVFOC
)

var workModeNames = []string{"CR_OPEN", "CR_CLOSE", "CR_vFOC", "SR_OPEN", "SR_CLOSE", "SR_vFOC"}

func (m WorkMode) Valid() bool    { return int(m) < len(workModeNames) }
func (m WorkMode) String() string { return enumString("WorkMode", m, workModeNames) }

// EnPinActiveMode selects the active level of the EN input.
type EnPinActiveMode uint8

const (
	EnPinActiveLow EnPinActiveMode = iota
	EnPinActiveHigh
	EnPinActiveAlways
)

var enPinActiveModeNames = []string{"Low", "High", "Always"}

func (m EnPinActiveMode) Valid() bool { return int(m) < len(enPinActiveModeNames) }

func (m EnPinActiveMode) String() string {
	return enumString("EnPinActiveMode", m, enPinActiveModeNames)
}

// CanBitRate is the CAN bus bitrate of a controller.
type CanBitRate uint8

const (
	CanBitRate125K CanBitRate = iota
	CanBitRate250K
	CanBitRate500K
	CanBitRate1M
)

var canBitRateNames = []string{"125K", "250K", "500K", "1M"}

func (r CanBitRate) Valid() bool    { return int(r) < len(canBitRateNames) }
func (r CanBitRate) String() string { return enumString("CanBitRate", r, canBitRateNames) }

// ZeroMode selects how the controller returns to zero on power-on.
type ZeroMode uint8

const (
	ZeroModeDisable ZeroMode = iota
	ZeroModeDir
	ZeroModeNear
)

var zeroModeNames = []string{"Disable", "DirMode", "NearMode"}

func (m ZeroMode) Valid() bool    { return int(m) < len(zeroModeNames) }
func (m ZeroMode) String() string { return enumString("ZeroMode", m, zeroModeNames) }

// ZeroModeSpeed is the return-to-zero speed step, 0 (slowest) to 3 (fastest).
type ZeroModeSpeed uint8

const (
	ZeroModeSpeed0 ZeroModeSpeed = iota
	ZeroModeSpeed1
	ZeroModeSpeed2
	ZeroModeSpeed3
)

func (s ZeroModeSpeed) Valid() bool    { return s <= ZeroModeSpeed3 }
func (s ZeroModeSpeed) String() string { return fmt.Sprintf("Speed%d", uint8(s)) }

// HomeTrig is the active level of the home switch.
type HomeTrig uint8

const (
	HomeTrigLow HomeTrig = iota
	HomeTrigHigh
)

var homeTrigNames = []string{"Low", "High"}

func (t HomeTrig) Valid() bool    { return int(t) < len(homeTrigNames) }
func (t HomeTrig) String() string { return enumString("HomeTrig", t, homeTrigNames) }

// Direction of rotation.
type Direction uint8

const (
	DirectionCW Direction = iota
	DirectionCCW
)

var directionNames = []string{"CW", "CCW"}

func (d Direction) Valid() bool    { return int(d) < len(directionNames) }
func (d Direction) String() string { return enumString("Direction", d, directionNames) }

// SaveState either stores or clears the speed-mode parameters.
type SaveState uint8

const (
	SaveStateSave  SaveState = 0xc8
	SaveStateClean SaveState = 0xca
)

func (s SaveState) Valid() bool { return s == SaveStateSave || s == SaveStateClean }

func (s SaveState) String() string {
	switch s {
	case SaveStateSave:
		return "Save"
	case SaveStateClean:
		return "Clean"
	default:
		return fmt.Sprintf("SaveState(%d)", uint8(s))
	}
}

// ProgressStatus reports the progress of a long running command such as calibration.
type ProgressStatus uint8

const (
	ProgressBusy ProgressStatus = iota
	ProgressSuccess
	ProgressFail
)

var progressStatusNames = []string{"Busy", "Success", "Fail"}

func (s ProgressStatus) Valid() bool    { return int(s) < len(progressStatusNames) }
func (s ProgressStatus) String() string { return enumString("ProgressStatus", s, progressStatusNames) }

// MotionStatus reports the state of a motion command.
type MotionStatus uint8

const (
	MotionFail MotionStatus = iota
	MotionBusy
	MotionSuccess
	// MotionLimitReached means the move stopped at an end stop.
	MotionLimitReached
)

var motionStatusNames = []string{"Fail", "Busy", "Success", "LimitReached"}

func (s MotionStatus) Valid() bool    { return int(s) < len(motionStatusNames) }
func (s MotionStatus) String() string { return enumString("MotionStatus", s, motionStatusNames) }

// MotorStatus is the stepper state reported by QueryStatus. Values follow
// the MKS SERVO42D/57D CAN manual, command 0xF1: 1 stopped, 2 speeding up,
// 3 speeding down, 4 full speed, 5 homing. Zero is not a status; the device
// uses it to signal that the query failed.
type MotorStatus uint8

const (
	MotorStopped MotorStatus = iota + 1
	MotorSpeedingUp
	MotorSpeedingDown
	MotorFullSpeed
	MotorHoming
)

var motorStatusNames = []string{"", "Stopped", "SpeedingUp", "SpeedingDown", "FullSpeed", "Homing"}

func (s MotorStatus) Valid() bool    { return s >= MotorStopped && s <= MotorHoming }
func (s MotorStatus) String() string { return enumString("MotorStatus", s, motorStatusNames) }

func enumString[T ~uint8](kind string, v T, names []string) string {
	if int(v) < len(names) && names[v] != "" {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, uint8(v))
}
