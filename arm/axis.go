// Package arm drives the six axes of an Arctos robot arm. Each axis is an MKS
// servo controller on a shared CAN bus; a Controller runs one exchange per
// axis concurrently over a bus.Mux and correlates each reply with the axis
// that asked for it.
package arm

import (
	"fmt"
	"strings"

	"github.com/arloliu/go-servobus/can"
)

// Axis identifies one joint of the arm. Its numeric value is the CAN
// identifier of the axis' servo controller.
type Axis uint8

const (
	AxisX Axis = iota + 1
	AxisY
	AxisZ
	AxisA
	AxisB
	AxisC
)

// Range is the travel of an axis in degrees, from Start to End.
type Range struct {
	Start, End float64
}

type axisInfo struct {
	name    string
	speed   uint16
	accel   uint8
	gearing float64
	travel  *Range
}

var axisTable = [...]axisInfo{
	AxisX: {name: "X", speed: 300, accel: 176, gearing: 13.6},
	AxisY: {name: "Y", speed: 300, accel: 176, travel: &Range{Start: -60, End: 30}},
	AxisZ: {name: "Z", speed: 300, accel: 176, travel: &Range{Start: 50, End: 0}},
	AxisA: {name: "A", speed: 500, accel: 216, gearing: 5.1},
	AxisB: {name: "B", speed: 500, accel: 236},
	AxisC: {name: "C", speed: 500, accel: 236},
}

// AllAxes returns every axis in order X, Y, Z, A, B, C.
func AllAxes() []Axis {
	return []Axis{AxisX, AxisY, AxisZ, AxisA, AxisB, AxisC}
}

// ParseAxis parses an axis name, case-insensitive.
func ParseAxis(s string) (Axis, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, a := range AllAxes() {
		if axisTable[a].name == name {
			return a, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownAxis, s)
}

// ParseAxes parses a list of axis names. Duplicates are rejected.
func ParseAxes(names []string) ([]Axis, error) {
	axes := make([]Axis, 0, len(names))
	for _, n := range names {
		a, err := ParseAxis(n)
		if err != nil {
			return nil, err
		}
		axes = append(axes, a)
	}

	if err := validateAxes(axes); err != nil {
		return nil, err
	}

	return axes, nil
}

// Valid reports whether a is one of the six axes.
func (a Axis) Valid() bool {
	return a >= AxisX && a <= AxisC
}

func (a Axis) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Axis(%d)", uint8(a))
	}
	return axisTable[a].name
}

// ID returns the CAN identifier of the axis' controller.
func (a Axis) ID() can.ID {
	return can.StandardID(uint16(a))
}

// DefaultSpeed returns the speed in RPM used when a move does not set one.
func (a Axis) DefaultSpeed() uint16 {
	if !a.Valid() {
		return 0
	}
	return axisTable[a].speed
}

// DefaultAccel returns the raw acceleration used when a move does not set one.
func (a Axis) DefaultAccel() uint8 {
	if !a.Valid() {
		return 0
	}
	return axisTable[a].accel
}

// GearingFactor returns the motor turns per joint turn, if the axis is geared.
func (a Axis) GearingFactor() (float64, bool) {
	if !a.Valid() || axisTable[a].gearing == 0 {
		return 0, false
	}
	return axisTable[a].gearing, true
}

// ActuationRange returns the travel of the axis, if it is limited.
func (a Axis) ActuationRange() (Range, bool) {
	if !a.Valid() || axisTable[a].travel == nil {
		return Range{}, false
	}
	return *axisTable[a].travel, true
}

func validateAxes(axes []Axis) error {
	var seen [len(axisTable)]bool
	for _, a := range axes {
		if !a.Valid() {
			return fmt.Errorf("%w: %s", ErrUnknownAxis, a)
		}
		if seen[a] {
			return fmt.Errorf("%w: %s", ErrDuplicateAxis, a)
		}
		seen[a] = true
	}

	return nil
}
