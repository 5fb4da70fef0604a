// Package axes defines the scanner's coordinate model: the four-axis
// Position value type, the degree/command-unit mapping for the rotational
// and tilt axes, and the soft-limit validator that runs before any command
// reaches the controller.
package axes

import (
	"fmt"
	"math"
)

// DefaultTolerance is the per-axis tolerance used by ApproxEqual when
// callers do not supply their own. Movement completion detection compares
// positions with this value.
const DefaultTolerance = 0.001

// Axis identifies one of the scanner's motion axes.
type Axis int

const (
	// AxisX is the horizontal linear axis (mm).
	AxisX Axis = iota

	// AxisY is the vertical linear axis (mm).
	AxisY

	// AxisZ is the turntable rotation axis (mm-encoded degrees).
	AxisZ

	// AxisC is the camera tilt axis (mm-encoded degrees, offset by +90).
	AxisC
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	case AxisC:
		return "C"
	default:
		return "?"
	}
}

// ParseAxis parses a single-letter axis name (case-insensitive).
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "X", "x":
		return AxisX, nil
	case "Y", "y":
		return AxisY, nil
	case "Z", "z":
		return AxisZ, nil
	case "C", "c":
		return AxisC, nil
	}
	return AxisX, fmt.Errorf("axes: unknown axis %q", s)
}

// AllAxes lists every axis in command order.
var AllAxes = []Axis{AxisX, AxisY, AxisZ, AxisC}

// AxisSet is a selection of axes, used for homing requests.
type AxisSet map[Axis]bool

// NewAxisSet builds a set from the given axes. With no arguments the set
// selects all axes.
func NewAxisSet(list ...Axis) AxisSet {
	s := make(AxisSet)
	if len(list) == 0 {
		for _, a := range AllAxes {
			s[a] = true
		}
		return s
	}
	for _, a := range list {
		s[a] = true
	}
	return s
}

// Contains reports whether the set selects the given axis.
func (s AxisSet) Contains(a Axis) bool { return s[a] }

// All reports whether the set selects every axis.
func (s AxisSet) All() bool {
	for _, a := range AllAxes {
		if !s[a] {
			return false
		}
	}
	return true
}

func (s AxisSet) String() string {
	out := ""
	for _, a := range AllAxes {
		if s[a] {
			out += a.String()
		}
	}
	return out
}

// Position is the scanner position in command units: X/Y in mm, Z and C in
// mm-encoded degrees. Position is a value type; callers always exchange
// copies, never shared references.
type Position struct {
	X float64
	Y float64
	Z float64
	C float64
}

// Get returns the coordinate of the given axis.
func (p Position) Get(a Axis) float64 {
	switch a {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	case AxisZ:
		return p.Z
	case AxisC:
		return p.C
	}
	return 0
}

// Set returns a copy with the given axis coordinate replaced.
func (p Position) Set(a Axis, v float64) Position {
	switch a {
	case AxisX:
		p.X = v
	case AxisY:
		p.Y = v
	case AxisZ:
		p.Z = v
	case AxisC:
		p.C = v
	}
	return p
}

// Add returns the component-wise sum p + d.
func (p Position) Add(d Position) Position {
	return Position{X: p.X + d.X, Y: p.Y + d.Y, Z: p.Z + d.Z, C: p.C + d.C}
}

// Sub returns the component-wise difference p - d.
func (p Position) Sub(d Position) Position {
	return Position{X: p.X - d.X, Y: p.Y - d.Y, Z: p.Z - d.Z, C: p.C - d.C}
}

// Equal reports exact field equality.
func (p Position) Equal(o Position) bool {
	return p.X == o.X && p.Y == o.Y && p.Z == o.Z && p.C == o.C
}

// ApproxEqual reports whether every axis is within tol of the other
// position. A tol of zero or less uses DefaultTolerance.
func (p Position) ApproxEqual(o Position, tol float64) bool {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	return math.Abs(p.X-o.X) <= tol &&
		math.Abs(p.Y-o.Y) <= tol &&
		math.Abs(p.Z-o.Z) <= tol &&
		math.Abs(p.C-o.C) <= tol
}

// MaxDelta returns the largest per-axis absolute difference between p and o.
func (p Position) MaxDelta(o Position) float64 {
	max := math.Abs(p.X - o.X)
	for _, d := range []float64{math.Abs(p.Y - o.Y), math.Abs(p.Z - o.Z), math.Abs(p.C - o.C)} {
		if d > max {
			max = d
		}
	}
	return max
}

// IsZero reports whether every coordinate is exactly zero.
func (p Position) IsZero() bool {
	return p.X == 0 && p.Y == 0 && p.Z == 0 && p.C == 0
}

func (p Position) String() string {
	return fmt.Sprintf("X%.3f Y%.3f Z%.3f C%.3f", p.X, p.Y, p.Z, p.C)
}
