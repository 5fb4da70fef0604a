package axes

import (
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/errors"
)

// Range is one axis' soft-limit travel range in command units.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the range (inclusive).
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Limits holds the configured soft limits for every axis. The validator is
// pure and stateless: it never touches the wire and never mutates anything.
type Limits struct {
	X Range
	Y Range
	Z Range
	C Range
}

// Range returns the travel range for the given axis.
func (l Limits) Range(a Axis) Range {
	switch a {
	case AxisX:
		return l.X
	case AxisY:
		return l.Y
	case AxisZ:
		return l.Z
	case AxisC:
		return l.C
	}
	return Range{}
}

// Validate checks a target position against the soft limits. Axes are
// checked independently in command order and the first violated axis is
// reported; remaining axes are not aggregated so the error stays
// actionable.
func (l Limits) Validate(target Position) error {
	for _, a := range AllAxes {
		r := l.Range(a)
		if r.Min == 0 && r.Max == 0 {
			// Axis without configured limits is unconstrained.
			continue
		}
		v := target.Get(a)
		if !r.Contains(v) {
			return errors.LimitViolationError(a.String(), v, r.Min, r.Max)
		}
	}
	return nil
}

// Clamp returns target with every axis clamped into its travel range.
// Axes without configured limits pass through unchanged.
func (l Limits) Clamp(target Position) Position {
	for _, a := range AllAxes {
		r := l.Range(a)
		if r.Min == 0 && r.Max == 0 {
			continue
		}
		v := target.Get(a)
		if v < r.Min {
			v = r.Min
		}
		if v > r.Max {
			v = r.Max
		}
		target = target.Set(a, v)
	}
	return target
}
