package axes

import "math"

// Mapping converts between user-facing degrees and the command units sent
// to the controller for the two rotational axes. X and Y are plain
// millimetres and need no conversion.
//
// The turntable (Z) uses an identity mapping: 1 command unit equals 1
// degree, wrapping at the configured full-turn value. The tilt axis (C) is
// mm-encoded with a fixed +90 offset so the firmware's travel starts at 0:
// command = angle + 90, angle = command - 90.
type Mapping struct {
	// FullTurn is the Z wrap value in degrees (default 360).
	FullTurn float64

	// TiltOffset is the C encode offset (default 90).
	TiltOffset float64

	// TiltMin and TiltMax bound the tilt angle in degrees. Encoding
	// saturates to this range, it never wraps.
	TiltMin float64
	TiltMax float64
}

// DefaultMapping returns the mapping for the standard rig geometry.
func DefaultMapping() Mapping {
	return Mapping{
		FullTurn:   360.0,
		TiltOffset: 90.0,
		TiltMin:    -90.0,
		TiltMax:    90.0,
	}
}

// EncodeRotation converts turntable degrees to command units, wrapping into
// [0, FullTurn).
func (m Mapping) EncodeRotation(deg float64) float64 {
	full := m.FullTurn
	if full <= 0 {
		full = 360.0
	}
	v := math.Mod(deg, full)
	if v < 0 {
		v += full
	}
	return v
}

// DecodeRotation converts command units back to degrees. The mapping is the
// identity, so this only normalizes into the wrap range.
func (m Mapping) DecodeRotation(cmd float64) float64 {
	return m.EncodeRotation(cmd)
}

// EncodeTilt converts a tilt angle in degrees to command units. Out-of-range
// angles saturate to the travel bounds before the offset is applied.
func (m Mapping) EncodeTilt(angle float64) float64 {
	lo, hi := m.TiltMin, m.TiltMax
	if lo == 0 && hi == 0 {
		lo, hi = -90.0, 90.0
	}
	if angle < lo {
		angle = lo
	}
	if angle > hi {
		angle = hi
	}
	off := m.TiltOffset
	if off == 0 {
		off = 90.0
	}
	return angle + off
}

// DecodeTilt converts tilt command units back to an angle in degrees.
func (m Mapping) DecodeTilt(cmd float64) float64 {
	off := m.TiltOffset
	if off == 0 {
		off = 90.0
	}
	return cmd - off
}
