package axes

import (
	"math"
	"testing"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/errors"
)

func TestPositionApproxEqual(t *testing.T) {
	a := Position{X: 1.0, Y: 2.0, Z: 3.0, C: 4.0}
	b := Position{X: 1.0005, Y: 2.0, Z: 3.0, C: 4.0}

	if a.Equal(b) {
		t.Error("Equal must be exact-field comparison")
	}
	if !a.ApproxEqual(b, 0.001) {
		t.Error("ApproxEqual(0.001) should accept a 0.0005 delta")
	}
	if a.ApproxEqual(b, 0.0001) {
		t.Error("ApproxEqual(0.0001) should reject a 0.0005 delta")
	}
	// tol <= 0 falls back to the default tolerance.
	if !a.ApproxEqual(b, 0) {
		t.Error("ApproxEqual(0) should use DefaultTolerance")
	}
}

func TestPositionArithmetic(t *testing.T) {
	a := Position{X: 1, Y: 2, Z: 3, C: 4}
	d := Position{X: 0.5, Z: -1}
	sum := a.Add(d)
	if sum != (Position{X: 1.5, Y: 2, Z: 2, C: 4}) {
		t.Errorf("Add = %v", sum)
	}
	if got := sum.Sub(d); !got.Equal(a) {
		t.Errorf("Sub did not invert Add: %v", got)
	}
	if got := a.MaxDelta(sum); math.Abs(got-1) > 1e-12 {
		t.Errorf("MaxDelta = %v, want 1", got)
	}
}

func TestAxisSet(t *testing.T) {
	all := NewAxisSet()
	if !all.All() || all.String() != "XYZC" {
		t.Errorf("default set = %q, want all axes", all)
	}
	zc := NewAxisSet(AxisC, AxisZ)
	if zc.All() {
		t.Error("partial set reported All")
	}
	if zc.String() != "ZC" {
		t.Errorf("set order = %q, want command order ZC", zc)
	}
}

func TestTiltMappingRoundTrip(t *testing.T) {
	m := DefaultMapping()

	// Worked example: +30 degrees of tilt encodes to command unit 120.
	if got := m.EncodeTilt(30); got != 120 {
		t.Errorf("EncodeTilt(30) = %v, want 120", got)
	}
	if got := m.DecodeTilt(120); got != 30 {
		t.Errorf("DecodeTilt(120) = %v, want 30", got)
	}

	// Round trip across the full angle domain.
	for a := -90.0; a <= 90.0; a += 0.5 {
		got := m.DecodeTilt(m.EncodeTilt(a))
		if math.Abs(got-a) > 1e-9 {
			t.Fatalf("tilt round trip at %v: got %v", a, got)
		}
	}
}

func TestTiltMappingSaturates(t *testing.T) {
	m := DefaultMapping()
	// Outside the travel range the encoder saturates, it never wraps.
	if got := m.EncodeTilt(135); got != 180 {
		t.Errorf("EncodeTilt(135) = %v, want saturated 180", got)
	}
	if got := m.EncodeTilt(-135); got != 0 {
		t.Errorf("EncodeTilt(-135) = %v, want saturated 0", got)
	}
}

func TestRotationMappingWraps(t *testing.T) {
	m := DefaultMapping()
	tests := []struct {
		deg, want float64
	}{
		{0, 0},
		{90, 90},
		{360, 0},
		{450, 90},
		{-90, 270},
	}
	for _, tt := range tests {
		if got := m.EncodeRotation(tt.deg); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("EncodeRotation(%v) = %v, want %v", tt.deg, got, tt.want)
		}
	}
	// Identity within the wrap range.
	for d := 0.0; d < 360.0; d += 7.5 {
		if got := m.DecodeRotation(m.EncodeRotation(d)); math.Abs(got-d) > 1e-9 {
			t.Fatalf("rotation round trip at %v: got %v", d, got)
		}
	}
}

func testLimits() Limits {
	return Limits{
		X: Range{Min: 0, Max: 200},
		Y: Range{Min: 0, Max: 150},
		Z: Range{Min: 0, Max: 360},
		C: Range{Min: 0, Max: 180},
	}
}

func TestValidateInside(t *testing.T) {
	l := testLimits()
	if err := l.Validate(Position{X: 100, Y: 75, Z: 180, C: 90}); err != nil {
		t.Errorf("Validate(inside) = %v, want nil", err)
	}
	// Boundary values are inclusive.
	if err := l.Validate(Position{X: 200, Y: 150, Z: 360, C: 180}); err != nil {
		t.Errorf("Validate(boundary) = %v, want nil", err)
	}
}

func TestValidateReportsFirstViolatedAxis(t *testing.T) {
	l := testLimits()
	err := l.Validate(Position{X: 300, Y: 999, Z: 0, C: 0})
	if err == nil {
		t.Fatal("Validate accepted out-of-range target")
	}
	if !errors.Is(err, errors.ErrLimitViolation) {
		t.Fatalf("error code = %v, want LIMIT_VIOLATION", errors.CodeOf(err))
	}
	me := err.(*errors.MotionError)
	if me.Axis != "X" {
		t.Errorf("violated axis = %q, want first axis X only", me.Axis)
	}
}

func TestValidateUnconstrainedAxisPasses(t *testing.T) {
	l := Limits{X: Range{Min: 0, Max: 10}}
	if err := l.Validate(Position{X: 5, Y: 9999, Z: -40, C: 1e6}); err != nil {
		t.Errorf("unconstrained axes should not validate: %v", err)
	}
}

func TestClamp(t *testing.T) {
	l := testLimits()
	got := l.Clamp(Position{X: -10, Y: 75, Z: 400, C: 200})
	want := Position{X: 0, Y: 75, Z: 360, C: 180}
	if !got.Equal(want) {
		t.Errorf("Clamp = %v, want %v", got, want)
	}
}
