package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestIsWalksWrappedChain(t *testing.T) {
	inner := TimeoutError("$H", "10s")
	wrapped := Wrap(inner, ErrHomingTimeout, "homing gave up")
	stdWrapped := fmt.Errorf("serve: %w", wrapped)

	if !Is(stdWrapped, ErrHomingTimeout) {
		t.Error("outer code not matched")
	}
	if !Is(stdWrapped, ErrTimeout) {
		t.Error("inner code not matched through the chain")
	}
	if Is(stdWrapped, ErrAlarm) {
		t.Error("unrelated code matched")
	}
	if Is(nil, ErrTimeout) {
		t.Error("nil matched")
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := stderrors.New("read /dev/ttyUSB0: input/output error")
	err := ConnectionError("/dev/ttyUSB0", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is could not reach the cause")
	}
}

func TestErrorStringIncludesFirmwareCode(t *testing.T) {
	err := ControllerRejectedError("G90 G1 X10", 9, "G-code locked out during alarm")
	want := "[CONTROLLER_REJECTED:9] controller rejected \"G90 G1 X10\": G-code locked out during alarm"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(AlarmError(2, "soft limit")); got != ErrAlarm {
		t.Errorf("CodeOf alarm = %v", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != ErrRuntime {
		t.Errorf("CodeOf foreign = %v, want RUNTIME", got)
	}
	if got := CodeOf(fmt.Errorf("wrap: %w", LimitViolationError("C", 200, 0, 180))); got != ErrLimitViolation {
		t.Errorf("CodeOf wrapped = %v", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(TimeoutError("?", "3s")) {
		t.Error("timeout should be retryable")
	}
	for _, err := range []error{
		AlarmError(1, "hard limit"),
		EmergencyStopError(),
		ControllerRejectedError("$H", 9, "locked out"),
		HomingFailedError("XY", "verification mismatch"),
	} {
		if IsRetryable(err) {
			t.Errorf("%v should not be retryable", err)
		}
	}
}

func TestLimitViolationCarriesAxis(t *testing.T) {
	err := LimitViolationError("C", 200, 0, 180)
	if err.Axis != "C" {
		t.Errorf("axis = %q", err.Axis)
	}
	if !Is(err, ErrLimitViolation) {
		t.Error("code mismatch")
	}
}
