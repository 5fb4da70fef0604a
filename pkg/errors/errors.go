// Unified error handling for the scanner motion host.
//
// Every failure surfaced by the protocol client carries a stable code so
// callers can branch on the category (retry a timeout, require an unlock
// after an alarm, fix a config value) without string matching.
package errors

import (
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Connection errors - fatal to the session, never retried silently
	ErrConnection ErrorCode = "CONNECTION"

	// Command errors
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrControllerRejected ErrorCode = "CONTROLLER_REJECTED"

	// Machine-state errors
	ErrAlarm         ErrorCode = "ALARM"
	ErrEmergencyStop ErrorCode = "EMERGENCY_STOP"
	ErrHomingTimeout ErrorCode = "HOMING_TIMEOUT"
	ErrHomingFailed  ErrorCode = "HOMING_FAILED"

	// Pre-flight errors - rejected before any serial write
	ErrLimitViolation ErrorCode = "LIMIT_VIOLATION"

	// Configuration errors
	ErrConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Runtime errors
	ErrRuntime     ErrorCode = "RUNTIME"
	ErrRuntimeInit ErrorCode = "RUNTIME_INIT"
)

// MotionError is the unified error type for the host system
type MotionError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// FirmwareCode is the numeric error/alarm code reported by the
	// controller, when one exists (ControllerRejected, Alarm)
	FirmwareCode int

	// Axis names the axis involved, when one exists (LimitViolation)
	Axis string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *MotionError) Error() string {
	if e.FirmwareCode != 0 {
		return fmt.Sprintf("[%s:%d] %s", e.Code, e.FirmwareCode, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *MotionError) Unwrap() error {
	return e.Err
}

// SetAxis sets the axis context
func (e *MotionError) SetAxis(axis string) *MotionError {
	e.Axis = axis
	return e
}

// SetFirmwareCode sets the controller-reported numeric code
func (e *MotionError) SetFirmwareCode(code int) *MotionError {
	e.FirmwareCode = code
	return e
}

// SetContext adds additional context
func (e *MotionError) SetContext(key string, value interface{}) *MotionError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new MotionError
func New(code ErrorCode, message string) *MotionError {
	return &MotionError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *MotionError {
	return &MotionError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Connection errors

// ConnectionError creates an error for an unavailable or dropped link
func ConnectionError(device string, err error) *MotionError {
	return Wrap(err, ErrConnection, fmt.Sprintf("controller link %s unavailable", device)).
		SetContext("device", device)
}

// Command errors

// TimeoutError creates an error for a command that received no response
// within its deadline
func TimeoutError(command string, waited string) *MotionError {
	return New(ErrTimeout, fmt.Sprintf("no response to %q within %s", command, waited)).
		SetContext("command", command)
}

// ControllerRejectedError creates an error for a firmware error:N response
func ControllerRejectedError(command string, code int, meaning string) *MotionError {
	return New(ErrControllerRejected, fmt.Sprintf("controller rejected %q: %s", command, meaning)).
		SetFirmwareCode(code).
		SetContext("command", command)
}

// Machine-state errors

// AlarmError creates an error for a firmware alarm. Motion stays locked out
// until the caller issues an explicit unlock.
func AlarmError(code int, meaning string) *MotionError {
	return New(ErrAlarm, fmt.Sprintf("controller alarm: %s (unlock required)", meaning)).
		SetFirmwareCode(code)
}

// EmergencyStopError creates an error for a move aborted by emergency stop
func EmergencyStopError() *MotionError {
	return New(ErrEmergencyStop, "aborted by emergency stop")
}

// HomingTimeoutError creates an error for homing that exceeded its ceiling
func HomingTimeoutError(axes string, waited string) *MotionError {
	return New(ErrHomingTimeout, fmt.Sprintf("homing %s did not complete within %s", axes, waited)).
		SetContext("axes", axes)
}

// HomingFailedError creates an error for homing that ended in a non-timeout
// failure (alarm during homing, verification mismatch)
func HomingFailedError(axes string, reason string) *MotionError {
	return New(ErrHomingFailed, fmt.Sprintf("homing %s failed: %s", axes, reason)).
		SetContext("axes", axes)
}

// Pre-flight errors

// LimitViolationError creates an error for a target outside the soft limits
func LimitViolationError(axis string, value, min, max float64) *MotionError {
	return New(ErrLimitViolation, fmt.Sprintf("%s target %.3f outside soft limits [%.3f, %.3f]", axis, value, min, max)).
		SetAxis(axis)
}

// Configuration errors

// ConfigLoadError creates an error for an unreadable or unparseable config file
func ConfigLoadError(path string, err error) *MotionError {
	return Wrap(err, ErrConfigLoad, fmt.Sprintf("cannot load config %s", path)).
		SetContext("path", path)
}

// ConfigValidationError creates an error for an invalid config value
func ConfigValidationError(field, reason string) *MotionError {
	return New(ErrConfigValidation, fmt.Sprintf("config %s: %s", field, reason)).
		SetContext("field", field)
}

// Runtime errors

// RuntimeError creates a general runtime error
func RuntimeError(message string) *MotionError {
	return New(ErrRuntime, message)
}

// RuntimeErrorInit creates an error for initialization failure
func RuntimeErrorInit(component string, reason string) *MotionError {
	return New(ErrRuntimeInit, fmt.Sprintf("failed to initialize %s: %s", component, reason))
}

// RecoverPanic safely recovers from panic and converts to error
func RecoverPanic() *MotionError {
	if r := recover(); r != nil {
		switch x := r.(type) {
		case string:
			return RuntimeError(fmt.Sprintf("panic: %s", x))
		case runtime.Error:
			return RuntimeError(x.Error())
		case error:
			return RuntimeError(x.Error())
		default:
			return RuntimeError(fmt.Sprintf("panic: %v", x))
		}
	}
	return nil
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if me, ok := err.(*MotionError); ok {
			if me.Code == code {
				return true
			}
			err = me.Err
			continue
		}
		if u, ok := err.(interface{ Unwrap() error }); ok {
			err = u.Unwrap()
			continue
		}
		return false
	}
	return false
}

// IsRetryable reports whether the caller may reasonably retry the
// operation. Only plain timeouts qualify; retrying after an alarm,
// rejection, or ambiguous motion failure is unsafe by contract.
func IsRetryable(err error) bool {
	return Is(err, ErrTimeout)
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigLoad) || Is(err, ErrConfigValidation)
}

// CodeOf returns the error code of err, or ErrRuntime for foreign errors.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if me, ok := err.(*MotionError); ok {
			return me.Code
		}
		if u, ok := err.(interface{ Unwrap() error }); ok {
			err = u.Unwrap()
			continue
		}
		break
	}
	return ErrRuntime
}
