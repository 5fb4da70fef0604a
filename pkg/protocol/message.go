// Package protocol classifies and builds the line-oriented messages
// exchanged with a GRBL/FluidNC-class motion controller.
//
// The controller multiplexes three kinds of traffic on one stream:
// command acknowledgements ("ok" / "error:N"), unsolicited status reports
// ("<State|MPos:...>"), and alarm notifications ("ALARM:N"). One full line
// is always one full message; this package turns a raw line into a typed
// Message and never propagates a parse failure - an unparseable line is
// classified Unrecognized so the stream keeps flowing.
package protocol

import (
	"fmt"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
)

// Kind identifies the message class of one received line.
type Kind int

const (
	// KindUnrecognized marks a line that matched no known message shape.
	KindUnrecognized Kind = iota

	// KindStatusReport is an auto-report or query response ("<...>").
	KindStatusReport

	// KindCommandOk acknowledges the oldest in-flight line command.
	KindCommandOk

	// KindCommandError rejects the oldest in-flight line command.
	KindCommandError

	// KindAlarm is an asynchronous alarm notification.
	KindAlarm

	// KindFeedback is a non-protocol informational line ("[MSG:...]",
	// startup banner). Never matched against command submissions.
	KindFeedback
)

func (k Kind) String() string {
	switch k {
	case KindStatusReport:
		return "status"
	case KindCommandOk:
		return "ok"
	case KindCommandError:
		return "error"
	case KindAlarm:
		return "alarm"
	case KindFeedback:
		return "feedback"
	default:
		return "unrecognized"
	}
}

// MachineState is the controller state reported in status lines. State
// transitions are driven only by parsed status reports and alarms, never
// inferred from command acknowledgements.
type MachineState int

const (
	// StateDisconnected means no link or no status received yet.
	StateDisconnected MachineState = iota

	// StateIdle means the machine is stationary and accepting commands.
	StateIdle

	// StateRunning means a motion command is executing. Feed-hold, door
	// and check states also map here: the machine is not idle and any
	// outstanding move must keep waiting.
	StateRunning

	// StateJogging means a jog command is executing.
	StateJogging

	// StateHoming means the homing cycle is active.
	StateHoming

	// StateAlarm means the controller is locked out until unlocked.
	StateAlarm

	// StateError means the controller reported an unrecoverable fault.
	StateError
)

func (s MachineState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateJogging:
		return "Jogging"
	case StateHoming:
		return "Homing"
	case StateAlarm:
		return "Alarm"
	case StateError:
		return "Error"
	default:
		return "Disconnected"
	}
}

// StatusReport is one parsed "<...>" line.
type StatusReport struct {
	// State is the mapped machine state.
	State MachineState

	// RawState is the state word exactly as reported (e.g. "Hold:0").
	RawState string

	// Work is the work-coordinate position. When the report carries
	// machine coordinates plus a work offset, Work is derived from them.
	Work axes.Position

	// Machine is the machine-coordinate position, when reported.
	Machine axes.Position

	// HasMachine records whether the report used the combined
	// machine+offset layout (MPos/WCO) rather than work-only (WPos).
	HasMachine bool

	// WCO is the work coordinate offset, when reported.
	WCO axes.Position

	// HasWCO records whether a WCO field was present.
	HasWCO bool

	// AxisCount is the number of coordinates in the position field (3 or 4).
	AxisCount int

	// FeedRate and SpindleSpeed from an FS/F field, when present.
	FeedRate     float64
	SpindleSpeed float64

	// Pins is the raw Pn field, when present.
	Pins string
}

// Message is one classified line from the controller.
type Message struct {
	Kind Kind

	// Raw is the line as received, without the terminator.
	Raw string

	// Status is set for KindStatusReport.
	Status *StatusReport

	// Code is the numeric firmware code for KindCommandError and
	// KindAlarm (0 when the firmware omitted one).
	Code int

	// Text is the payload for KindFeedback.
	Text string
}

func (m Message) String() string {
	switch m.Kind {
	case KindStatusReport:
		return fmt.Sprintf("status %s %s", m.Status.State, m.Status.Work)
	case KindCommandError:
		return fmt.Sprintf("error:%d", m.Code)
	case KindAlarm:
		return fmt.Sprintf("alarm:%d", m.Code)
	default:
		return fmt.Sprintf("%s %q", m.Kind, m.Raw)
	}
}

// IsAck reports whether the message acknowledges a line command.
func (m Message) IsAck() bool {
	return m.Kind == KindCommandOk || m.Kind == KindCommandError
}
