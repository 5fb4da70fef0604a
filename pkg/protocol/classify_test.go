package protocol

import (
	"testing"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
)

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind Kind
		code int
	}{
		{"plain ok", "ok", KindCommandOk, 0},
		{"ok with crlf", "ok\r\n", KindCommandOk, 0},
		{"uppercase ok", "OK", KindCommandOk, 0},
		{"error with code", "error:9", KindCommandError, 9},
		{"error with space", "error: 20", KindCommandError, 20},
		{"error with trailing text", "error:20 Unsupported command", KindCommandError, 20},
		{"error without code", "error", KindCommandError, 0},
		{"alarm", "ALARM:1", KindAlarm, 1},
		{"alarm lowercase", "alarm:6", KindAlarm, 6},
		{"status", "<Idle|MPos:0.000,0.000,0.000>", KindStatusReport, 0},
		{"feedback msg", "[MSG:Caution: Unlocked]", KindFeedback, 0},
		{"gcode state", "[GC:G0 G54 G17 G21 G90 G94]", KindFeedback, 0},
		{"banner", "Grbl 1.1h ['$' for help]", KindFeedback, 0},
		{"fluidnc banner", "FluidNC v3.7.8", KindFeedback, 0},
		{"empty line", "", KindUnrecognized, 0},
		{"garbage", "\x00\xffnoise", KindUnrecognized, 0},
		{"unterminated status", "<Idle|MPos:0,0,0", KindUnrecognized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Classify(tt.line)
			if msg.Kind != tt.kind {
				t.Errorf("Classify(%q).Kind = %v, want %v", tt.line, msg.Kind, tt.kind)
			}
			if msg.Code != tt.code {
				t.Errorf("Classify(%q).Code = %d, want %d", tt.line, msg.Code, tt.code)
			}
		})
	}
}

func TestClassifyStatusMachineLayout(t *testing.T) {
	// Combined machine+offset layout: work position derives from MPos-WCO.
	msg := Classify("<Run|MPos:10.000,20.000,90.000,120.000|WCO:1.000,2.000,0.000,0.000|FS:1500,0>")
	if msg.Kind != KindStatusReport {
		t.Fatalf("Kind = %v, want status", msg.Kind)
	}
	st := msg.Status
	if st.State != StateRunning {
		t.Errorf("State = %v, want Running", st.State)
	}
	if !st.HasMachine || !st.HasWCO {
		t.Errorf("HasMachine=%v HasWCO=%v, want both true", st.HasMachine, st.HasWCO)
	}
	want := axes.Position{X: 9, Y: 18, Z: 90, C: 120}
	if !st.Work.ApproxEqual(want, 1e-9) {
		t.Errorf("Work = %v, want %v", st.Work, want)
	}
	if st.AxisCount != 4 {
		t.Errorf("AxisCount = %d, want 4", st.AxisCount)
	}
	if st.FeedRate != 1500 {
		t.Errorf("FeedRate = %v, want 1500", st.FeedRate)
	}
}

func TestClassifyStatusWorkOnlyLayout(t *testing.T) {
	msg := Classify("<Idle|WPos:1.500,2.500,45.000>")
	if msg.Kind != KindStatusReport {
		t.Fatalf("Kind = %v, want status", msg.Kind)
	}
	st := msg.Status
	if st.HasMachine {
		t.Error("HasMachine = true for WPos-only report")
	}
	want := axes.Position{X: 1.5, Y: 2.5, Z: 45}
	if !st.Work.ApproxEqual(want, 1e-9) {
		t.Errorf("Work = %v, want %v", st.Work, want)
	}
	if st.AxisCount != 3 {
		t.Errorf("AxisCount = %d, want 3", st.AxisCount)
	}
}

func TestClassifyStatusTolerance(t *testing.T) {
	// Case variation in tags and whitespace around separators must parse.
	msg := Classify("< Idle | mpos : 1.0 , 2.0 , 3.0 , 4.0 | wco: 0, 0, 0, 0 >")
	if msg.Kind != KindStatusReport {
		t.Fatalf("Kind = %v, want status (raw %q)", msg.Kind, msg.Raw)
	}
	want := axes.Position{X: 1, Y: 2, Z: 3, C: 4}
	if !msg.Status.Work.ApproxEqual(want, 1e-9) {
		t.Errorf("Work = %v, want %v", msg.Status.Work, want)
	}
}

func TestClassifyStatusStateMapping(t *testing.T) {
	tests := []struct {
		word string
		want MachineState
	}{
		{"Idle", StateIdle},
		{"Run", StateRunning},
		{"Jog", StateJogging},
		{"Home", StateHoming},
		{"Homing", StateHoming},
		{"Alarm", StateAlarm},
		{"Hold:0", StateRunning},
		{"Door:1", StateRunning},
		{"Sleep", StateRunning},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			msg := Classify("<" + tt.word + "|MPos:0,0,0>")
			if msg.Kind != KindStatusReport {
				t.Fatalf("Kind = %v, want status", msg.Kind)
			}
			if msg.Status.State != tt.want {
				t.Errorf("state %q mapped to %v, want %v", tt.word, msg.Status.State, tt.want)
			}
		})
	}
}

func TestClassifyStatusBadCoordinates(t *testing.T) {
	// A corrupt coordinate field must degrade to Unrecognized, not panic
	// and not produce a bogus position.
	msg := Classify("<Idle|MPos:1.0,garbage,3.0>")
	if msg.Kind != KindUnrecognized {
		t.Errorf("Kind = %v, want unrecognized", msg.Kind)
	}
}

func TestClassifyStateOnlyReport(t *testing.T) {
	msg := Classify("<Alarm>")
	if msg.Kind != KindStatusReport {
		t.Fatalf("Kind = %v, want status", msg.Kind)
	}
	if msg.Status.State != StateAlarm {
		t.Errorf("State = %v, want Alarm", msg.Status.State)
	}
	if msg.Status.AxisCount != 0 {
		t.Errorf("AxisCount = %d, want 0", msg.Status.AxisCount)
	}
}

func TestMeanings(t *testing.T) {
	if ErrorMeaning(9) == "" || ErrorMeaning(9999) == "" {
		t.Error("ErrorMeaning must always return text")
	}
	if AlarmMeaning(1) == "" || AlarmMeaning(77) == "" {
		t.Error("AlarmMeaning must always return text")
	}
	if !IsHomingAlarm(6) || !IsHomingAlarm(9) || IsHomingAlarm(1) {
		t.Error("IsHomingAlarm boundaries wrong")
	}
}
