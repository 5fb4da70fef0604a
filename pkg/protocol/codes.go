package protocol

import "fmt"

// errorMeanings maps GRBL/FluidNC "error:N" codes to readable text. The
// table covers the codes the firmware documents; unknown codes format
// generically rather than failing.
var errorMeanings = map[int]string{
	1:  "expected command letter",
	2:  "bad number format",
	3:  "invalid $ system command",
	4:  "negative value for expected positive",
	5:  "homing cycle not enabled in settings",
	6:  "step pulse must be >= 3 microseconds",
	7:  "EEPROM read failed",
	8:  "$ command unavailable while not idle",
	9:  "G-code locked out during alarm or jog",
	10: "soft limits require homing to be enabled",
	11: "line overflow, command too long",
	12: "step rate exceeds supported maximum",
	13: "safety door detected and door state initiated",
	14: "build info or startup line too long",
	15: "jog target exceeds machine travel",
	16: "invalid jog command",
	17: "laser mode requires PWM output",
	20: "unsupported or invalid G-code command",
	21: "more than one command per modal group in block",
	22: "feed rate has not yet been set or is undefined",
	23: "G-code command requires an integer value",
	24: "two G-code commands using axis words found",
	25: "repeated G-code word in block",
	26: "axis words found in block with no command using them",
	27: "line number value invalid",
	28: "G-code command missing a required value word",
	29: "G59.x work coordinate systems not supported",
	30: "G53 only allowed with G0 and G1 motion modes",
	31: "axis words found in block with no command needing them",
	32: "G2/G3 arcs require at least one in-plane axis word",
	33: "motion command target invalid",
	34: "arc radius value invalid",
	35: "G2/G3 arcs require at least one in-plane offset word",
	36: "unused value words found in block",
	37: "G43.1 offset not assigned to configured tool axis",
	38: "tool number greater than max supported value",
}

// alarmMeanings maps "ALARM:N" codes to readable text.
var alarmMeanings = map[int]string{
	1:  "hard limit triggered, machine position lost",
	2:  "soft limit alarm, motion target exceeds travel",
	3:  "reset while in motion, position lost",
	4:  "probe fail, probe not in expected initial state",
	5:  "probe fail, probe did not contact within travel",
	6:  "homing fail, reset during active homing cycle",
	7:  "homing fail, safety door opened during homing",
	8:  "homing fail, cycle failed to clear limit switch",
	9:  "homing fail, could not find limit switch within travel",
	10: "homing fail, second dual-axis limit switch failed",
}

// ErrorMeaning returns readable text for an "error:N" code.
func ErrorMeaning(code int) string {
	if s, ok := errorMeanings[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown error code %d", code)
}

// AlarmMeaning returns readable text for an "ALARM:N" code.
func AlarmMeaning(code int) string {
	if s, ok := alarmMeanings[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown alarm code %d", code)
}

// IsHomingAlarm reports whether the alarm code belongs to the homing
// failure family.
func IsHomingAlarm(code int) bool {
	return code >= 6 && code <= 10
}
