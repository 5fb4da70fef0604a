package protocol

import (
	"strconv"
	"strings"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
)

// Classify turns one raw line into a typed Message. It never returns an
// error: lines that match no known shape come back as KindUnrecognized and
// the caller decides whether to log them.
func Classify(line string) Message {
	raw := strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(raw)

	switch {
	case trimmed == "":
		return Message{Kind: KindUnrecognized, Raw: raw}

	case strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">"):
		status, ok := parseStatus(trimmed)
		if !ok {
			return Message{Kind: KindUnrecognized, Raw: raw}
		}
		return Message{Kind: KindStatusReport, Raw: raw, Status: status}

	case strings.EqualFold(trimmed, "ok"):
		return Message{Kind: KindCommandOk, Raw: raw}

	case hasFoldPrefix(trimmed, "error"):
		return Message{Kind: KindCommandError, Raw: raw, Code: trailingCode(trimmed, "error")}

	case hasFoldPrefix(trimmed, "alarm"):
		return Message{Kind: KindAlarm, Raw: raw, Code: trailingCode(trimmed, "alarm")}

	case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
		return Message{Kind: KindFeedback, Raw: raw, Text: strings.Trim(trimmed, "[]")}

	case hasFoldPrefix(trimmed, "grbl") || hasFoldPrefix(trimmed, "fluidnc"):
		// Startup banner after reset.
		return Message{Kind: KindFeedback, Raw: raw, Text: trimmed}
	}

	return Message{Kind: KindUnrecognized, Raw: raw}
}

// hasFoldPrefix is a case-insensitive strings.HasPrefix.
func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// trailingCode extracts the numeric code from "error:9" / "ALARM: 2" style
// lines. Returns 0 when no usable code follows the tag.
func trailingCode(s, tag string) int {
	rest := strings.TrimSpace(s[len(tag):])
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	// Some firmwares append text after the code ("error:20 Unsupported...").
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		rest = rest[:i]
	}
	code, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return code
}

// parseStatus parses the inside of a "<...>" report. Field tags are matched
// case-insensitively and whitespace around separators is tolerated. Both
// positional layouts parse: MPos (+ optional WCO) and WPos-only.
func parseStatus(line string) (*StatusReport, bool) {
	body := strings.Trim(line, "<>")
	parts := strings.Split(body, "|")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return nil, false
	}

	st := &StatusReport{RawState: strings.TrimSpace(parts[0])}
	st.State = mapStateWord(st.RawState)

	var havePos bool
	for _, part := range parts[1:] {
		key, val, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "mpos":
			pos, n, ok := parseCoords(val)
			if !ok {
				return nil, false
			}
			st.Machine = pos
			st.HasMachine = true
			st.AxisCount = n
			havePos = true
		case "wpos":
			pos, n, ok := parseCoords(val)
			if !ok {
				return nil, false
			}
			st.Work = pos
			st.AxisCount = n
			havePos = true
		case "wco":
			pos, _, ok := parseCoords(val)
			if !ok {
				continue
			}
			st.WCO = pos
			st.HasWCO = true
		case "fs":
			pos, _, ok := parseCoords(val)
			if ok {
				st.FeedRate = pos.X
				st.SpindleSpeed = pos.Y
			}
		case "f":
			pos, _, ok := parseCoords(val)
			if ok {
				st.FeedRate = pos.X
			}
		case "pn":
			st.Pins = val
		}
	}

	if !havePos {
		// A bare "<Idle>" still carries a usable state transition.
		st.AxisCount = 0
	}

	if st.HasMachine {
		st.Work = st.Machine.Sub(st.WCO)
	}
	return st, true
}

// parseCoords parses "1.000, 2.0,3" into a Position and reports how many
// coordinates were present. Missing trailing axes stay zero.
func parseCoords(s string) (axes.Position, int, bool) {
	fields := strings.Split(s, ",")
	if len(fields) == 0 || len(fields) > 4 {
		return axes.Position{}, 0, false
	}
	var pos axes.Position
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return axes.Position{}, 0, false
		}
		pos = pos.Set(axes.AllAxes[i], v)
	}
	return pos, len(fields), true
}

// mapStateWord maps a firmware state word onto MachineState. Sub-state
// suffixes ("Hold:0", "Door:1") are ignored. States where the machine is
// neither idle nor faulted map to Running so outstanding moves keep
// waiting instead of completing prematurely.
func mapStateWord(word string) MachineState {
	if i := strings.IndexByte(word, ':'); i >= 0 {
		word = word[:i]
	}
	switch strings.ToLower(word) {
	case "idle":
		return StateIdle
	case "run":
		return StateRunning
	case "jog":
		return StateJogging
	case "home", "homing":
		return StateHoming
	case "alarm":
		return StateAlarm
	case "error":
		return StateError
	case "hold", "door", "check", "sleep", "cycle":
		return StateRunning
	default:
		return StateRunning
	}
}
