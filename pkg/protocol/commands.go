package protocol

import (
	"fmt"
	"strings"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
)

// Immediate commands are single control bytes processed out-of-band by the
// firmware. They are never acknowledged with "ok" and bypass the line
// command queue entirely.
const (
	// ByteStatusQuery requests one status report ("?").
	ByteStatusQuery byte = '?'

	// ByteFeedHold pauses motion ("!").
	ByteFeedHold byte = '!'

	// ByteCycleResume resumes held motion ("~").
	ByteCycleResume byte = '~'

	// ByteSoftReset aborts everything and resets the firmware (Ctrl-X).
	ByteSoftReset byte = 0x18
)

// AbsoluteMove builds a G90 linear move to the given target in command
// units. Feedrate is mm/min; zero omits the F word and keeps the modal
// feedrate.
func AbsoluteMove(target axes.Position, feedrate float64) string {
	return "G90 G1 " + coordWords(target, feedrate)
}

// RelativeMove builds a G91 linear move by the given delta in command units.
func RelativeMove(delta axes.Position, feedrate float64) string {
	return "G91 G1 " + coordWords(delta, feedrate)
}

// coordWords formats the axis words shared by the move builders.
func coordWords(p axes.Position, feedrate float64) string {
	var b strings.Builder
	for i, a := range axes.AllAxes {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s%.3f", a, p.Get(a))
	}
	if feedrate > 0 {
		fmt.Fprintf(&b, " F%.0f", feedrate)
	}
	return b.String()
}

// HomeCommands builds the homing line commands for the given axis
// selection. A full selection is the single "$H"; a partial selection homes
// each axis with its own "$H<axis>" command, in command order.
func HomeCommands(set axes.AxisSet) []string {
	if set.All() {
		return []string{"$H"}
	}
	var cmds []string
	for _, a := range axes.AllAxes {
		if set.Contains(a) {
			cmds = append(cmds, "$H"+a.String())
		}
	}
	return cmds
}

// Unlock builds the alarm unlock command.
func Unlock() string { return "$X" }

// ClearWorkOffsets builds the command that zeroes the work coordinates of
// the selected axes at the current machine position. Used after homing so
// position reports start from a known origin.
func ClearWorkOffsets(set axes.AxisSet) string {
	var b strings.Builder
	b.WriteString("G10 L20 P1")
	for _, a := range axes.AllAxes {
		if set.Contains(a) {
			fmt.Fprintf(&b, " %s0", a)
		}
	}
	return b.String()
}

// Jog builds a relative jog command ("$J="). Jogs are cancellable and do
// not alter the G90/G91 modal state.
func Jog(delta axes.Position, feedrate float64) string {
	if feedrate <= 0 {
		feedrate = 1000
	}
	return "$J=G91 " + coordWords(delta, feedrate)
}
