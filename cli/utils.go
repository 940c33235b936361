package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/team3128/motorhal/tester"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintf(w, format+"\n", a...)
}

// infof prints a message prefixed with a bold cyan "Info: ".
func infof(w io.Writer, format string, a ...interface{}) {
	color.New(color.Bold, color.FgCyan).Fprint(w, "Info: ")
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	color.New(color.Bold, color.FgYellow).Fprint(w, "Warning: ")
	fmt.Fprintf(w, format+"\n", a...)
}

var stateColors = map[tester.State]*color.Color{
	tester.Failed:  color.New(color.Bold, color.FgRed),
	tester.Running: color.New(color.FgYellow),
	tester.Passed:  color.New(color.Bold, color.FgGreen),
}

// colorState renders a test state in its dashboard color.
func colorState(state tester.State) string {
	c, ok := stateColors[state]
	if !ok {
		return state.String()
	}
	return c.Sprint(state.String())
}
