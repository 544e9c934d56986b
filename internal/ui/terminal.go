package ui

import (
	"io"
	"os"
)

// resetSequence shows the cursor, clears attributes, leaves the alternate
// screen and turns off every mouse reporting mode.
const resetSequence = "\033[?25h" +
	"\033[0m" +
	"\033[?1049l" +
	"\033[?1000l" +
	"\033[?1002l" +
	"\033[?1003l" +
	"\033[?1006l"

// ResetTerminal restores the terminal after an abnormal exit of the program.
func ResetTerminal() {
	resetTo(os.Stdout)
	_ = os.Stdout.Sync()
}

func resetTo(w io.Writer) {
	_, _ = io.WriteString(w, resetSequence)
}
