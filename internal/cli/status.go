package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// announce prints where tracing is going. Labels are colored only when stdout
// is an interactive terminal.
func announce(globals *Globals, target, logPath string) {
	label := func(a ...any) string { return fmt.Sprint(a...) }
	if f, ok := globals.stdout().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		label = color.New(color.FgCyan, color.Bold).Sprint
	}
	fmt.Fprintf(globals.stdout(), "%s %s\n", label("Tracing:"), target)
	if logPath != "" {
		fmt.Fprintf(globals.stdout(), "%s %s\n", label("Trace log:"), logPath)
	}
}
