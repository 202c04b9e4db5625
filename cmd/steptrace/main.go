package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/steptrace/steptrace/internal/cli"
)

const quickStart = `steptrace - step-level execution tracing with variable diffs

Quick start:
  steptrace demo                        Trace the built-in sync workload
  steptrace demo --async                Trace the coroutine/await workload
  steptrace run ./program arg1 arg2     Run a program with tracing installed
  steptrace config                      Show the effective configuration
  steptrace view .steptrace/trace.log   Browse a written trace log

For help:
  steptrace --help                      All commands and flags
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("steptrace"),
		kong.Description("Step-level execution tracer: per-step records with timing, call stacks and variable change tracking"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)

	globals := cli.NewGlobals(&c)
	if err := ctx.Run(globals); err != nil {
		var coder cli.ExitCoder
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}
