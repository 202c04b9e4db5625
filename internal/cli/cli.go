// Package cli wires configuration and flags into trace sessions and exposes
// the run/demo/config/view commands.
package cli

import (
	"io"
	"os"
	"time"

	"github.com/steptrace/steptrace/internal/config"
	"github.com/steptrace/steptrace/internal/trace"
)

// CLI is the top-level command grammar.
type CLI struct {
	Globals

	Run    RunCmd    `cmd:"" help:"Run a target program with a trace session installed"`
	Demo   DemoCmd   `cmd:"" help:"Run the built-in instrumented demo workloads"`
	Config ConfigCmd `cmd:"" help:"Show the effective merged configuration"`
	View   ViewCmd   `cmd:"" help:"Browse a written trace log interactively"`
}

// Globals holds flags shared by every command. Enum-like values are
// validated leniently: unrecognized strings fall back to the documented
// defaults rather than failing the parse.
type Globals struct {
	Config             string   `short:"c" help:"Path to a configuration file (YAML or TOML)" type:"path"`
	LogLevel           string   `help:"Log verbosity: DEBUG, INFO, WARNING, ERROR or SILENT"`
	LogOutput          string   `help:"Destination: FILE, STDOUT, STDERR, FILE_STDOUT or FILE_STDERR"`
	VariableMode       string   `help:"Variable reporting: ALL, CHANGED or NONE"`
	LogDir             string   `help:"Directory for trace log files"`
	NoFilterWorkspace  bool     `help:"Trace locations outside the workspace too"`
	TraceableFunctions []string `help:"Only trace the named functions"`
	TraceAsync         bool     `help:"Enable coroutine and await tracking"`
	AwaitThresholdMs   float64  `help:"Suppress await-end records faster than this many milliseconds"`
	NoTraceTasks       bool     `help:"Disable task creation/completion records"`
	Verbose            bool     `short:"v" help:"Verbose diagnostics on stderr"`

	Stdout io.Writer `kong:"-"`
	Stderr io.Writer `kong:"-"`
}

// NewGlobals finalizes parsed globals with the process streams.
func NewGlobals(c *CLI) *Globals {
	g := &c.Globals
	if g.Stdout == nil {
		g.Stdout = os.Stdout
	}
	if g.Stderr == nil {
		g.Stderr = os.Stderr
	}
	return g
}

func (g *Globals) stdout() io.Writer { return g.Stdout }
func (g *Globals) stderr() io.Writer { return g.Stderr }

func (g *Globals) overrides() config.Overrides {
	return config.Overrides{
		LogLevel:          g.LogLevel,
		LogOutput:         g.LogOutput,
		VariableMode:      g.VariableMode,
		LogDir:            g.LogDir,
		NoFilterWorkspace: g.NoFilterWorkspace,
		TraceableFuncs:    g.TraceableFunctions,
		TraceAsync:        g.TraceAsync,
		AwaitThresholdMs:  g.AwaitThresholdMs,
		NoTraceTasks:      g.NoTraceTasks,
	}
}

// loadConfig resolves the config file (explicit flag or nearest-ancestor
// search from startDir) and overlays the CLI flags, flags winning.
func (g *Globals) loadConfig(startDir string) (*config.Config, error) {
	cfg, err := config.Load(g.Config, startDir)
	if err != nil {
		return nil, err
	}
	return config.Merge(cfg, g.overrides()), nil
}

// sessionOptions maps a merged config onto engine options.
func (g *Globals) sessionOptions(cfg *config.Config, workspace string) trace.Options {
	return trace.Options{
		Workspace:       workspace,
		FilterWorkspace: cfg.FilterWorkspace,
		LogDir:          cfg.LogDir,
		TraceableFuncs:  cfg.TraceableFuncs,
		Level:           trace.ParseLevel(cfg.LogLevel),
		Output:          trace.ParseOutput(cfg.LogOutput),
		VarMode:         trace.ParseVarMode(cfg.VariableMode),
		Stdout:          g.stdout(),
		Stderr:          g.stderr(),
		Diag:            newDiagLogger(g.Verbose),
	}
}

// asyncSessionOptions extends sessionOptions with the await/task settings.
func (g *Globals) asyncSessionOptions(cfg *config.Config, workspace string) trace.AsyncOptions {
	return trace.AsyncOptions{
		Options:        g.sessionOptions(cfg, workspace),
		AwaitThreshold: time.Duration(cfg.AwaitThresholdMs * float64(time.Millisecond)),
		TraceTasks:     cfg.TraceTasks,
	}
}
