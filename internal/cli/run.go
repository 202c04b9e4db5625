package cli

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/steptrace/steptrace/internal/trace"
)

// RunCmd executes a target program with a trace session installed around the
// invocation. Configuration is discovered relative to the target so running
// from another directory picks up the project's own settings.
type RunCmd struct {
	Target string   `arg:"" help:"Program to execute"`
	Args   []string `arg:"" optional:"" passthrough:"" help:"Arguments passed through to the program"`
}

func (c *RunCmd) Run(globals *Globals) error {
	target, err := filepath.Abs(c.Target)
	if err != nil {
		return failf(globals, 1, "cannot resolve target %q: %v", c.Target, err)
	}
	if _, err := os.Stat(target); err != nil {
		return failf(globals, 1, "target not found: %s", c.Target)
	}
	workspace := filepath.Dir(target)

	cfg, err := globals.loadConfig(workspace)
	if err != nil {
		return failf(globals, 1, "%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TraceAsync {
		sess, err := trace.NewAsyncSession(globals.asyncSessionOptions(cfg, workspace))
		if err != nil {
			return failf(globals, 1, "%v", err)
		}
		defer sess.Close()
		if err := sess.Start(); err != nil {
			return failf(globals, 1, "%v", err)
		}
		defer sess.Stop()
		announce(globals, target, sess.LogPath())
		return c.exec(ctx, globals, target)
	}

	sess, err := trace.NewSession(globals.sessionOptions(cfg, workspace))
	if err != nil {
		return failf(globals, 1, "%v", err)
	}
	defer sess.Close()
	if err := sess.Start(); err != nil {
		return failf(globals, 1, "%v", err)
	}
	defer sess.Stop()
	announce(globals, target, sess.LogPath())
	return c.exec(ctx, globals, target)
}

// exec runs the target with inherited streams and maps its exit status onto
// ours, so wrapping a program in the tracer never hides its own result.
func (c *RunCmd) exec(ctx context.Context, globals *Globals, target string) error {
	cmd := exec.CommandContext(ctx, target, c.Args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = globals.stdout()
	cmd.Stderr = globals.stderr()
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &exitError{code: exitErr.ExitCode(), msg: err.Error()}
		}
		return failf(globals, 1, "failed to run %s: %v", c.Target, err)
	}
	return nil
}
