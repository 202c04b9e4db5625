package cli

import (
	"fmt"
)

// exitError carries a process exit status chosen by a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCode implements ExitCoder.
func (e *exitError) ExitCode() int { return e.code }

// ExitCoder lets command errors pick the process exit status.
type ExitCoder interface {
	error
	ExitCode() int
}

// failf reports a user-facing error on stderr and returns an error carrying
// the exit status.
func failf(globals *Globals, code int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(globals.stderr(), "Error: %s\n", msg)
	return &exitError{code: code, msg: msg}
}
