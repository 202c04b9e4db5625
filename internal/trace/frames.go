package trace

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/samber/lo"
)

// Frame is one call-stack location in a step record.
type Frame struct {
	File     string
	Function string
	Line     int
}

func (f Frame) String() string {
	return fmt.Sprintf("%s::%s -- line %d", f.File, f.Function, f.Line)
}

// callStack captures the caller's stack, outermost frame first. Runtime and
// testing scaffolding is dropped; workspace filtering happens later, at the
// session, where the root is known.
func callStack(skip int) []Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	iter := runtime.CallersFrames(pcs[:n])
	var out []Frame
	for {
		fr, more := iter.Next()
		if !scaffoldFrame(fr.Function) {
			out = append(out, Frame{
				File:     fr.File,
				Function: funcDisplayName(fr.Function),
				Line:     fr.Line,
			})
		}
		if !more {
			break
		}
	}
	return lo.Reverse(out)
}

func scaffoldFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") || strings.HasPrefix(fn, "testing.")
}

// funcDisplayName trims the package directory from a fully qualified
// function name: "github.com/x/y/pkg.Fn" becomes "pkg.Fn".
func funcDisplayName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		return fn[i+1:]
	}
	return fn
}

// funcBaseName strips both directory and package qualifier, leaving the bare
// function name the allow-list matches on. Method receivers keep their type:
// "(*T).Fn" becomes "Fn".
func funcBaseName(fn string) string {
	fn = funcDisplayName(fn)
	if i := strings.LastIndex(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}

// callerLocation resolves the file, line and enclosing function name of the
// frame `skip` levels above the caller.
func callerLocation(skip int) (file string, line int, function string) {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "<unknown>", 0, "<unknown>"
	}
	function = "<unknown>"
	if fn := runtime.FuncForPC(pc); fn != nil {
		function = funcBaseName(fn.Name())
	}
	return file, line, function
}

func renderFrames(frames []Frame) string {
	var b strings.Builder
	for _, fr := range frames {
		b.WriteString(fr.String())
		b.WriteByte('\n')
	}
	return b.String()
}
