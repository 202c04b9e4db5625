package trace

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultLogDir receives log files when no directory is configured.
const DefaultLogDir = ".steptrace"

// Options configures a Session. Zero values fall back to the documented
// defaults: INFO level, FILE output, ALL variable mode, workspace filtering
// pinned to the current directory.
type Options struct {
	Workspace       string
	FilterWorkspace bool
	LogDir          string
	// TraceableFuncs restricts step records to the named functions. Nil means
	// every function qualifies.
	TraceableFuncs []string
	Level          Level
	Output         Output
	VarMode        VarMode

	// Clock is swappable for tests; nil means the wall clock.
	Clock clock.Clock
	// Stdout/Stderr back the stream sinks; nil means the process streams.
	Stdout io.Writer
	Stderr io.Writer
	// Diag receives instrumentation-internal failures. It never carries trace
	// records. Nil means discard.
	Diag *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Workspace == "" {
		if wd, err := os.Getwd(); err == nil {
			o.Workspace = wd
		}
	}
	if o.LogDir == "" {
		o.LogDir = DefaultLogDir
	}
	if o.Level == 0 {
		o.Level = LevelInfo
	}
	if o.Output == 0 {
		o.Output = OutputFile
	}
	if o.VarMode == 0 {
		o.VarMode = VarAll
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Diag == nil {
		o.Diag = zap.NewNop()
	}
	return o
}

// Session is one tracing run: the synchronous trace controller. It moves
// between INACTIVE and ACTIVE via Start/Stop and, while active, routes
// qualifying line events to the step logger.
type Session struct {
	opts Options
	clk  clock.Clock
	diag *zap.Logger

	mu          sync.Mutex
	active      bool
	hook        Hook
	out         *sink
	step        int
	last        time.Time
	globals     *Scope
	prevGlobals *Snapshot
	prevLocals  *Snapshot
}

// NewSession builds an inactive session. The log file (when the output
// policy includes one) is claimed immediately so concurrent sessions sharing
// a directory settle their filenames up front; at LevelSilent no sink exists
// at all.
func NewSession(opts Options) (*Session, error) {
	opts = opts.withDefaults()
	s := &Session{opts: opts, clk: opts.Clock, diag: opts.Diag}
	if opts.Level < LevelSilent {
		out, err := newSink(opts.Output, opts.LogDir, opts.Stdout, opts.Stderr)
		if err != nil {
			return nil, err
		}
		s.out = out
	}
	return s, nil
}

// Start resets the step counter, timer and snapshot history, then installs
// the session as the active hook, saving whatever was installed before it.
func (s *Session) Start() error {
	return s.start(s)
}

// start exists so AsyncSession can install itself as the hook while reusing
// the lifecycle here.
func (s *Session) start(h Hook) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return errors.New("trace session already active")
	}
	s.step = 0
	s.last = s.clk.Now()
	s.prevGlobals = nil
	s.prevLocals = nil
	s.active = true
	s.hook = h
	s.mu.Unlock()
	hooks.push(h)
	return nil
}

// Stop uninstalls the session and restores the previously installed hook.
// Safe to call from a defer even when the traced body panicked, and safe to
// call twice. The log file stays open so the session can be restarted; Close
// releases it.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	h := s.hook
	s.hook = nil
	s.mu.Unlock()
	hooks.pop(h)
}

// Close releases the session's log file. The session must not be used after.
func (s *Session) Close() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.close()
	s.out = nil
}

// Active reports whether the session currently owns a hook installation.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// LogPath returns the file currently receiving records, if the output policy
// includes one.
func (s *Session) LogPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.logPath()
}

// SetGlobals registers the scope reported as global variables on every step.
// The caller keeps mutating the scope; each step reads its current contents.
func (s *Session) SetGlobals(scope *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals = scope
}

// Traced wraps fn so every invocation runs inside this session, with the
// previous hook restored afterwards no matter how fn exits.
func (s *Session) Traced(fn func()) func() {
	return func() {
		if err := s.Start(); err != nil {
			s.diag.Warn("could not start trace session", zap.Error(err))
			fn()
			return
		}
		defer s.Stop()
		fn()
	}
}

// TracedFunc is the decorator equivalent for result-bearing functions: fn
// runs inside s and its result passes through unchanged.
func TracedFunc[T any](s *Session, fn func() T) func() T {
	return func() T {
		if err := s.Start(); err != nil {
			s.diag.Warn("could not start trace session", zap.Error(err))
			return fn()
		}
		defer s.Stop()
		return fn()
	}
}

// observe handles one raw event. Panics anywhere in the handling path are
// reported to the diagnostic logger and never reach the traced program.
func (s *Session) observe(ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.diag.Error("trace hook failure", zap.Any("panic", r))
		}
	}()
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.kind == eventLine {
		s.logStep(ev)
	}
	s.last = s.clk.Now()
}

// logStep filters, enriches and emits one step record. Caller holds s.mu.
func (s *Session) logStep(ev event) {
	if s.opts.Level >= LevelSilent {
		return
	}
	frames := s.admittedFrames(ev.frames)
	if len(frames) == 0 {
		return
	}
	current := frames[len(frames)-1]
	if !s.traceableFunc(current.Function) {
		return
	}
	s.step++
	rec := stepRecord{
		step:    s.step,
		elapsed: s.clk.Since(s.last),
		frames:  frames,
	}
	filter := varFilter{workspace: s.opts.Workspace, enabled: s.opts.FilterWorkspace}
	if s.opts.Level <= LevelWarning && s.opts.VarMode != VarNone {
		rec.globals = snapshotScope(s.globals, filter)
		rec.locals = snapshotScope(ev.locals, filter)
		rec.prevGlobals = s.prevGlobals
		rec.prevLocals = s.prevLocals
	}
	text := renderStep(s.opts.Level, s.opts.VarMode, rec)
	if s.opts.Level <= LevelWarning && s.opts.VarMode == VarChanged {
		s.prevGlobals = rec.globals
		s.prevLocals = rec.locals
	}
	if err := s.out.write(text); err != nil {
		s.diag.Error("trace sink write failed", zap.Error(err))
	}
}

// admittedFrames narrows a captured stack to the workspace when filtering is
// enabled. The innermost frame decides whether the event is loggable at all.
func (s *Session) admittedFrames(frames []Frame) []Frame {
	if len(frames) == 0 {
		return nil
	}
	if !s.opts.FilterWorkspace {
		return frames
	}
	current := frames[len(frames)-1]
	if !underRoot(current.File, s.opts.Workspace) {
		return nil
	}
	return lo.Filter(frames, func(f Frame, _ int) bool {
		return underRoot(f.File, s.opts.Workspace)
	})
}

func (s *Session) traceableFunc(display string) bool {
	if s.opts.TraceableFuncs == nil {
		return true
	}
	base := funcBaseName(display)
	return lo.Contains(s.opts.TraceableFuncs, base) || lo.Contains(s.opts.TraceableFuncs, display)
}

// elapsedSinceLast reads the timer without resetting it; the async logger
// shares the session timebase.
func (s *Session) elapsedSinceLast() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk.Since(s.last)
}

// writeRecord emits pre-rendered text through the session sink, honoring
// SILENT unconditionally.
func (s *Session) writeRecord(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.Level >= LevelSilent {
		return
	}
	if err := s.out.write(text); err != nil {
		s.diag.Error("trace sink write failed", zap.Error(err))
	}
}

// Level exposes the configured verbosity to the async layer.
func (s *Session) Level() Level {
	return s.opts.Level
}
