package trace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AsyncOptions extends Options with coroutine/await settings.
type AsyncOptions struct {
	Options

	// AwaitThreshold suppresses await-end records shorter than this. Zero
	// logs every await point.
	AwaitThreshold time.Duration
	// TraceTasks controls task creation/completion records.
	TraceTasks bool
}

// AsyncSession extends the synchronous controller with coroutine, await and
// task tracking.
type AsyncSession struct {
	*Session

	awaitThreshold time.Duration
	traceTasks     bool

	amu        sync.Mutex
	asyncStep  int
	nextID     uint64
	registry   map[uint64]*Coroutine
	coroStack  []*Coroutine
	awaitStack []*AwaitPoint
	callMarks  []callMark
}

// callMark pairs a Call event with its eventual Ret so best-effort coroutine
// detection can attribute the return correctly.
type callMark struct {
	name string
	rec  *Coroutine
}

// NewAsyncSession builds an inactive async session.
func NewAsyncSession(opts AsyncOptions) (*AsyncSession, error) {
	base, err := NewSession(opts.Options)
	if err != nil {
		return nil, err
	}
	return &AsyncSession{
		Session:        base,
		awaitThreshold: opts.AwaitThreshold,
		traceTasks:     opts.TraceTasks,
		registry:       make(map[uint64]*Coroutine),
	}, nil
}

// Start resets both the synchronous and the async tracking state, then
// installs the async session as the active hook.
func (a *AsyncSession) Start() error {
	a.amu.Lock()
	a.asyncStep = 0
	a.registry = make(map[uint64]*Coroutine)
	a.coroStack = nil
	a.awaitStack = nil
	a.callMarks = nil
	a.amu.Unlock()
	return a.Session.start(a)
}

// observe adds coroutine call/return detection on top of the synchronous
// handling. Its own failures are recovered and reported, never propagated.
func (a *AsyncSession) observe(ev event) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				a.diag.Error("async trace hook failure", zap.Any("panic", r))
			}
		}()
		switch ev.kind {
		case eventCall:
			a.observeCall(ev)
		case eventReturn:
			a.observeReturn(ev)
		}
	}()
	a.Session.observe(ev)
}

// observeCall tracks function entry. Coroutine bodies get a record at DEBUG
// level; this is the best-effort secondary detection path and may
// under-report coroutines resumed by an external scheduler.
func (a *AsyncSession) observeCall(ev event) {
	mark := callMark{name: ev.name}
	if ev.coroutine && a.Level() <= LevelDebug {
		mark.rec = newCoroutine(a.clk, ev.name)
	}
	a.amu.Lock()
	a.callMarks = append(a.callMarks, mark)
	if mark.rec != nil {
		a.coroStack = append(a.coroStack, mark.rec)
	}
	a.amu.Unlock()
	if mark.rec != nil {
		a.logCoroStart(mark.rec)
	}
}

func (a *AsyncSession) observeReturn(ev event) {
	a.amu.Lock()
	n := len(a.callMarks)
	if n == 0 {
		a.amu.Unlock()
		return
	}
	mark := a.callMarks[n-1]
	a.callMarks = a.callMarks[:n-1]
	if mark.rec != nil {
		mark.rec.complete(ev.value, nil)
		a.removeFromStackLocked(mark.rec)
	}
	a.amu.Unlock()
	if mark.rec != nil {
		a.logCoroEnd(mark.rec)
	}
}

// ActiveCoroutines reports how many coroutine records are currently open.
func (a *AsyncSession) ActiveCoroutines() int {
	a.amu.Lock()
	defer a.amu.Unlock()
	return len(a.registry)
}

func (a *AsyncSession) currentCoroutine() *Coroutine {
	a.amu.Lock()
	defer a.amu.Unlock()
	if len(a.coroStack) == 0 {
		return nil
	}
	return a.coroStack[len(a.coroStack)-1]
}

func (a *AsyncSession) beginCoroutine(name string) (uint64, *Coroutine) {
	c := newCoroutine(a.clk, name)
	a.amu.Lock()
	a.nextID++
	id := a.nextID
	a.registry[id] = c
	a.coroStack = append(a.coroStack, c)
	a.amu.Unlock()
	a.logCoroStart(c)
	return id, c
}

// endCoroutine finalizes and unregisters the record under the async lock
// before the end record is rendered, so a concurrent await in another
// goroutine can no longer attach to it mid-read. It is called from defers so
// it runs even on cancellation or panic.
func (a *AsyncSession) endCoroutine(id uint64, c *Coroutine, result any, err error) {
	a.amu.Lock()
	c.complete(result, err)
	delete(a.registry, id)
	a.removeFromStackLocked(c)
	a.amu.Unlock()
	a.logCoroEnd(c)
}

func (a *AsyncSession) removeFromStackLocked(c *Coroutine) {
	a.coroStack = lo.Filter(a.coroStack, func(x *Coroutine, _ int) bool { return x != c })
}

func (a *AsyncSession) beginAwait(ap *AwaitPoint) {
	a.amu.Lock()
	a.awaitStack = append(a.awaitStack, ap)
	if len(a.coroStack) > 0 {
		a.coroStack[len(a.coroStack)-1].attach(ap)
	}
	a.amu.Unlock()
	a.logAwaitStart(ap)
}

func (a *AsyncSession) endAwait(ap *AwaitPoint) {
	a.logAwaitEnd(ap)
	a.amu.Lock()
	a.awaitStack = lo.Filter(a.awaitStack, func(x *AwaitPoint, _ int) bool { return x != ap })
	a.amu.Unlock()
}

// logAsync frames one async record: header, session-relative timing, the
// event class, then the event-specific message.
func (a *AsyncSession) logAsync(label, msg string) {
	if a.Level() >= LevelSilent {
		return
	}
	a.amu.Lock()
	a.asyncStep++
	n := a.asyncStep
	a.amu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "--------------------- Async Step %d ---------------------\n", n)
	fmt.Fprintf(&b, "Time: %.4f ms | %s\n", ms(a.elapsedSinceLast()), label)
	b.WriteString(msg)
	a.writeRecord(b.String())
}

func (a *AsyncSession) logCoroStart(c *Coroutine) {
	a.logAsync("CORO", fmt.Sprintf("COROUTINE START: %s\n", c.Name))
}

func (a *AsyncSession) logCoroEnd(c *Coroutine) {
	var b strings.Builder
	fmt.Fprintf(&b, "COROUTINE END: %s [%s]\n", c.Name, outcomeLabel(c.err))
	fmt.Fprintf(&b, "   Total duration: %.4f ms\n", ms(c.Duration()))
	fmt.Fprintf(&b, "   Await points: %d\n", c.AwaitCount())
	if c.AwaitCount() > 0 {
		fmt.Fprintf(&b, "   Total await time: %.4f ms\n", ms(c.awaitTotal()))
	}
	if c.err != nil {
		fmt.Fprintf(&b, "   Exception: %s\n", errorLabel(c.err))
	}
	a.logAsync("CORO", b.String())
}

func (a *AsyncSession) logAwaitStart(ap *AwaitPoint) {
	var b strings.Builder
	fmt.Fprintf(&b, "AWAIT START: %s\n", ap.Coro)
	fmt.Fprintf(&b, "   File: %s:%d\n", ap.File, ap.Line)
	if ap.Expr != "" {
		fmt.Fprintf(&b, "   Expression: %s\n", ap.Expr)
	}
	a.logAsync("AWAIT", b.String())
}

// logAwaitEnd emits the await completion record unless its duration falls
// below the configured threshold.
func (a *AsyncSession) logAwaitEnd(ap *AwaitPoint) {
	if ap.Duration() < a.awaitThreshold {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "AWAIT END: %s [%s]\n", ap.Coro, outcomeLabel(ap.err))
	fmt.Fprintf(&b, "   File: %s:%d\n", ap.File, ap.Line)
	fmt.Fprintf(&b, "   Duration: %.4f ms\n", ms(ap.Duration()))
	if ap.err != nil {
		fmt.Fprintf(&b, "   Exception: %s\n", errorLabel(ap.err))
	} else if a.Level() <= LevelDebug {
		fmt.Fprintf(&b, "   Result: %s\n", truncateRepr(SafeRepr(ap.result), 100))
	}
	a.logAsync("AWAIT", b.String())
}

func (a *AsyncSession) logTaskCreated(name string) {
	if !a.traceTasks {
		return
	}
	a.logAsync("TASK", fmt.Sprintf("TASK CREATED: %s\n", name))
}

func (a *AsyncSession) logTaskDone(name string, elapsed time.Duration, err error) {
	if !a.traceTasks {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "TASK DONE: %s [%s]\n", name, outcomeLabel(err))
	fmt.Fprintf(&b, "   Duration: %.4f ms\n", ms(elapsed))
	if err != nil {
		fmt.Fprintf(&b, "   Exception: %s\n", errorLabel(err))
	}
	a.logAsync("TASK", b.String())
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func errorLabel(err error) string {
	return fmt.Sprintf("%T: %v", err, err)
}

func truncateRepr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// TraceCoroutine runs fn as a named coroutine: logs its start, forwards its
// result or error unchanged, and logs its end (total plus aggregate await
// time) on a path that runs even when fn panics.
func TraceCoroutine[T any](ctx context.Context, a *AsyncSession, name string, fn func(context.Context) (T, error)) (result T, err error) {
	id, c := a.beginCoroutine(name)
	defer func() {
		if r := recover(); r != nil {
			a.endCoroutine(id, c, nil, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		a.endCoroutine(id, c, result, err)
	}()
	result, err = fn(ctx)
	return result, err
}

// TraceAwait runs fn as one awaited expression attributed to the caller's
// location. The end record is dropped below the session's await threshold;
// the await stack always unwinds.
func TraceAwait[T any](ctx context.Context, a *AsyncSession, expr string, fn func(context.Context) (T, error)) (result T, err error) {
	file, line, caller := callerLocation(1)
	coro := caller
	if c := a.currentCoroutine(); c != nil {
		coro = c.Name
	}
	ap := newAwaitPoint(a.clk, coro, file, line, expr)
	a.beginAwait(ap)
	defer func() {
		if r := recover(); r != nil {
			ap.complete(nil, fmt.Errorf("panic: %v", r))
			a.endAwait(ap)
			panic(r)
		}
		ap.complete(result, err)
		a.endAwait(ap)
	}()
	result, err = fn(ctx)
	return result, err
}

// Task is a handle to a concurrently scheduled traced coroutine.
type Task[T any] struct {
	name   string
	done   chan struct{}
	cancel context.CancelFunc

	result T
	err    error
}

// Wait blocks until the task finishes and returns its outcome.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.result, t.err
}

// Cancel asks the task's context to stop it. Completion logging still fires
// exactly once.
func (t *Task[T]) Cancel() {
	t.cancel()
}

// StartTask logs task creation, schedules fn concurrently under coroutine
// instrumentation, and logs completion with elapsed wall time when it
// finishes. Context cancellation counts as a clean outcome for the
// completion record.
func StartTask[T any](ctx context.Context, a *AsyncSession, name string, fn func(context.Context) (T, error)) *Task[T] {
	start := a.clk.Now()
	a.logTaskCreated(name)
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{name: name, done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(t.done)
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.err = fmt.Errorf("panic in task %s: %v", name, r)
				}
			}()
			t.result, t.err = TraceCoroutine(ctx, a, name, fn)
		}()
		completionErr := t.err
		if errors.Is(completionErr, context.Canceled) {
			completionErr = nil
		}
		a.logTaskDone(name, a.clk.Since(start), completionErr)
	}()
	return t
}

// NamedCoroutine pairs a coroutine body with the name its records carry.
type NamedCoroutine[T any] struct {
	Name string
	Fn   func(context.Context) (T, error)
}

// Coro builds a NamedCoroutine for Gather and GatherSettled.
func Coro[T any](name string, fn func(context.Context) (T, error)) NamedCoroutine[T] {
	return NamedCoroutine[T]{Name: name, Fn: fn}
}

// Gather runs every coroutine concurrently under instrumentation and returns
// results in input order regardless of completion order. The first error
// cancels the remaining coroutines and is returned.
func Gather[T any](ctx context.Context, a *AsyncSession, coros ...NamedCoroutine[T]) ([]T, error) {
	g, ctx := errgroup.WithContext(ctx)
	results := make([]T, len(coros))
	for i, nc := range coros {
		name := nc.Name
		if name == "" {
			name = fmt.Sprintf("gather_task_%d", i)
		}
		g.Go(func() error {
			v, err := TraceCoroutine(ctx, a, name, nc.Fn)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Outcome is one GatherSettled element: a value, or the error that replaced
// it.
type Outcome[T any] struct {
	Value T
	Err   error
}

// GatherSettled is Gather with inline failures: every coroutine runs to
// completion and a failing member yields its error as a result element
// instead of aborting the join.
func GatherSettled[T any](ctx context.Context, a *AsyncSession, coros ...NamedCoroutine[T]) []Outcome[T] {
	var wg sync.WaitGroup
	results := make([]Outcome[T], len(coros))
	for i, nc := range coros {
		name := nc.Name
		if name == "" {
			name = fmt.Sprintf("gather_task_%d", i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := TraceCoroutine(ctx, a, name, nc.Fn)
			results[i] = Outcome[T]{Value: v, Err: err}
		}()
	}
	wg.Wait()
	return results
}

// Run executes fn inside the session with coroutine instrumentation: the
// async analog of Traced. The previous hook is restored before returning.
func Run[T any](ctx context.Context, a *AsyncSession, name string, fn func(context.Context) (T, error)) (T, error) {
	if err := a.Start(); err != nil {
		a.diag.Warn("could not start async trace session", zap.Error(err))
		return fn(ctx)
	}
	defer a.Stop()
	return TraceCoroutine(ctx, a, name, fn)
}

// Wrap instruments fn under the given name, picking the coroutine path for
// context-taking signatures and the synchronous session path otherwise.
// Unsupported shapes come back unwrapped with a diagnostic.
func (a *AsyncSession) Wrap(name string, fn any) any {
	switch f := fn.(type) {
	case func(context.Context) (any, error):
		return func(ctx context.Context) (any, error) {
			return TraceCoroutine(ctx, a, name, f)
		}
	case func(context.Context) error:
		return func(ctx context.Context) error {
			_, err := TraceCoroutine(ctx, a, name, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, f(ctx)
			})
			return err
		}
	case func() error:
		return TracedFunc(a.Session, f)
	case func():
		return a.Traced(f)
	default:
		a.diag.Warn("wrap: unsupported function shape", zap.String("name", name))
		return fn
	}
}
