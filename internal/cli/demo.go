package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/steptrace/steptrace/internal/trace"
)

// DemoCmd runs self-contained instrumented workloads so the tracer's output
// can be inspected without instrumenting a real program first.
type DemoCmd struct {
	Async bool `help:"Run the asynchronous demo instead of the synchronous one"`
}

func (c *DemoCmd) Run(globals *Globals) error {
	cfg, err := globals.loadConfig(".")
	if err != nil {
		return failf(globals, 1, "%v", err)
	}
	workspace := demoWorkspace()

	if c.Async || cfg.TraceAsync {
		sess, err := trace.NewAsyncSession(globals.asyncSessionOptions(cfg, workspace))
		if err != nil {
			return failf(globals, 1, "%v", err)
		}
		defer sess.Close()
		announce(globals, "built-in async demo", sess.LogPath())
		if err := runAsyncDemo(sess); err != nil {
			return failf(globals, 1, "async demo failed: %v", err)
		}
		return nil
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
	announce(globals, "built-in sync demo", sess.LogPath())
	runSyncDemo()
	return nil
}

// demoWorkspace pins workspace filtering to this source file's directory so
// the demo's own step sites qualify as in-workspace.
func demoWorkspace() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	return filepath.Dir(file)
}

func runSyncDemo() {
	total := computeTotal([]int{3, 1, 4, 1, 5})
	_ = buildGreeting("tracer", total)
}

func computeTotal(values []int) int {
	total := 0
	trace.Step(trace.V("values", values), trace.V("total", total))
	for i, v := range values {
		total += v
		trace.Step(trace.V("values", values), trace.V("i", i), trace.V("v", v), trace.V("total", total))
	}
	return total
}

func buildGreeting(name string, total int) string {
	greeting := fmt.Sprintf("hello %s", name)
	trace.Step(trace.V("name", name), trace.V("total", total), trace.V("greeting", greeting))
	greeting = fmt.Sprintf("%s (total=%d)", greeting, total)
	trace.Step(trace.V("name", name), trace.V("total", total), trace.V("greeting", greeting))
	return greeting
}

// runAsyncDemo exercises the coroutine, await, task and gather paths.
func runAsyncDemo(sess *trace.AsyncSession) error {
	ctx := context.Background()
	_, err := trace.Run(ctx, sess, "demo_main", func(ctx context.Context) (int, error) {
		fetched, err := trace.TraceAwait(ctx, sess, "fetchValue(ctx, 7)", func(ctx context.Context) (int, error) {
			return fetchValue(ctx, 7)
		})
		if err != nil {
			return 0, err
		}

		task := trace.StartTask(ctx, sess, "background_sum", func(ctx context.Context) (int, error) {
			return slowSum(ctx, []int{1, 2, 3})
		})

		doubled, err := trace.Gather(ctx, sess,
			trace.Coro("double_a", func(ctx context.Context) (int, error) { return doubleValue(ctx, fetched) }),
			trace.Coro("double_b", func(ctx context.Context) (int, error) { return doubleValue(ctx, fetched+1) }),
		)
		if err != nil {
			return 0, err
		}

		background, err := task.Wait()
		if err != nil {
			return 0, err
		}
		return background + doubled[0] + doubled[1], nil
	})
	return err
}

func fetchValue(ctx context.Context, n int) (int, error) {
	select {
	case <-time.After(5 * time.Millisecond):
		return n * 10, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func slowSum(ctx context.Context, values []int) (int, error) {
	total := 0
	for _, v := range values {
		select {
		case <-time.After(2 * time.Millisecond):
			total += v
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return total, nil
}

func doubleValue(ctx context.Context, n int) (int, error) {
	select {
	case <-time.After(time.Millisecond):
		return n * 2, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
