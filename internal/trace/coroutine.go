package trace

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
)

// AwaitPoint records one suspension boundary inside a coroutine body: where
// it happened, how long it took, and how it resolved.
type AwaitPoint struct {
	Coro string
	File string
	Line int
	Expr string

	clk    clock.Clock
	start  time.Time
	end    time.Time
	done   bool
	result any
	err    error
}

func newAwaitPoint(clk clock.Clock, coro, file string, line int, expr string) *AwaitPoint {
	return &AwaitPoint{
		Coro:  coro,
		File:  file,
		Line:  line,
		Expr:  expr,
		clk:   clk,
		start: clk.Now(),
	}
}

// Duration is computed, not stored: end minus start once complete, now minus
// start while pending.
func (a *AwaitPoint) Duration() time.Duration {
	if !a.done {
		return a.clk.Since(a.start)
	}
	return a.end.Sub(a.start)
}

// complete marks the await as resolved. The end timestamp is set at most once.
func (a *AwaitPoint) complete(result any, err error) {
	if a.done {
		return
	}
	a.done = true
	a.end = a.clk.Now()
	a.result = result
	a.err = err
}

func (a *AwaitPoint) Err() error { return a.err }

// Coroutine is the bookkeeping record for one traced asynchronous call.
type Coroutine struct {
	Name string

	clk    clock.Clock
	start  time.Time
	end    time.Time
	done   bool
	awaits []*AwaitPoint
	result any
	err    error
}

func newCoroutine(clk clock.Clock, name string) *Coroutine {
	return &Coroutine{Name: name, clk: clk, start: clk.Now()}
}

func (c *Coroutine) Duration() time.Duration {
	if !c.done {
		return c.clk.Since(c.start)
	}
	return c.end.Sub(c.start)
}

// complete marks the coroutine as finished. The end timestamp is set at most
// once; later calls are ignored.
func (c *Coroutine) complete(result any, err error) {
	if c.done {
		return
	}
	c.done = true
	c.end = c.clk.Now()
	c.result = result
	c.err = err
}

// attach records an await point encountered during the body. The list only
// grows while the coroutine is active.
func (c *Coroutine) attach(a *AwaitPoint) {
	if c.done {
		return
	}
	c.awaits = append(c.awaits, a)
}

func (c *Coroutine) AwaitCount() int { return len(c.awaits) }

// awaitTotal aggregates time spent across every await point in the body.
func (c *Coroutine) awaitTotal() time.Duration {
	return lo.SumBy(c.awaits, func(a *AwaitPoint) time.Duration { return a.Duration() })
}

func (c *Coroutine) Err() error { return c.err }
