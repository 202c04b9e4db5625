// Package trace is the tracing engine: it observes instrumented program
// points, captures timing, call-stack location and variable snapshots, and
// renders them as a structured log stream.
//
// Go has no interpreter-level step hook, so traced code marks its own
// boundaries: Step reports a line-level event with the caller's locals, and
// Call/Ret mark function entry and exit. Whichever session is currently
// installed (see Session.Start) receives the events; sessions nest LIFO and
// each Stop restores the hook that was active before it.
//
// The async layer (AsyncSession) additionally tracks coroutine lifetimes,
// individual await points with duration thresholds, concurrently scheduled
// tasks, and ordered gathers.
package trace
