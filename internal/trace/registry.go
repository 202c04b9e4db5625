package trace

import "sync"

// Hook receives raw instrumentation events from the package-level entry
// points. Sessions implement it.
type Hook interface {
	observe(ev event)
}

type eventKind int

const (
	eventLine eventKind = iota
	eventCall
	eventReturn
)

// event is one raw instrumentation event before session filtering.
type event struct {
	kind   eventKind
	frames []Frame
	locals *Scope

	// call/return markers
	name      string
	coroutine bool
	value     any
}

// hookRegistry is the process-wide stack of installed hooks. Sessions push on
// Start and pop on Stop; strict LIFO nesting is the contract, and pop
// restores whatever was below.
type hookRegistry struct {
	mu    sync.Mutex
	stack []Hook
}

var hooks hookRegistry

func (r *hookRegistry) push(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stack = append(r.stack, h)
}

// pop removes the topmost occurrence of h. Out-of-order removal still works
// so a leaked inner session cannot wedge the outer one forever.
func (r *hookRegistry) pop(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i] == h {
			r.stack = append(r.stack[:i], r.stack[i+1:]...)
			return
		}
	}
}

func (r *hookRegistry) top() Hook {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

// Step reports one line-level event with the caller's local variables. With
// no active session it costs a registry peek and nothing else.
func Step(locals ...Var) {
	h := hooks.top()
	if h == nil {
		return
	}
	h.observe(event{kind: eventLine, frames: callStack(1), locals: NewScope(locals...)})
}

// Call marks entry into a function body. Setting coroutine lets the async
// controller track coroutine bodies that were not wrapped explicitly; this
// detection path is best-effort and only consulted at LevelDebug.
func Call(name string, coroutine bool) {
	h := hooks.top()
	if h == nil {
		return
	}
	h.observe(event{kind: eventCall, name: name, coroutine: coroutine})
}

// Ret marks the return of the body most recently entered via Call, carrying
// its return value.
func Ret(value any) {
	h := hooks.top()
	if h == nil {
		return
	}
	h.observe(event{kind: eventReturn, value: value})
}
