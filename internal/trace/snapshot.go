package trace

import (
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/samber/lo"
)

// Var is one named value handed to an instrumentation point.
type Var struct {
	Name  string
	Value any
}

// V is shorthand for building a Var inline at a Step call.
func V(name string, value any) Var {
	return Var{Name: name, Value: value}
}

// Scope is an insertion-ordered set of variables. Go maps do not preserve
// order, and diff output depends on it.
type Scope struct {
	names  []string
	values map[string]any
}

// NewScope returns an empty scope, optionally seeded with vars in order.
func NewScope(vars ...Var) *Scope {
	s := &Scope{values: make(map[string]any)}
	for _, v := range vars {
		s.Set(v.Name, v.Value)
	}
	return s
}

// Set records a variable, keeping its original position if already present.
// Returns the scope for chaining.
func (s *Scope) Set(name string, value any) *Scope {
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = value
	return s
}

// Delete removes a variable, so the next diff reports it as deleted.
func (s *Scope) Delete(name string) {
	if _, ok := s.values[name]; !ok {
		return
	}
	delete(s.values, name)
	s.names = lo.Filter(s.names, func(n string, _ int) bool { return n != name })
}

func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Snapshot maps variable names to snapshotted values, insertion-ordered.
type Snapshot struct {
	names  []string
	values map[string]Value
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	return s.names
}

func (s *Snapshot) Get(name string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.values[name]
	return v, ok
}

// varFilter implements the snapshot admission rules: dunder-style names,
// tracer-internal objects and out-of-workspace function values are dropped.
type varFilter struct {
	workspace string
	enabled   bool
}

func (f varFilter) admits(name string, value any) bool {
	if isDunder(name) {
		return false
	}
	switch value.(type) {
	case *Session, *AsyncSession, reflect.Type:
		return false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Func && f.enabled && !rv.IsNil() {
		if fn := runtime.FuncForPC(rv.Pointer()); fn != nil {
			file, _ := fn.FileLine(fn.Entry())
			if !underRoot(file, f.workspace) {
				return false
			}
		}
	}
	return true
}

// underRoot reports whether path sits at or below the root directory. A bare
// prefix check would also admit sibling directories whose names share the
// root as a prefix.
func underRoot(path, root string) bool {
	if root == "" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// snapshotScope filters a scope and snapshots every admitted value. Copy or
// representation failures degrade inside snapshotValue; nothing propagates.
func snapshotScope(scope *Scope, f varFilter) *Snapshot {
	snap := &Snapshot{values: make(map[string]Value)}
	if scope == nil {
		return snap
	}
	admitted := lo.Filter(scope.names, func(name string, _ int) bool {
		return f.admits(name, scope.values[name])
	})
	for _, name := range admitted {
		snap.names = append(snap.names, name)
		snap.values[name] = snapshotValue(scope.values[name])
	}
	return snap
}

// ChangeKind classifies one diff entry.
type ChangeKind int

const (
	ChangeNew ChangeKind = iota + 1
	ChangeChanged
	ChangeDeleted
)

// ChangeEntry is one NEW, CHANGED or DELETED variable in a diff. Old is set
// for CHANGED entries only; New is unset for DELETED entries.
type ChangeEntry struct {
	Kind ChangeKind
	Name string
	Old  Value
	New  Value
}

// Changes is the ordered outcome of diffing two snapshots: NEW and CHANGED
// entries in the current snapshot's insertion order, then DELETED entries in
// the previous snapshot's insertion order.
type Changes struct {
	Entries []ChangeEntry
}

func (c Changes) empty() bool {
	return len(c.Entries) == 0
}

// Of returns the entries of one kind, keeping their relative order.
func (c Changes) Of(kind ChangeKind) []ChangeEntry {
	return lo.Filter(c.Entries, func(e ChangeEntry, _ int) bool { return e.Kind == kind })
}

// diff compares current against previous: names only in current are NEW,
// names in both with unequal values are CHANGED, names only in previous are
// DELETED.
func diff(current, previous *Snapshot) Changes {
	var out Changes
	for _, name := range current.Names() {
		cur, _ := current.Get(name)
		prev, ok := previous.Get(name)
		if !ok {
			out.Entries = append(out.Entries, ChangeEntry{Kind: ChangeNew, Name: name, New: cur})
			continue
		}
		if !valuesEqual(cur, prev) {
			out.Entries = append(out.Entries, ChangeEntry{Kind: ChangeChanged, Name: name, Old: prev, New: cur})
		}
	}
	for _, name := range previous.Names() {
		if _, ok := current.Get(name); !ok {
			out.Entries = append(out.Entries, ChangeEntry{Kind: ChangeDeleted, Name: name})
		}
	}
	return out
}
