package trace

import (
	"fmt"
	"reflect"
)

// Value is one snapshotted variable: a stable type name, a textual
// representation, and a detached copy used for structural comparison on
// later steps.
type Value struct {
	Type string
	Repr string

	copied any
}

func snapshotValue(v any) Value {
	return Value{
		Type:   typeName(v),
		Repr:   SafeRepr(v),
		copied: SafeCopy(v),
	}
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// cyclicRepr marks the point where a self-referential container closes on
// itself.
const cyclicRepr = "<cyclic>"

// SafeRepr renders v as text without letting a misbehaving Stringer take the
// trace down. Self-referential containers would send fmt into unbounded
// recursion (a fatal error no recover can catch), so they render as a typed
// placeholder instead.
func SafeRepr(v any) (out string) {
	defer func() {
		if recover() != nil {
			out = "<unrepresentable>"
		}
	}()
	if hasCycle(reflect.ValueOf(v), map[uintptr]bool{}) {
		return fmt.Sprintf("<cyclic %s>", typeName(v))
	}
	return fmt.Sprintf("%v", v)
}

// SafeCopy detaches v from the traced program: deep copy where the type
// allows it, the value itself where it does not, and a textual
// representation as the last resort. It never panics.
func SafeCopy(v any) (out any) {
	defer func() {
		if recover() != nil {
			out = SafeRepr(v)
		}
	}()
	return deepCopy(v, map[uintptr]bool{})
}

// deepCopy duplicates reference kinds so later mutation of the traced value
// does not rewrite history. Value kinds already copy on assignment. seen
// holds the containers on the current path; revisiting one is a cycle and
// copies as a placeholder rather than recursing until the stack dies.
func deepCopy(v any, seen map[uintptr]bool) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		p := rv.Pointer()
		if seen[p] {
			return cyclicRepr
		}
		seen[p] = true
		defer delete(seen, p)
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyElem(iter.Value(), seen))
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		p := rv.Pointer()
		if seen[p] {
			return cyclicRepr
		}
		seen[p] = true
		defer delete(seen, p)
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyElem(rv.Index(i), seen))
		}
		return out.Interface()
	case reflect.Pointer:
		if rv.IsNil() {
			return v
		}
		p := rv.Pointer()
		if seen[p] {
			return cyclicRepr
		}
		seen[p] = true
		defer delete(seen, p)
		out := reflect.New(rv.Type().Elem())
		out.Elem().Set(copyElem(rv.Elem(), seen))
		return out.Interface()
	default:
		return v
	}
}

// copyElem deep-copies elem when the copy keeps an assignable type,
// otherwise reuses the original value.
func copyElem(elem reflect.Value, seen map[uintptr]bool) reflect.Value {
	if !elem.CanInterface() {
		return elem
	}
	c := reflect.ValueOf(deepCopy(elem.Interface(), seen))
	if c.IsValid() && c.Type().AssignableTo(elem.Type()) {
		return c
	}
	return elem
}

// hasCycle reports whether the value graph under rv reaches itself. Only the
// containers on the current path count, so diamond-shaped sharing is not
// flagged.
func hasCycle(rv reflect.Value, seen map[uintptr]bool) bool {
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		if rv.IsNil() {
			return false
		}
		p := rv.Pointer()
		if seen[p] {
			return true
		}
		seen[p] = true
		defer delete(seen, p)
		switch rv.Kind() {
		case reflect.Map:
			iter := rv.MapRange()
			for iter.Next() {
				if hasCycle(iter.Value(), seen) {
					return true
				}
			}
		case reflect.Slice:
			for i := 0; i < rv.Len(); i++ {
				if hasCycle(rv.Index(i), seen) {
					return true
				}
			}
		case reflect.Pointer:
			return hasCycle(rv.Elem(), seen)
		}
	case reflect.Interface:
		if !rv.IsNil() {
			return hasCycle(rv.Elem(), seen)
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if hasCycle(rv.Field(i), seen) {
				return true
			}
		}
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if hasCycle(rv.Index(i), seen) {
				return true
			}
		}
	}
	return false
}

// valuesEqual compares two snapshotted values structurally, degrading to
// their textual representations if the comparison itself fails.
func valuesEqual(a, b Value) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = a.Repr == b.Repr
		}
	}()
	// Function values have no structural equality; their representations
	// (stable per function) stand in for identity.
	if reflect.ValueOf(a.copied).Kind() == reflect.Func {
		return a.Repr == b.Repr
	}
	return reflect.DeepEqual(a.copied, b.copied)
}
