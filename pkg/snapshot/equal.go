package snapshot

import (
	"math"
	"reflect"
)

// Budget bounds the work of recursive walks over plain trees.
// Zero fields mean "unbounded".
type Budget struct {
	MaxDepth int
	MaxKeys  int
}

// Equal reports whether two plain values are structurally equal. A nil
// value and a missing key are not distinguished by callers; Equal itself
// treats nil only as equal to nil.
func Equal(a, b any) bool {
	eq, _ := equalWithin(a, b, 0, &walkState{})
	return eq
}

// EqualBudget is Equal bounded by a budget. When the budget runs out the
// values are reported as not equal.
func EqualBudget(a, b any, budget Budget) bool {
	eq, ok := equalWithin(a, b, 0, &walkState{budget: budget})
	return eq && ok
}

type walkState struct {
	budget Budget
	keys   int
}

// equalWithin returns (equal, withinBudget).
func equalWithin(a, b any, depth int, st *walkState) (bool, bool) {
	if st.budget.MaxDepth > 0 && depth > st.budget.MaxDepth {
		return false, false
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false, true
		}
		for k, x := range av {
			st.keys++
			if st.budget.MaxKeys > 0 && st.keys > st.budget.MaxKeys {
				return false, false
			}
			y, ok := bv[k]
			if !ok {
				return false, true
			}
			if eq, within := equalWithin(x, y, depth+1, st); !eq || !within {
				return eq, within
			}
		}
		return true, true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false, true
		}
		for i := range av {
			st.keys++
			if st.budget.MaxKeys > 0 && st.keys > st.budget.MaxKeys {
				return false, false
			}
			if eq, within := equalWithin(av[i], bv[i], depth+1, st); !eq || !within {
				return eq, within
			}
		}
		return true, true
	}

	if isContainer(b) {
		return false, true
	}
	return scalarEqual(a, b), true
}

// ShallowEqual compares the first level of two plain values. Nested
// containers are compared by identity.
func ShallowEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Identical(x, y) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Identical(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return Identical(a, b)
}

// Identical compares scalars by value and containers by identity. It never
// panics on uncomparable dynamic types.
func Identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isContainer(a) || isContainer(b) {
		ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
		if ra.Kind() != rb.Kind() {
			return false
		}
		switch ra.Kind() {
		case reflect.Map:
			return ra.UnsafePointer() == rb.UnsafePointer()
		case reflect.Slice:
			return ra.Len() == rb.Len() && ra.UnsafePointer() == rb.UnsafePointer()
		}
		return false
	}
	return scalarEqual(a, b)
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// scalarEqual compares JSON scalars. Numbers compare by value across Go
// numeric types; NaN equals NaN.
func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false
		}
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		return fa == fb
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
