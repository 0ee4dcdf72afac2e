package reactive

import (
	"encoding/json"

	"github.com/vango-dev/viewstate/pkg/snapshot"
)

// DefaultPlainBudget bounds ToPlain when callers pass a zero budget field.
var DefaultPlainBudget = snapshot.Budget{MaxDepth: 64, MaxKeys: 100000}

// ToPlain converts a live value into a plain JSON-shaped tree without
// tracking anything. Proxies and nodes become map[string]any and []any,
// refs and computeds become their current value, and other Go values go
// through a JSON round trip. Cycles and anything past the depth budget
// become nil; entries past the key budget are dropped.
func ToPlain(v any, budget snapshot.Budget) any {
	return ToPlainAt(v, 0, budget)
}

// ToPlainAt converts a value found depth levels below the value the budget
// applies to, so its depth is charged the same as in a walk from the top.
// It returns nil when depth is already past the budget.
func ToPlainAt(v any, depth int, budget snapshot.Budget) any {
	st := newPlainState(budget)
	return st.plain(v, depth)
}

// FitsPlain reports whether ToPlain(v, budget) keeps every entry, that is
// whether the walk ends before the key budget runs out.
func FitsPlain(v any, budget snapshot.Budget) bool {
	st := newPlainState(budget)
	return st.count(v, 0)
}

// EffectiveBudget fills zero budget fields with DefaultPlainBudget.
func EffectiveBudget(budget snapshot.Budget) snapshot.Budget {
	if budget.MaxDepth <= 0 {
		budget.MaxDepth = DefaultPlainBudget.MaxDepth
	}
	if budget.MaxKeys <= 0 {
		budget.MaxKeys = DefaultPlainBudget.MaxKeys
	}
	return budget
}

func newPlainState(budget snapshot.Budget) *plainState {
	return &plainState{budget: EffectiveBudget(budget), stack: map[any]struct{}{}}
}

type plainState struct {
	budget snapshot.Budget
	keys   int
	stack  map[any]struct{}
}

func (st *plainState) exhausted() bool {
	return st.keys >= st.budget.MaxKeys
}

func (st *plainState) plain(v any, depth int) any {
	if depth > st.budget.MaxDepth {
		return nil
	}

	switch x := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case *Proxy:
		return st.plain(x.target, depth)
	case *Object:
		if !st.enter(x) {
			return nil
		}
		defer st.leave(x)
		out := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			if st.exhausted() {
				break
			}
			st.keys++
			out[k] = st.plain(x.fields[k], depth+1)
		}
		return out
	case *Array:
		if !st.enter(x) {
			return nil
		}
		defer st.leave(x)
		out := make([]any, 0, len(x.items))
		for _, item := range x.items {
			if st.exhausted() {
				break
			}
			st.keys++
			out = append(out, st.plain(item, depth+1))
		}
		return out
	case Source:
		return st.plain(untrackedRead(x), depth)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			if st.exhausted() {
				break
			}
			st.keys++
			out[k] = st.plain(item, depth+1)
		}
		return out
	case []any:
		out := make([]any, 0, len(x))
		for _, item := range x {
			if st.exhausted() {
				break
			}
			st.keys++
			out = append(out, st.plain(item, depth+1))
		}
		return out
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// count mirrors plain without building output. It returns false as soon
// as more entries are seen than the key budget allows.
func (st *plainState) count(v any, depth int) bool {
	if depth > st.budget.MaxDepth {
		return true
	}

	switch x := v.(type) {
	case *Proxy:
		return st.count(x.target, depth)
	case *Object:
		if !st.enter(x) {
			return true
		}
		defer st.leave(x)
		for _, k := range x.keys {
			if !st.charge() || !st.count(x.fields[k], depth+1) {
				return false
			}
		}
	case *Array:
		if !st.enter(x) {
			return true
		}
		defer st.leave(x)
		for _, item := range x.items {
			if !st.charge() || !st.count(item, depth+1) {
				return false
			}
		}
	case Source:
		return st.count(untrackedRead(x), depth)
	case map[string]any:
		for _, item := range x {
			if !st.charge() || !st.count(item, depth+1) {
				return false
			}
		}
	case []any:
		for _, item := range x {
			if !st.charge() || !st.count(item, depth+1) {
				return false
			}
		}
	}
	return true
}

func (st *plainState) charge() bool {
	st.keys++
	return st.keys <= st.budget.MaxKeys
}

func (st *plainState) enter(n Node) bool {
	if _, ok := st.stack[n]; ok {
		return false
	}
	st.stack[n] = struct{}{}
	return true
}

func (st *plainState) leave(n Node) {
	delete(st.stack, n)
}

// untrackedRead reads a Source with tracking paused when it is bound to a
// runtime.
func untrackedRead(s Source) any {
	type bound interface{ runtime() *Runtime }
	if b, ok := s.(bound); ok && b.runtime() != nil {
		var v any
		b.runtime().Untracked(func() { v = s.Read() })
		return v
	}
	return s.Read()
}
