package reactive

import (
	"github.com/vango-dev/viewstate/pkg/snapshot"
)

// Source is anything a watcher can read: refs, computeds and getters
// wrapped with SourceFunc.
type Source interface {
	Read() any
}

// SourceFunc adapts a getter to Source.
type SourceFunc func() any

// Read calls f.
func (f SourceFunc) Read() any {
	return f()
}

// Ref is a single tracked value. Writes that leave the value identical
// (scalars by value, containers and pointers by identity) do not trigger.
type Ref[T any] struct {
	h      header
	value  T
	equals func(a, b T) bool
}

// NewRef creates a ref bound to rt.
func NewRef[T any](rt *Runtime, initial T) *Ref[T] {
	r := &Ref[T]{value: initial}
	r.h.rt = rt
	return r
}

// WithEquals replaces the change check. It returns r for chaining.
func (r *Ref[T]) WithEquals(fn func(a, b T) bool) *Ref[T] {
	r.equals = fn
	return r
}

// Get returns the value and tracks the read.
func (r *Ref[T]) Get() T {
	r.h.rt.track(&r.h, valueKey)
	return r.value
}

// Peek returns the value without tracking.
func (r *Ref[T]) Peek() T {
	return r.value
}

// Read implements Source.
func (r *Ref[T]) Read() any {
	return r.Get()
}

// Set writes the value and triggers subscribers if it changed.
func (r *Ref[T]) Set(v T) {
	if r.same(r.value, v) {
		return
	}
	r.value = v
	r.h.rt.trigger(&r.h, valueKey)
}

// Update sets the value to fn(current).
func (r *Ref[T]) Update(fn func(T) T) {
	r.Set(fn(r.value))
}

// Trigger notifies subscribers without changing the value, for callers
// that mutated the value in place.
func (r *Ref[T]) Trigger() {
	r.h.rt.trigger(&r.h, valueKey)
}

func (r *Ref[T]) same(a, b T) bool {
	if r.equals != nil {
		return r.equals(a, b)
	}
	return snapshot.Identical(any(a), any(b))
}

func (r *Ref[T]) runtime() *Runtime {
	return r.h.rt
}
