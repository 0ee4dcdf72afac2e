package reactive

import (
	"fmt"

	"github.com/vango-dev/viewstate/internal/errors"
)

// Computed is a lazily evaluated, cached derivation. It recomputes on the
// first read after one of its dependencies changes, and notifies its own
// subscribers as soon as it becomes dirty, even inside a batch.
type Computed[T any] struct {
	h      header
	getter func() T
	setter func(T)
	effect *Effect

	value T
	dirty bool
	evals int
}

// NewComputed creates a readonly computed. It belongs to the current scope.
func NewComputed[T any](rt *Runtime, getter func() T) *Computed[T] {
	return newComputed(rt, getter, nil)
}

// NewWritableComputed creates a computed whose Set calls setter.
func NewWritableComputed[T any](rt *Runtime, getter func() T, setter func(T)) *Computed[T] {
	return newComputed(rt, getter, setter)
}

func newComputed[T any](rt *Runtime, getter func() T, setter func(T)) *Computed[T] {
	c := &Computed[T]{getter: getter, setter: setter, dirty: true}
	c.h.rt = rt
	c.effect = rt.newEffect(c.evaluate, Lazy(), WithScheduler(c.markDirty))
	c.effect.computed = true
	return c
}

func (c *Computed[T]) evaluate() {
	c.value = c.getter()
	c.evals++
}

func (c *Computed[T]) markDirty() {
	if c.dirty {
		return
	}
	c.dirty = true
	c.h.rt.trigger(&c.h, valueKey)
}

// Get returns the cached value, recomputing it if dirty, and tracks the
// read.
func (c *Computed[T]) Get() T {
	c.h.rt.track(&c.h, valueKey)
	if c.dirty {
		c.dirty = false
		c.effect.Run()
	}
	return c.value
}

// Peek returns the value without tracking. It still recomputes if dirty.
func (c *Computed[T]) Peek() T {
	var v T
	c.h.rt.Untracked(func() { v = c.Get() })
	return v
}

// Read implements Source.
func (c *Computed[T]) Read() any {
	return c.Get()
}

// Set calls the setter of a writable computed. On a readonly computed it
// panics with E102.
func (c *Computed[T]) Set(v T) {
	if c.setter == nil {
		panic(errors.New("E102").WithDetail(fmt.Sprintf("set %v", v)))
	}
	c.setter(v)
}

// Dirty reports whether the next read will recompute.
func (c *Computed[T]) Dirty() bool {
	return c.dirty
}

// Evaluations returns how many times the getter has run.
func (c *Computed[T]) Evaluations() int {
	return c.evals
}

// Stop detaches the computed from its dependencies. Its last value stays
// readable.
func (c *Computed[T]) Stop() {
	c.effect.Stop()
}

func (c *Computed[T]) runtime() *Runtime {
	return c.h.rt
}
