package reactive

import (
	"log/slog"
	"sync/atomic"

	"github.com/vango-dev/viewstate/pkg/scheduler"
)

var idCounter atomic.Uint64

// nextID returns the next unique ID for an effect or recorder.
func nextID() uint64 {
	return idCounter.Add(1)
}

// Runtime holds the tracking state shared by every proxy, effect, ref and
// computed created from it.
type Runtime struct {
	sched  *scheduler.Scheduler
	logger *slog.Logger

	// activeEffect is the effect whose reads are currently being tracked.
	activeEffect *Effect
	pauseDepth   int

	batchDepth int
	batchQueue []*Effect
	batchSet   map[*Effect]struct{}

	scope *Scope

	recorders []*recorder
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = logger
	}
}

// NewRuntime creates a runtime whose watchers queue onto sched. A nil
// scheduler gets a private one.
func NewRuntime(sched *scheduler.Scheduler, opts ...Option) *Runtime {
	rt := &Runtime{
		sched:    sched,
		batchSet: make(map[*Effect]struct{}),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.logger == nil {
		rt.logger = slog.Default()
	}
	rt.logger = rt.logger.With("component", "reactive")
	if rt.sched == nil {
		rt.sched = scheduler.New(scheduler.WithLogger(rt.logger))
	}
	return rt
}

// Scheduler returns the scheduler watchers queue onto.
func (rt *Runtime) Scheduler() *scheduler.Scheduler {
	return rt.sched
}

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// NextTick runs fn once pending watcher jobs have flushed.
func (rt *Runtime) NextTick(fn func()) <-chan struct{} {
	return rt.sched.NextTick(fn)
}

// Untracked runs fn without subscribing the active effect to anything fn
// reads.
func (rt *Runtime) Untracked(fn func()) {
	rt.pauseDepth++
	defer func() { rt.pauseDepth-- }()
	fn()
}

// UntrackedGet returns the result of fn, read without tracking.
func UntrackedGet[T any](rt *Runtime, fn func() T) T {
	var v T
	rt.Untracked(func() { v = fn() })
	return v
}

// Tracking reports whether reads are currently being tracked.
func (rt *Runtime) Tracking() bool {
	return rt.activeEffect != nil && rt.pauseDepth == 0
}
