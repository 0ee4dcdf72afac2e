package reactive

// Effect is a tracked computation. Each run records the keys it reads and
// replaces the previous run's subscriptions; a write to any of them
// triggers the effect again, either directly or through its scheduler.
type Effect struct {
	rt *Runtime
	id uint64

	fn        func()
	scheduler func()
	onStop    func()

	// deps are the subscriber sets this effect joined on its last run.
	deps []*dep

	active  bool
	running bool
	lazy    bool

	// computed effects only flip a dirty flag, so they run even inside a
	// batch.
	computed bool
}

// EffectOption configures an Effect.
type EffectOption interface {
	applyEffect(e *Effect)
}

type effectOptionFunc func(*Effect)

func (f effectOptionFunc) applyEffect(e *Effect) { f(e) }

// WithScheduler makes triggers call fn instead of re-running the effect.
// fn decides when to call Run.
func WithScheduler(fn func()) EffectOption {
	return effectOptionFunc(func(e *Effect) {
		e.scheduler = fn
	})
}

// Lazy skips the initial run. The effect tracks nothing until Run is called.
func Lazy() EffectOption {
	return effectOptionFunc(func(e *Effect) {
		e.lazy = true
	})
}

// OnStop registers a teardown callback invoked by Stop.
func OnStop(fn func()) EffectOption {
	return effectOptionFunc(func(e *Effect) {
		e.onStop = fn
	})
}

// Effect creates an effect and, unless Lazy is given, runs it once. The
// effect belongs to the current scope, if any.
func (rt *Runtime) Effect(fn func(), opts ...EffectOption) *Effect {
	e := rt.newEffect(fn, opts...)
	if !e.lazy {
		e.Run()
	}
	return e
}

func (rt *Runtime) newEffect(fn func(), opts ...EffectOption) *Effect {
	e := &Effect{
		rt:     rt,
		id:     nextID(),
		fn:     fn,
		active: true,
	}
	for _, opt := range opts {
		opt.applyEffect(e)
	}
	if rt.scope != nil {
		rt.scope.addEffect(e)
	}
	return e
}

// ID returns the unique identifier for this effect.
func (e *Effect) ID() uint64 {
	return e.id
}

// Active reports whether the effect has not been stopped.
func (e *Effect) Active() bool {
	return e.active
}

// Run executes the effect body with tracking. A stopped effect runs its
// body untracked. A run requested while the effect is already running is
// ignored.
func (e *Effect) Run() {
	if !e.active {
		e.rt.Untracked(e.fn)
		return
	}
	if e.running {
		return
	}

	e.cleanupDeps()

	rt := e.rt
	prevEffect, prevPause := rt.activeEffect, rt.pauseDepth
	rt.activeEffect, rt.pauseDepth = e, 0
	e.running = true
	defer func() {
		e.running = false
		rt.activeEffect, rt.pauseDepth = prevEffect, prevPause
	}()

	e.fn()
}

// Stop detaches the effect from every dependency and calls its OnStop
// callback. Stopping twice is a no-op.
func (e *Effect) Stop() {
	if !e.active {
		return
	}
	e.cleanupDeps()
	e.active = false
	if e.onStop != nil {
		e.onStop()
	}
}

// trigger reacts to a dependency change.
func (e *Effect) trigger() {
	if e.scheduler != nil {
		e.scheduler()
		return
	}
	e.Run()
}

func (e *Effect) cleanupDeps() {
	for _, d := range e.deps {
		d.remove(e)
	}
	e.deps = e.deps[:0]
}

// DepCount returns how many dependency sets the effect is subscribed to.
func (e *Effect) DepCount() int {
	return len(e.deps)
}
