package reactive

import (
	"fmt"

	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/scheduler"
	"github.com/vango-dev/viewstate/pkg/snapshot"
)

// DeepStrategy selects how a deep watcher subscribes to nested changes.
type DeepStrategy int

const (
	// DeepVersion subscribes to the version key of a watched proxy, which
	// every nested write bumps through parent links.
	DeepVersion DeepStrategy = iota
	// DeepTraverse reads every nested key. It also works for values that
	// are not proxies.
	DeepTraverse
)

func (s DeepStrategy) String() string {
	if s == DeepTraverse {
		return "traverse"
	}
	return "version"
}

// ParseDeepStrategy parses "version" or "traverse".
func ParseDeepStrategy(s string) (DeepStrategy, bool) {
	switch s {
	case "version", "":
		return DeepVersion, true
	case "traverse":
		return DeepTraverse, true
	}
	return DeepVersion, false
}

// OnCleanup registers a function to run before the next callback and when
// the watcher stops.
type OnCleanup func(fn func())

// WatchCallback receives the new and previous source values. The previous
// value is nil on the first call.
type WatchCallback func(value, old any, onCleanup OnCleanup)

// StopFunc stops a watcher. Calling it twice is a no-op.
type StopFunc func()

type watchOptions struct {
	immediate bool
	deep      bool
	strategy  DeepStrategy
	once      bool
	name      string
}

// WatchOption configures Watch.
type WatchOption func(*watchOptions)

// Immediate calls the callback once at creation time.
func Immediate() WatchOption {
	return func(o *watchOptions) {
		o.immediate = true
	}
}

// Deep fires on nested writes below the source value.
func Deep() WatchOption {
	return func(o *watchOptions) {
		o.deep = true
	}
}

// WithDeepStrategy selects the deep strategy and implies Deep.
func WithDeepStrategy(s DeepStrategy) WatchOption {
	return func(o *watchOptions) {
		o.deep = true
		o.strategy = s
	}
}

// Once stops the watcher after the first callback.
func Once() WatchOption {
	return func(o *watchOptions) {
		o.once = true
	}
}

// WithName names the watcher's scheduler job in logs.
func WithName(name string) WatchOption {
	return func(o *watchOptions) {
		o.name = name
	}
}

type watcher struct {
	rt   *Runtime
	opts watchOptions
	cb   WatchCallback

	effect *Effect
	job    *scheduler.Job
	read   func() any

	value    any
	hasValue bool
	cleanup  []func()
}

// Watch runs cb when the value produced by source changes. source may be a
// Source (refs, computeds, SourceFunc), a func() any getter or a *Proxy.
// Watching a proxy implies Deep. Callbacks run as scheduler jobs, so
// several writes in one tick produce one callback.
func (rt *Runtime) Watch(source any, cb WatchCallback, opts ...WatchOption) StopFunc {
	w := &watcher{rt: rt, cb: cb}
	for _, opt := range opts {
		opt(&w.opts)
	}

	var getter func() any
	switch s := source.(type) {
	case *Proxy:
		w.opts.deep = true
		getter = func() any { return s }
	case Source:
		getter = s.Read
	case func() any:
		getter = s
	default:
		panic(errors.New("E104").WithDetail(fmt.Sprintf("cannot watch a value of type %T", source)))
	}
	if w.opts.deep {
		base := getter
		getter = func() any {
			v := base()
			w.deepTrack(v)
			return v
		}
	}

	name := w.opts.name
	if name == "" {
		name = "watch"
	}
	w.job = scheduler.NewJob(name, w.fire)

	var current any
	w.effect = rt.newEffect(func() { current = getter() }, Lazy(), WithScheduler(func() {
		rt.sched.QueueJob(w.job)
	}), OnStop(w.runCleanup))
	w.read = func() any {
		w.effect.Run()
		return current
	}

	if w.opts.immediate {
		w.fire()
	} else {
		w.value, w.hasValue = w.read(), true
	}
	return w.effect.Stop
}

// fire re-reads the source and calls back if it changed. Deep watchers
// call back on every trigger, since nested writes keep identity.
func (w *watcher) fire() {
	if !w.effect.Active() {
		return
	}
	next := w.read()
	if w.hasValue && !w.opts.deep && snapshot.Identical(next, w.value) {
		return
	}

	w.runCleanup()
	var old any
	if w.hasValue {
		old = w.value
	}
	w.value, w.hasValue = next, true

	w.cb(next, old, func(fn func()) {
		w.cleanup = append(w.cleanup, fn)
	})
	if w.opts.once {
		w.effect.Stop()
	}
}

func (w *watcher) runCleanup() {
	fns := w.cleanup
	w.cleanup = nil
	for _, fn := range fns {
		w.rt.safeCall("watch cleanup", fn)
	}
}

func (w *watcher) deepTrack(v any) {
	if p, ok := v.(*Proxy); ok && w.opts.strategy == DeepVersion {
		w.rt.track(p.target.hdr(), VersionKey)
		return
	}
	traverse(v, map[any]struct{}{})
}

// traverse reads every key reachable from v so the active effect
// subscribes to all of them.
func traverse(v any, seen map[any]struct{}) {
	switch x := v.(type) {
	case *Proxy:
		if _, ok := seen[x.target]; ok {
			return
		}
		seen[x.target] = struct{}{}
		if x.arr != nil {
			for _, item := range x.Items() {
				traverse(item, seen)
			}
			return
		}
		for _, k := range x.Keys() {
			traverse(x.Get(k), seen)
		}
	case Source:
		traverse(x.Read(), seen)
	case map[string]any:
		for _, item := range x {
			traverse(item, seen)
		}
	case []any:
		for _, item := range x {
			traverse(item, seen)
		}
	}
}

// WatchEffect runs fn now and again, as a scheduler job, whenever
// something it read changes. Cleanups registered through onCleanup run
// before each re-run and on stop.
func (rt *Runtime) WatchEffect(fn func(onCleanup OnCleanup)) StopFunc {
	var cleanups []func()
	runCleanups := func() {
		fns := cleanups
		cleanups = nil
		for _, c := range fns {
			rt.safeCall("watch cleanup", c)
		}
	}
	register := func(c func()) {
		cleanups = append(cleanups, c)
	}

	var e *Effect
	job := scheduler.NewJob("watchEffect", func() {
		if e.Active() {
			e.Run()
		}
	})
	e = rt.newEffect(func() {
		runCleanups()
		fn(register)
	}, WithScheduler(func() {
		rt.sched.QueueJob(job)
	}), OnStop(runCleanups))
	e.Run()
	return e.Stop
}

// safeCall runs fn, logging instead of propagating a panic.
func (rt *Runtime) safeCall(what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			rt.logger.Warn(what+" panic", "panic", p)
		}
	}()
	fn()
}
