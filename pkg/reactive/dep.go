package reactive

// Sentinel keys. They cannot collide with user keys because user keys are
// never tracked with a leading NUL.
const (
	// VersionKey is triggered on a node and all of its ancestors whenever
	// anything below the node changes.
	VersionKey = "\x00version"
	// IterateKey is triggered when keys are added to or removed from a node.
	IterateKey = "\x00iterate"
	// LengthKey is triggered when an array changes length.
	LengthKey = "\x00length"
	// valueKey is the single key refs and computeds track.
	valueKey = "value"
)

// dep is the ordered subscriber set for one (target, key) pair.
type dep struct {
	subs  []*Effect
	index map[*Effect]struct{}
}

func newDep() *dep {
	return &dep{index: make(map[*Effect]struct{})}
}

// add subscribes e and reports whether it was new.
func (d *dep) add(e *Effect) bool {
	if _, ok := d.index[e]; ok {
		return false
	}
	d.index[e] = struct{}{}
	d.subs = append(d.subs, e)
	return true
}

func (d *dep) remove(e *Effect) {
	if _, ok := d.index[e]; !ok {
		return
	}
	delete(d.index, e)
	for i, s := range d.subs {
		if s == e {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

func (d *dep) len() int {
	return len(d.subs)
}

// header is embedded by every trackable target. It binds the target to a
// runtime, holds its per-key deps and the cached proxies for it.
type header struct {
	rt   *Runtime
	deps map[string]*dep

	reactive *Proxy
	shallow  *Proxy
	readonly *Proxy

	// parents are the distinct (parent, key) edges under which this node
	// has been seen.
	parents []parentLink
	// rootRefs counts Prelink calls that declared this node a root.
	rootRefs int
	skip     bool
}

func (h *header) hdr() *header {
	return h
}

// Node is a live tree node: *Object or *Array.
type Node interface {
	hdr() *header
}

// track subscribes the active effect to (h, key).
func (rt *Runtime) track(h *header, key string) {
	e := rt.activeEffect
	if e == nil || rt.pauseDepth > 0 {
		return
	}
	if h.deps == nil {
		h.deps = make(map[string]*dep)
	}
	d := h.deps[key]
	if d == nil {
		d = newDep()
		h.deps[key] = d
	}
	if d.add(e) {
		e.deps = append(e.deps, d)
	}
}

// trigger notifies the subscribers of (h, key).
func (rt *Runtime) trigger(h *header, keys ...string) {
	if h.deps == nil {
		return
	}
	var deps []*dep
	for _, k := range keys {
		if d := h.deps[k]; d != nil {
			deps = append(deps, d)
		}
	}
	rt.triggerDeps(deps)
}

// triggerDeps runs each subscriber of deps once, in subscription order.
// Computed effects flip dirty immediately; everything else waits for the
// outermost batch to end, so an effect reached both directly and through a
// computed still runs once.
func (rt *Runtime) triggerDeps(deps []*dep) {
	if len(deps) == 0 {
		return
	}
	rt.StartBatch()
	defer rt.EndBatch()

	var effects []*Effect
	seen := make(map[*Effect]struct{})
	for _, d := range deps {
		for _, e := range d.subs {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			effects = append(effects, e)
		}
	}

	// Computeds first so their consumers see them dirty.
	for _, e := range effects {
		if e.computed {
			rt.schedule(e)
		}
	}
	for _, e := range effects {
		if !e.computed {
			rt.schedule(e)
		}
	}
}

func (rt *Runtime) schedule(e *Effect) {
	if !e.active || e.running {
		return
	}
	if !e.computed && rt.batchDepth > 0 {
		if _, ok := rt.batchSet[e]; !ok {
			rt.batchSet[e] = struct{}{}
			rt.batchQueue = append(rt.batchQueue, e)
		}
		return
	}
	e.trigger()
}
