package reactive

import (
	"fmt"

	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/snapshot"
)

type proxyKind int

const (
	kindReactive proxyKind = iota
	kindShallow
	kindReadonly
)

// Proxy is the reactive view of a live node. Reads through a proxy are
// tracked; writes trigger subscribers, bump ancestor versions and emit
// mutation records.
//
// A deep proxy hands out nested nodes as proxies of the same kind. A
// shallow proxy hands them out raw. A readonly proxy panics on writes.
type Proxy struct {
	rt     *Runtime
	target Node
	obj    *Object
	arr    *Array
	kind   proxyKind
}

// Reactive returns the deep reactive proxy for v. v may be a plain
// map[string]any or []any, a raw node, or a proxy (returned unchanged).
// The same node always yields the same proxy.
func (rt *Runtime) Reactive(v any) *Proxy {
	return rt.wrap(v, kindReactive)
}

// ShallowReactive returns a proxy that tracks only the first level.
func (rt *Runtime) ShallowReactive(v any) *Proxy {
	return rt.wrap(v, kindShallow)
}

// Readonly returns a deep readonly proxy. Reads are still tracked.
func (rt *Runtime) Readonly(v any) *Proxy {
	return rt.wrap(v, kindReadonly)
}

func (rt *Runtime) wrap(v any, kind proxyKind) *Proxy {
	var n Node
	switch x := v.(type) {
	case *Proxy:
		if x.rt != rt {
			panic(errors.New("E103"))
		}
		if kind != kindReadonly || x.kind == kindReadonly {
			return x
		}
		n = x.target
	case *Object:
		n = x
	case *Array:
		n = x
	case map[string]any, []any:
		n = normalize(x).(Node)
	default:
		panic(errors.New("E104").WithDetail(fmt.Sprintf("cannot observe a value of type %T", v)))
	}

	h := n.hdr()
	if h.skip {
		panic(errors.New("E104").WithDetail("node is marked raw"))
	}
	rt.bind(h)

	slot := &h.reactive
	switch kind {
	case kindShallow:
		slot = &h.shallow
	case kindReadonly:
		slot = &h.readonly
	}
	if *slot != nil {
		return *slot
	}

	p := &Proxy{rt: rt, target: n, kind: kind}
	switch x := n.(type) {
	case *Object:
		p.obj = x
	case *Array:
		p.arr = x
	}
	*slot = p
	return p
}

// bind ties h to rt. A node observed by one runtime cannot be observed by
// another.
func (rt *Runtime) bind(h *header) {
	if h.rt == nil {
		h.rt = rt
		return
	}
	if h.rt != rt {
		panic(errors.New("E103"))
	}
}

// IsReactive reports whether v is a writable proxy.
func IsReactive(v any) bool {
	p, ok := v.(*Proxy)
	return ok && p.kind != kindReadonly
}

// IsReadonly reports whether v is a readonly proxy.
func IsReadonly(v any) bool {
	p, ok := v.(*Proxy)
	return ok && p.kind == kindReadonly
}

// IsShallow reports whether v is a shallow proxy.
func IsShallow(v any) bool {
	p, ok := v.(*Proxy)
	return ok && p.kind == kindShallow
}

// ToRaw returns the raw node behind a proxy, or v itself.
func ToRaw(v any) any {
	if p, ok := v.(*Proxy); ok {
		return p.target
	}
	return v
}

// Raw returns the node behind the proxy.
func (p *Proxy) Raw() Node {
	return p.target
}

// Runtime returns the runtime the proxy belongs to.
func (p *Proxy) Runtime() *Runtime {
	return p.rt
}

// IsArray reports whether the proxy wraps an *Array.
func (p *Proxy) IsArray() bool {
	return p.arr != nil
}

func (p *Proxy) String() string {
	if p.arr != nil {
		return fmt.Sprintf("Proxy(array len=%d)", len(p.arr.items))
	}
	return fmt.Sprintf("Proxy(object keys=%d)", len(p.obj.keys))
}

// Get returns the value under key. Nested nodes come back wrapped as
// proxies of the same kind, except through a shallow proxy. On an array
// proxy, key is a decimal index or "length".
func (p *Proxy) Get(key string) any {
	if p.arr != nil {
		if key == "length" {
			return p.Len()
		}
		if i, ok := parseIndex(key); ok {
			return p.At(i)
		}
		return nil
	}

	p.rt.track(&p.obj.header, key)
	v, ok := p.obj.fields[key]
	if !ok {
		return nil
	}
	return p.child(v, key)
}

func (p *Proxy) child(v any, key string) any {
	n, ok := v.(Node)
	if !ok {
		return v
	}
	link(n, p.target, key)
	if p.kind == kindShallow || n.hdr().skip {
		return n
	}
	return p.rt.wrap(n, p.kind)
}

// TrackVersion subscribes the active effect to every write at or below
// the proxy's node that is reachable through parent links.
func (p *Proxy) TrackVersion() {
	p.rt.track(p.target.hdr(), VersionKey)
}

// Child returns the nested proxy under key, or nil if the value is not a
// node.
func (p *Proxy) Child(key string) *Proxy {
	c, _ := p.Get(key).(*Proxy)
	return c
}

// Has reports whether key is present.
func (p *Proxy) Has(key string) bool {
	if p.arr != nil {
		i, ok := parseIndex(key)
		p.rt.track(&p.arr.header, LengthKey)
		return ok && i < len(p.arr.items)
	}
	p.rt.track(&p.obj.header, key)
	_, ok := p.obj.fields[key]
	return ok
}

// Keys returns the object keys in insertion order, or the array indices.
func (p *Proxy) Keys() []string {
	if p.arr != nil {
		p.rt.track(&p.arr.header, IterateKey)
		keys := make([]string, len(p.arr.items))
		for i := range keys {
			keys[i] = indexKey(i)
		}
		return keys
	}
	p.rt.track(&p.obj.header, IterateKey)
	return p.obj.Keys()
}

// Len returns the number of keys or items.
func (p *Proxy) Len() int {
	if p.arr != nil {
		p.rt.track(&p.arr.header, LengthKey)
		return len(p.arr.items)
	}
	p.rt.track(&p.obj.header, IterateKey)
	return len(p.obj.keys)
}

// Lookup resolves a path such as "a.list[0].name" through proxies, tracking
// every step.
func (p *Proxy) Lookup(path string) (any, bool) {
	segs, ok := snapshot.ParsePath(path)
	if !ok {
		segs = []snapshot.Segment{{Key: path}}
	}

	var cur any = p
	for _, seg := range segs {
		cp, ok := cur.(*Proxy)
		if !ok {
			return nil, false
		}
		switch {
		case seg.IsIndex && cp.arr != nil:
			if seg.Index >= cp.Len() {
				return nil, false
			}
			cur = cp.At(seg.Index)
		case !seg.IsIndex && cp.obj != nil:
			if !cp.Has(seg.Key) {
				return nil, false
			}
			cur = cp.Get(seg.Key)
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set writes key. Writing a value identical to the current one is a no-op.
// On an array proxy, key must be a decimal index or "length".
func (p *Proxy) Set(key string, v any) {
	p.checkWritable(key)
	if p.arr != nil {
		if key == "length" {
			n, ok := toInt(v)
			if !ok || n < 0 {
				panic(errors.New("E104").WithDetail(fmt.Sprintf("invalid array length %v", v)))
			}
			p.SetLen(n)
			return
		}
		i, ok := parseIndex(key)
		if !ok {
			panic(errors.New("E104").WithDetail(fmt.Sprintf("invalid array index %q", key)))
		}
		p.SetAt(i, v)
		return
	}

	nv := p.rt.accept(v)
	old, had := p.obj.fields[key]
	if had && snapshot.Identical(old, nv) {
		return
	}
	p.obj.set(key, nv)
	unlinkValue(old, p.obj, key)
	linkValue(nv, p.obj, key)

	if had {
		p.rt.notify(p.obj, key, KindProperty, OpSet, key)
	} else {
		p.rt.notify(p.obj, key, KindProperty, OpSet, key, IterateKey)
	}
}

// Delete removes key and reports whether it was present.
func (p *Proxy) Delete(key string) bool {
	p.checkWritable(key)
	if p.arr != nil {
		i, ok := parseIndex(key)
		if !ok || i >= len(p.arr.items) {
			return false
		}
		p.SetAt(i, nil)
		return true
	}

	old, had := p.obj.remove(key)
	if !had {
		return false
	}
	unlinkValue(old, p.obj, key)
	p.rt.notify(p.obj, key, KindProperty, OpDelete, key, IterateKey)
	return true
}

// At returns the item at i, or nil when out of range.
func (p *Proxy) At(i int) any {
	a := p.mustArray("At")
	p.rt.track(&a.header, indexKey(i))
	if i < 0 || i >= len(a.items) {
		return nil
	}
	return p.child(a.items[i], indexKey(i))
}

// Items returns every item, with nested nodes wrapped.
func (p *Proxy) Items() []any {
	a := p.mustArray("Items")
	p.rt.track(&a.header, IterateKey)
	p.rt.track(&a.header, LengthKey)
	out := make([]any, len(a.items))
	for i, v := range a.items {
		p.rt.track(&a.header, indexKey(i))
		out[i] = p.child(v, indexKey(i))
	}
	return out
}

// SetAt writes item i, growing the array with nils when i is past the end.
func (p *Proxy) SetAt(i int, v any) {
	a := p.mustArray("SetAt")
	p.checkWritable(indexKey(i))
	if i < 0 {
		panic(errors.New("E104").WithDetail(fmt.Sprintf("negative array index %d", i)))
	}

	nv := p.rt.accept(v)
	if i < len(a.items) {
		old := a.items[i]
		if snapshot.Identical(old, nv) {
			return
		}
		a.items[i] = nv
		unlinkValue(old, a, indexKey(i))
		linkValue(nv, a, indexKey(i))
		p.rt.notify(a, indexKey(i), KindArray, OpSet, indexKey(i))
		return
	}

	keys := []string{LengthKey, IterateKey}
	for j := len(a.items); j < i; j++ {
		a.items = append(a.items, nil)
		keys = append(keys, indexKey(j))
	}
	a.items = append(a.items, nv)
	linkValue(nv, a, indexKey(i))
	keys = append(keys, indexKey(i))
	p.rt.notify(a, indexKey(i), KindArray, OpSet, keys...)
}

// Push appends items and returns the new length.
func (p *Proxy) Push(items ...any) int {
	a := p.mustArray("Push")
	p.checkWritable("push")
	if len(items) == 0 {
		return len(a.items)
	}

	keys := []string{LengthKey, IterateKey}
	for _, v := range items {
		nv := p.rt.accept(v)
		i := len(a.items)
		a.items = append(a.items, nv)
		linkValue(nv, a, indexKey(i))
		keys = append(keys, indexKey(i))
	}
	p.rt.notify(a, "", KindArray, OpSet, keys...)
	return len(a.items)
}

// Pop removes and returns the last raw item, or nil when empty.
func (p *Proxy) Pop() any {
	a := p.mustArray("Pop")
	p.checkWritable("pop")
	if len(a.items) == 0 {
		return nil
	}
	i := len(a.items) - 1
	v := a.items[i]
	a.items[i] = nil
	a.items = a.items[:i]
	unlinkValue(v, a, indexKey(i))
	p.rt.notify(a, "", KindArray, OpDelete, LengthKey, IterateKey, indexKey(i))
	return v
}

// Insert inserts items before index i. i may equal the length.
func (p *Proxy) Insert(i int, items ...any) {
	a := p.mustArray("Insert")
	p.checkWritable("insert")
	if i < 0 || i > len(a.items) {
		panic(errors.New("E104").WithDetail(fmt.Sprintf("insert index %d out of range [0,%d]", i, len(a.items))))
	}
	if len(items) == 0 {
		return
	}

	before := append([]any(nil), a.items...)
	added := make([]any, len(items))
	for j, v := range items {
		added[j] = p.rt.accept(v)
	}
	next := make([]any, 0, len(a.items)+len(added))
	next = append(next, a.items[:i]...)
	next = append(next, added...)
	next = append(next, a.items[i:]...)
	a.items = next
	relink(a, before)

	keys := []string{LengthKey, IterateKey}
	for j := i; j < len(a.items); j++ {
		keys = append(keys, indexKey(j))
	}
	p.rt.notify(a, "", KindArray, OpSet, keys...)
}

// RemoveAt removes and returns the raw item at i.
func (p *Proxy) RemoveAt(i int) any {
	a := p.mustArray("RemoveAt")
	p.checkWritable("remove")
	if i < 0 || i >= len(a.items) {
		return nil
	}

	before := append([]any(nil), a.items...)
	v := a.items[i]
	a.items = append(a.items[:i:i], a.items[i+1:]...)
	relink(a, before)

	keys := []string{LengthKey, IterateKey}
	for j := i; j < len(before); j++ {
		keys = append(keys, indexKey(j))
	}
	p.rt.notify(a, "", KindArray, OpDelete, keys...)
	return v
}

// SetLen truncates the array or grows it with nils.
func (p *Proxy) SetLen(n int) {
	a := p.mustArray("SetLen")
	p.checkWritable("length")
	if n == len(a.items) {
		return
	}

	keys := []string{LengthKey, IterateKey}
	if n < len(a.items) {
		for j := n; j < len(a.items); j++ {
			unlinkValue(a.items[j], a, indexKey(j))
			keys = append(keys, indexKey(j))
		}
		a.items = a.items[:n:n]
	} else {
		for j := len(a.items); j < n; j++ {
			a.items = append(a.items, nil)
			keys = append(keys, indexKey(j))
		}
	}
	p.rt.notify(a, "", KindArray, OpSet, keys...)
}

func (p *Proxy) mustArray(op string) *Array {
	if p.arr == nil {
		panic(errors.New("E104").WithDetail(op + " called on an object proxy"))
	}
	return p.arr
}

func (p *Proxy) checkWritable(key string) {
	if p.kind == kindReadonly {
		panic(errors.New("E101").WithDetail(fmt.Sprintf("write to %q", key)))
	}
}

// accept normalizes a value about to be stored and checks it does not
// belong to another runtime.
func (rt *Runtime) accept(v any) any {
	nv := normalize(v)
	if n, ok := nv.(Node); ok {
		if owner := n.hdr().rt; owner != nil && owner != rt {
			panic(errors.New("E103"))
		}
	}
	return nv
}

// notify triggers keys on target, bumps the version of target and every
// ancestor, and records the write under each declared root.
func (rt *Runtime) notify(target Node, key string, kind MutationKind, op MutationOp, keys ...string) {
	h := target.hdr()
	var deps []*dep
	if h.deps != nil {
		for _, k := range keys {
			if d := h.deps[k]; d != nil {
				deps = append(deps, d)
			}
		}
	}

	versions, roots := ancestry(target)
	deps = append(deps, versions...)

	rt.record(target, key, kind, op, roots)
	rt.triggerDeps(deps)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
