package reactive

import (
	"github.com/vango-dev/viewstate/pkg/snapshot"
)

// MutationKind tells whether a record describes an object property write
// or an array mutation.
type MutationKind int

const (
	KindProperty MutationKind = iota
	KindArray
)

func (k MutationKind) String() string {
	if k == KindArray {
		return "array"
	}
	return "property"
}

// MutationOp is the operation a record describes.
type MutationOp int

const (
	OpSet MutationOp = iota
	OpDelete
)

func (o MutationOp) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "set"
}

// MutationRecord describes one write below a declared root.
//
// When HasPath is true, Path addresses the smallest subtree that changed:
// the written property, or the whole array for array mutations. When the
// write cannot be expressed as a single path (the node is reachable under
// several parents, or a key is unaddressable), HasPath is false and
// TopKeys lists the root fields that may have changed. TopKeys is empty
// when the node is no longer reachable from the root.
type MutationRecord struct {
	Root    *Object
	Kind    MutationKind
	Op      MutationOp
	Path    string
	HasPath bool
	TopKeys []string
}

type recorder struct {
	id uint64
	fn func(MutationRecord)
}

// OnMutation registers fn to receive a record for every write below any
// declared root. Records are delivered synchronously, before effects run.
// Panics in fn are logged and swallowed.
func (rt *Runtime) OnMutation(fn func(MutationRecord)) (unsubscribe func()) {
	r := &recorder{id: nextID(), fn: fn}
	rt.recorders = append(rt.recorders, r)
	return func() {
		for i, x := range rt.recorders {
			if x == r {
				rt.recorders = append(rt.recorders[:i], rt.recorders[i+1:]...)
				return
			}
		}
	}
}

// record emits records for a write to target under each root.
func (rt *Runtime) record(target Node, key string, kind MutationKind, op MutationOp, roots []*Object) {
	if len(rt.recorders) == 0 || len(roots) == 0 {
		return
	}
	for _, root := range roots {
		rec := buildRecord(target, key, kind, op, root)
		recorders := append([]*recorder(nil), rt.recorders...)
		for _, r := range recorders {
			rt.deliver(r, rec)
		}
	}
}

func buildRecord(target Node, key string, kind MutationKind, op MutationOp, root *Object) MutationRecord {
	rec := MutationRecord{Root: root, Kind: kind, Op: op}

	base, ok := resolvePath(target, root)
	switch {
	case !ok:
		rec.TopKeys = topKeys(target, root)
		return rec
	case kind == KindArray:
		rec.Path, rec.HasPath = base, base != ""
	case snapshot.SafeKey(key):
		rec.Path, rec.HasPath = snapshot.JoinKey(base, key), true
	case base != "":
		// Unaddressable key: the owning object is replaced whole.
		rec.Path, rec.HasPath, rec.Op = base, true, OpSet
	default:
		rec.TopKeys = []string{key}
		return rec
	}

	if rec.HasPath {
		rec.TopKeys = []string{snapshot.TopKey(rec.Path)}
	}
	return rec
}

func (rt *Runtime) deliver(r *recorder, rec MutationRecord) {
	defer func() {
		if p := recover(); p != nil {
			rt.logger.Warn("mutation recorder panic", "recorder", r.id, "path", rec.Path, "panic", p)
		}
	}()
	r.fn(rec)
}
