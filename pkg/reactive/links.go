package reactive

import (
	"strings"

	"github.com/vango-dev/viewstate/pkg/snapshot"
)

type parentLink struct {
	parent Node
	key    string
}

// PrelinkOptions bounds the eager parent-link walk done for a root.
type PrelinkOptions struct {
	MaxDepth int
	MaxKeys  int
}

// DefaultPrelinkOptions returns the default prelink bounds.
func DefaultPrelinkOptions() PrelinkOptions {
	return PrelinkOptions{MaxDepth: 8, MaxKeys: 2000}
}

func link(child, parent Node, key string) {
	h := child.hdr()
	for _, l := range h.parents {
		if l.parent == parent && l.key == key {
			return
		}
	}
	h.parents = append(h.parents, parentLink{parent: parent, key: key})
}

func unlink(child, parent Node, key string) {
	h := child.hdr()
	for i, l := range h.parents {
		if l.parent == parent && l.key == key {
			h.parents = append(h.parents[:i], h.parents[i+1:]...)
			return
		}
	}
}

func linkValue(v any, parent Node, key string) {
	if n, ok := v.(Node); ok {
		link(n, parent, key)
	}
}

func unlinkValue(v any, parent Node, key string) {
	if n, ok := v.(Node); ok {
		unlink(n, parent, key)
	}
}

// relink rebuilds the index edges of an array after a structural change.
func relink(a *Array, before []any) {
	for i, v := range before {
		unlinkValue(v, a, indexKey(i))
	}
	for i, v := range a.items {
		linkValue(v, a, indexKey(i))
	}
}

// Prelink declares root as a mutation root and eagerly links the object
// subtree below it, so writes to nodes that were never read through the
// root still resolve to a path. Arrays are linked but not expanded. The
// returned function releases the root declaration.
func (rt *Runtime) Prelink(root *Object, opts PrelinkOptions) (release func()) {
	rt.bind(&root.header)
	root.rootRefs++

	type item struct {
		obj   *Object
		depth int
	}
	queue := []item{{root, 0}}
	seen := map[*Object]struct{}{root: {}}
	keys := 0

walk:
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		for _, k := range it.obj.keys {
			keys++
			if opts.MaxKeys > 0 && keys > opts.MaxKeys {
				break walk
			}
			v := it.obj.fields[k]
			n, ok := v.(Node)
			if !ok || n.hdr().skip {
				continue
			}
			link(n, it.obj, k)
			child, ok := n.(*Object)
			if !ok {
				continue
			}
			if _, dup := seen[child]; dup {
				continue
			}
			if opts.MaxDepth > 0 && it.depth+1 >= opts.MaxDepth {
				continue
			}
			seen[child] = struct{}{}
			queue = append(queue, item{child, it.depth + 1})
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		root.rootRefs--
	}
}

// IsRoot reports whether n is currently declared as a mutation root.
func IsRoot(n Node) bool {
	return n.hdr().rootRefs > 0
}

// ancestry walks from n up through every parent edge. It returns the
// version deps of n and all its ancestors, and the declared roots among
// them.
func ancestry(n Node) (deps []*dep, roots []*Object) {
	seen := map[Node]struct{}{n: {}}
	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		h := cur.hdr()
		if d := h.deps[VersionKey]; d != nil {
			deps = append(deps, d)
		}
		if obj, ok := cur.(*Object); ok && h.rootRefs > 0 {
			roots = append(roots, obj)
		}
		for _, l := range h.parents {
			if _, ok := seen[l.parent]; ok {
				continue
			}
			seen[l.parent] = struct{}{}
			stack = append(stack, l.parent)
		}
	}
	return deps, roots
}

// resolvePath returns the unique path from root to n. It fails when some
// node on the way has more than one parent edge, no parent edge, or a key
// that cannot be addressed in a path.
func resolvePath(n Node, root *Object) (string, bool) {
	if n == Node(root) {
		return "", true
	}

	var segs []snapshot.Segment
	cur := n
	for steps := 0; cur != Node(root); steps++ {
		ps := cur.hdr().parents
		if len(ps) != 1 || steps > maxPathDepth {
			return "", false
		}
		l := ps[0]
		if _, isArr := l.parent.(*Array); isArr {
			i, ok := parseIndex(l.key)
			if !ok {
				return "", false
			}
			segs = append(segs, snapshot.Segment{Index: i, IsIndex: true})
		} else {
			if !snapshot.SafeKey(l.key) {
				return "", false
			}
			segs = append(segs, snapshot.Segment{Key: l.key})
		}
		cur = l.parent
	}

	var b strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		if !seg.IsIndex && b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String(), true
}

const maxPathDepth = 1024

// topKeys returns the root keys through which n is reachable from root.
func topKeys(n Node, root *Object) []string {
	var keys []string
	have := map[string]struct{}{}
	seen := map[Node]struct{}{n: {}}
	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, l := range cur.hdr().parents {
			if l.parent == Node(root) {
				if _, ok := have[l.key]; !ok {
					have[l.key] = struct{}{}
					keys = append(keys, l.key)
				}
				continue
			}
			if _, ok := seen[l.parent]; ok {
				continue
			}
			seen[l.parent] = struct{}{}
			stack = append(stack, l.parent)
		}
	}
	return keys
}
