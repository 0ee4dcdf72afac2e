package reactive

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Object is a raw live object node. Keys keep insertion order.
//
// Methods on Object read and write the raw node without tracking or
// triggering. Go through a Proxy for reactive access.
type Object struct {
	header
	keys   []string
	fields map[string]any
}

// Array is a raw live array node.
type Array struct {
	header
	items []any
}

// NewObject builds a live object from plain fields. Nested maps and slices
// become nodes.
func NewObject(fields map[string]any) *Object {
	o := &Object{fields: make(map[string]any, len(fields))}
	for _, k := range sortedKeys(fields) {
		o.keys = append(o.keys, k)
		o.fields[k] = normalize(fields[k])
	}
	return o
}

// NewArray builds a live array from plain items.
func NewArray(items ...any) *Array {
	a := &Array{items: make([]any, len(items))}
	for i, v := range items {
		a.items[i] = normalize(v)
	}
	return a
}

// FromPlain converts a plain value into its live form. Maps and slices
// become nodes, proxies unwrap to their raw node and scalars pass through.
func FromPlain(v any) any {
	return normalize(v)
}

// Get returns the raw value stored under key.
func (o *Object) Get(key string) (any, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.keys)
}

func (o *Object) set(key string, v any) (old any, had bool) {
	old, had = o.fields[key]
	if !had {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
	return old, had
}

func (o *Object) remove(key string) (old any, had bool) {
	old, had = o.fields[key]
	if !had {
		return nil, false
	}
	delete(o.fields, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return old, true
}

// Len returns the number of items.
func (a *Array) Len() int {
	return len(a.items)
}

// At returns the raw item at i, or nil when out of range.
func (a *Array) At(i int) any {
	if i < 0 || i >= len(a.items) {
		return nil
	}
	return a.items[i]
}

// MarkRaw flags a node so it is never wrapped: proxies hand it out raw and
// writes below it are invisible to the runtime.
func MarkRaw(n Node) Node {
	n.hdr().skip = true
	return n
}

// IsMarkedRaw reports whether MarkRaw was called on n.
func IsMarkedRaw(n Node) bool {
	return n.hdr().skip
}

// normalize converts v to the form stored inside live nodes.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	case *Proxy:
		return x.target
	case *Object, *Array:
		return v
	case map[string]any:
		return NewObject(x)
	case []any:
		return NewArray(x...)
	case []map[string]any:
		a := &Array{items: make([]any, len(x))}
		for i, m := range x {
			a.items[i] = NewObject(m)
		}
		return a
	case []string:
		a := &Array{items: make([]any, len(x))}
		for i, s := range x {
			a.items[i] = s
		}
		return a
	}
	return v
}

// indexKey is the dependency key of an array slot.
func indexKey(i int) string {
	return strconv.Itoa(i)
}

// parseIndex accepts a non-negative decimal array index.
func parseIndex(key string) (int, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	n, err := strconv.Atoi(key)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
