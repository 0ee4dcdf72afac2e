package snapshot

// Clone deep-copies a plain value. Scalars are returned as is.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Clone(e)
		}
		return out
	}
	return v
}

// CloneMap deep-copies a top-level snapshot.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return Clone(m).(map[string]any)
}

// Get returns the plain value at path within a snapshot.
func Get(snap map[string]any, path string) (any, bool) {
	segs, ok := ParsePath(path)
	if !ok {
		v, ok := snap[path]
		return v, ok
	}

	var cur any = snap
	for _, seg := range segs {
		if seg.IsIndex {
			arr, ok := cur.([]any)
			if !ok || seg.Index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.Index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg.Key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
