package snapshot

import (
	"sort"
)

// Apply writes a payload into a snapshot ledger in place, the way a view
// layer applies a setData call. Paths are applied shallowest first so a
// parent replacement never clobbers a deeper entry of the same payload.
// A nil value deletes the key (or clears the array slot). Missing
// intermediate containers are created; an index past the end of an array
// extends it with nils.
func Apply(ledger map[string]any, payload map[string]any) {
	paths := make([]string, 0, len(payload))
	for p := range payload {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := Depth(paths[i]), Depth(paths[j])
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})

	for _, p := range paths {
		applyPath(ledger, p, Clone(payload[p]))
	}
}

func applyPath(ledger map[string]any, path string, value any) {
	segs, ok := ParsePath(path)
	if !ok {
		setKey(ledger, path, value)
		return
	}
	if len(segs) == 1 {
		setKey(ledger, segs[0].Key, value)
		return
	}

	top := segs[0].Key
	ledger[top] = applySegments(ledger[top], segs[1:], value)
}

// applySegments returns container with value written at segs, creating or
// replacing containers as needed.
func applySegments(container any, segs []Segment, value any) any {
	seg := segs[0]
	last := len(segs) == 1

	if seg.IsIndex {
		arr, ok := container.([]any)
		if !ok {
			arr = nil
		}
		if last && value == nil {
			if seg.Index < len(arr) {
				arr[seg.Index] = nil
			}
			if arr == nil {
				return []any{}
			}
			return arr
		}
		for len(arr) <= seg.Index {
			arr = append(arr, nil)
		}
		if last {
			arr[seg.Index] = value
		} else {
			arr[seg.Index] = applySegments(arr[seg.Index], segs[1:], value)
		}
		return arr
	}

	obj, ok := container.(map[string]any)
	if !ok {
		obj = make(map[string]any)
	}
	if last {
		setKey(obj, seg.Key, value)
	} else {
		obj[seg.Key] = applySegments(obj[seg.Key], segs[1:], value)
	}
	return obj
}

func setKey(m map[string]any, key string, value any) {
	if value == nil {
		delete(m, key)
		return
	}
	m[key] = value
}
