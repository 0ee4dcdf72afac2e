package snapshot

// Diff compares two top-level snapshots and returns the minimal payload that
// turns prev into next.
//
// Equal subtrees contribute nothing. Differing objects are descended key by
// key, so only changed leaves appear (as dotted paths); keys removed in next
// map to nil. Arrays are atomic: any difference emits the whole new array.
// A nil value and a missing key are equivalent.
func Diff(prev, next map[string]any) map[string]any {
	out := make(map[string]any)

	for k, nv := range next {
		pv, had := prev[k]
		if !had && nv == nil {
			continue
		}
		if had && Equal(pv, nv) {
			continue
		}
		diffValue(k, pv, nv, out)
	}

	for k, pv := range prev {
		if pv == nil {
			continue
		}
		if nv, ok := next[k]; !ok || nv == nil {
			out[k] = nil
		}
	}

	return out
}

// diffValue records the difference between two unequal values at path.
func diffValue(path string, prev, next any, out map[string]any) {
	pm, pok := prev.(map[string]any)
	nm, nok := next.(map[string]any)
	if !pok || !nok || !addressable(pm, nm) {
		out[path] = Clone(next)
		return
	}

	for k, nv := range nm {
		pv, had := pm[k]
		if !had && nv == nil {
			continue
		}
		if had && Equal(pv, nv) {
			continue
		}
		diffValue(JoinKey(path, k), pv, nv, out)
	}

	for k, pv := range pm {
		if pv == nil {
			continue
		}
		if nv, ok := nm[k]; !ok || nv == nil {
			out[JoinKey(path, k)] = nil
		}
	}
}

// addressable reports whether every key of both objects can be expressed as
// a path segment.
func addressable(a, b map[string]any) bool {
	for k := range a {
		if !SafeKey(k) {
			return false
		}
	}
	for k := range b {
		if !SafeKey(k) {
			return false
		}
	}
	return true
}
