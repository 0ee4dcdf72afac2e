package snapshot

import (
	"encoding/json"
	"strconv"
)

// EstimateSize returns a cheap structural estimate of the JSON encoding size
// of a plain value, in bytes. It ignores string escaping, so it can
// undercount strings with many special characters.
func EstimateSize(v any) int {
	switch x := v.(type) {
	case nil:
		return 4
	case bool:
		if x {
			return 4
		}
		return 5
	case string:
		return len(x) + 2
	case map[string]any:
		n := 2
		first := true
		for k, e := range x {
			if !first {
				n++
			}
			first = false
			n += len(k) + 3 + EstimateSize(e)
		}
		return n
	case []any:
		n := 2
		for i, e := range x {
			if i > 0 {
				n++
			}
			n += EstimateSize(e)
		}
		return n
	case int:
		return intWidth(int64(x))
	case int64:
		return intWidth(x)
	case int32:
		return intWidth(int64(x))
	case float64:
		var buf [32]byte
		return len(strconv.AppendFloat(buf[:0], x, 'g', -1, 64))
	}
	if f, ok := toFloat(v); ok {
		var buf [32]byte
		return len(strconv.AppendFloat(buf[:0], f, 'g', -1, 64))
	}
	return 16
}

func intWidth(n int64) int {
	w := 1
	if n < 0 {
		w++
		n = -n
	}
	for n >= 10 {
		n /= 10
		w++
	}
	return w
}

// MeasureSize returns the exact JSON encoding size of a plain value.
// Values that cannot be encoded report -1.
func MeasureSize(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return -1
	}
	return len(data)
}

// EntrySize estimates the bytes a single payload entry contributes.
func EntrySize(path string, v any) int {
	return len(path) + 3 + EstimateSize(v)
}
