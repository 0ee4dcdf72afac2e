package snapshot

import (
	"strconv"
	"strings"
)

// Segment is one step of a payload path: an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// String returns the segment in path syntax, without a leading separator.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// SafeKey reports whether key can appear as an object segment of a path.
// Keys containing separators cannot be addressed and force their parent to
// be replaced whole.
func SafeKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, ".[]")
}

// JoinKey appends an object key to a path.
func JoinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// JoinIndex appends an array index to a path.
func JoinIndex(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

// ParsePath splits a path such as "list[0].name" into segments. It returns
// false if the path is malformed.
func ParsePath(path string) ([]Segment, bool) {
	if path == "" {
		return nil, false
	}

	var segs []Segment
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			if len(segs) == 0 || i == len(path)-1 {
				return nil, false
			}
			i++
			if path[i] == '.' || path[i] == '[' {
				return nil, false
			}
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 || len(segs) == 0 {
				return nil, false
			}
			n, err := strconv.Atoi(path[i+1 : i+end])
			if err != nil || n < 0 {
				return nil, false
			}
			segs = append(segs, Segment{Index: n, IsIndex: true})
			i += end + 1
			continue
		}

		j := i
		for j < len(path) && path[j] != '.' && path[j] != '[' {
			if path[j] == ']' {
				return nil, false
			}
			j++
		}
		if j == i {
			return nil, false
		}
		segs = append(segs, Segment{Key: path[i:j]})
		i = j
	}
	return segs, true
}

// TopKey returns the first segment of a path.
func TopKey(path string) string {
	if i := strings.IndexAny(path, ".["); i >= 0 {
		return path[:i]
	}
	return path
}

// ParentPath returns the path without its last segment. The second result
// is false for top-level keys.
func ParentPath(path string) (string, bool) {
	i := strings.LastIndexAny(path, ".[")
	if i <= 0 {
		return "", false
	}
	return path[:i], true
}

// IsDescendant reports whether path lies strictly below ancestor.
func IsDescendant(path, ancestor string) bool {
	if len(path) <= len(ancestor) || !strings.HasPrefix(path, ancestor) {
		return false
	}
	c := path[len(ancestor)]
	return c == '.' || c == '['
}

// Depth returns the number of segments in a path.
func Depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".") + strings.Count(path, "[") + 1
}
