package snapshot

import (
	"math"
	"reflect"
	"testing"
)

func TestDiffIdenticalIsEmpty(t *testing.T) {
	a := map[string]any{
		"a":    map[string]any{"b": 1, "c": []any{1, 2, map[string]any{"x": "y"}}},
		"name": "ada",
		"ok":   true,
	}
	if got := Diff(a, Clone(a).(map[string]any)); len(got) != 0 {
		t.Errorf("Diff(a, a) = %v, want empty", got)
	}
}

func TestDiffSingleNestedLeaf(t *testing.T) {
	prev := map[string]any{"a": map[string]any{"b": 1, "c": 1}}
	next := map[string]any{"a": map[string]any{"b": 2, "c": 1}}

	got := Diff(prev, next)
	want := map[string]any{"a.b": 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Diff = %v, want %v", got, want)
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		prev map[string]any
		next map[string]any
		want map[string]any
	}{
		{
			name: "added top-level key",
			prev: map[string]any{},
			next: map[string]any{"a": 1},
			want: map[string]any{"a": 1},
		},
		{
			name: "removed top-level key",
			prev: map[string]any{"a": 1, "b": 2},
			next: map[string]any{"b": 2},
			want: map[string]any{"a": nil},
		},
		{
			name: "removed nested key",
			prev: map[string]any{"a": map[string]any{"b": 1, "c": 2}},
			next: map[string]any{"a": map[string]any{"c": 2}},
			want: map[string]any{"a.b": nil},
		},
		{
			name: "array is atomic",
			prev: map[string]any{"list": []any{1, 2, 3}},
			next: map[string]any{"list": []any{1, 2, 4}},
			want: map[string]any{"list": []any{1, 2, 4}},
		},
		{
			name: "type change replaces",
			prev: map[string]any{"a": map[string]any{"b": 1}},
			next: map[string]any{"a": "flat"},
			want: map[string]any{"a": "flat"},
		},
		{
			name: "unaddressable key replaces parent",
			prev: map[string]any{"a": map[string]any{"x.y": 1}},
			next: map[string]any{"a": map[string]any{"x.y": 2}},
			want: map[string]any{"a": map[string]any{"x.y": 2}},
		},
		{
			name: "nil and missing are equivalent",
			prev: map[string]any{"a": map[string]any{"b": 1}},
			next: map[string]any{"a": map[string]any{"b": 1, "c": nil}, "d": nil},
			want: map[string]any{},
		},
		{
			name: "numbers compare across go types",
			prev: map[string]any{"n": 1},
			next: map[string]any{"n": 1.0},
			want: map[string]any{},
		},
		{
			name: "deep sibling changes",
			prev: map[string]any{"a": map[string]any{"b": map[string]any{"c": 1, "d": 1}, "e": 1}},
			next: map[string]any{"a": map[string]any{"b": map[string]any{"c": 2, "d": 1}, "e": 3}},
			want: map[string]any{"a.b.c": 2, "a.e": 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.prev, tt.next)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiffThenApplyConverges(t *testing.T) {
	prev := map[string]any{
		"a":    map[string]any{"b": 1, "c": map[string]any{"d": []any{1}}},
		"gone": "x",
	}
	next := map[string]any{
		"a":   map[string]any{"b": 2, "c": map[string]any{"d": []any{1, 2}, "e": true}},
		"new": map[string]any{"k": "v"},
	}

	ledger := CloneMap(prev)
	Apply(ledger, Diff(prev, next))

	if !Equal(ledger, next) {
		t.Errorf("ledger = %v, want %v", ledger, next)
	}
}

func TestApply(t *testing.T) {
	ledger := map[string]any{
		"a":    map[string]any{"b": 1},
		"list": []any{map[string]any{"name": "x"}},
	}

	Apply(ledger, map[string]any{
		"a.b":          2,
		"a.c.d":        "deep",
		"list[0].name": "y",
		"list[2]":      "z",
		"x":            nil,
	})

	want := map[string]any{
		"a":    map[string]any{"b": 2, "c": map[string]any{"d": "deep"}},
		"list": []any{map[string]any{"name": "y"}, nil, "z"},
	}
	if !reflect.DeepEqual(ledger, want) {
		t.Errorf("ledger = %v, want %v", ledger, want)
	}
}

func TestApplyParentBeforeChild(t *testing.T) {
	ledger := map[string]any{}
	Apply(ledger, map[string]any{
		"a.b": 2,
		"a":   map[string]any{"b": 1, "c": 1},
	})

	want := map[string]any{"a": map[string]any{"b": 2, "c": 1}}
	if !reflect.DeepEqual(ledger, want) {
		t.Errorf("ledger = %v, want %v", ledger, want)
	}
}

func TestApplyDoesNotAlias(t *testing.T) {
	value := map[string]any{"k": 1}
	ledger := map[string]any{}
	Apply(ledger, map[string]any{"a": value})
	value["k"] = 2

	if got, _ := Get(ledger, "a.k"); got != 1 {
		t.Errorf("ledger aliased payload value: a.k = %v", got)
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path string
		want []Segment
		ok   bool
	}{
		{"a", []Segment{{Key: "a"}}, true},
		{"a.b", []Segment{{Key: "a"}, {Key: "b"}}, true},
		{"list[0].name", []Segment{{Key: "list"}, {Index: 0, IsIndex: true}, {Key: "name"}}, true},
		{"m[1][2]", []Segment{{Key: "m"}, {Index: 1, IsIndex: true}, {Index: 2, IsIndex: true}}, true},
		{"", nil, false},
		{".a", nil, false},
		{"a.", nil, false},
		{"a..b", nil, false},
		{"[0]", nil, false},
		{"a[x]", nil, false},
		{"a[-1]", nil, false},
		{"a]", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := ParsePath(tt.path)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if tt.ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("segments = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	if !IsDescendant("a.b", "a") || !IsDescendant("a[0]", "a") {
		t.Error("expected descendants")
	}
	if IsDescendant("ab", "a") || IsDescendant("a", "a") {
		t.Error("unexpected descendant")
	}
	if p, ok := ParentPath("a.b[3]"); !ok || p != "a.b" {
		t.Errorf("ParentPath = %q, %v", p, ok)
	}
	if _, ok := ParentPath("a"); ok {
		t.Error("top-level key has no parent")
	}
	if TopKey("list[0].x") != "list" || TopKey("a.b") != "a" || TopKey("a") != "a" {
		t.Error("TopKey mismatch")
	}
	if JoinIndex(JoinKey("a", "b"), 2) != "a.b[2]" {
		t.Error("Join mismatch")
	}
	if SafeKey("a.b") || SafeKey("x[") || SafeKey("") || !SafeKey("ok") {
		t.Error("SafeKey mismatch")
	}
}

func TestEqualBudget(t *testing.T) {
	deep := map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}}}
	if !EqualBudget(deep, Clone(deep), Budget{MaxDepth: 5}) {
		t.Error("expected equal within budget")
	}
	if EqualBudget(deep, Clone(deep), Budget{MaxDepth: 1}) {
		t.Error("expected not equal once depth budget is exhausted")
	}

	wide := map[string]any{}
	for _, k := range []string{"a", "b", "c", "d"} {
		wide[k] = 1
	}
	if EqualBudget(wide, Clone(wide), Budget{MaxKeys: 2}) {
		t.Error("expected not equal once key budget is exhausted")
	}
}

func TestShallowEqual(t *testing.T) {
	inner := map[string]any{"x": 1}
	a := map[string]any{"inner": inner, "n": 1}
	b := map[string]any{"inner": inner, "n": 1}
	if !ShallowEqual(a, b) {
		t.Error("same nested identity should be shallow equal")
	}

	c := map[string]any{"inner": map[string]any{"x": 1}, "n": 1}
	if ShallowEqual(a, c) {
		t.Error("different nested identity should not be shallow equal")
	}
}

func TestScalarEqualNaN(t *testing.T) {
	if !Equal(math.NaN(), math.NaN()) {
		t.Error("NaN should equal NaN")
	}
	if Equal("1", 1) {
		t.Error("string and number differ")
	}
}

func TestEstimateSizeTracksMeasure(t *testing.T) {
	values := []any{
		nil,
		true,
		"hello",
		42,
		-7,
		3.25,
		map[string]any{"a": 1, "b": []any{"x", false}},
		[]any{map[string]any{"k": "v"}, 10},
	}
	for _, v := range values {
		est, exact := EstimateSize(v), MeasureSize(v)
		if est != exact {
			t.Errorf("EstimateSize(%v) = %d, MeasureSize = %d", v, est, exact)
		}
	}
}

func TestGet(t *testing.T) {
	snap := map[string]any{"a": map[string]any{"list": []any{1, map[string]any{"x": "y"}}}}
	if v, ok := Get(snap, "a.list[1].x"); !ok || v != "y" {
		t.Errorf("Get = %v, %v", v, ok)
	}
	if _, ok := Get(snap, "a.list[5]"); ok {
		t.Error("out of range index should not resolve")
	}
}
