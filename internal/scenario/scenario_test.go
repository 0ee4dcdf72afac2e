package scenario

import (
	"context"
	goerrors "errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/binding"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

func TestLoadTodoScenario(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "todo.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if s.Name != "todo list" {
		t.Errorf("Name = %q", s.Name)
	}
	if s.Binding.MergeSibling.Threshold != 3 {
		t.Errorf("MergeSibling.Threshold = %d, want 3", s.Binding.MergeSibling.Threshold)
	}
	if s.Binding.MaxPatchKeys != 200 {
		t.Errorf("defaults not applied: MaxPatchKeys = %d", s.Binding.MaxPatchKeys)
	}
	if len(s.Steps) != 14 {
		t.Errorf("len(Steps) = %d, want 14", len(s.Steps))
	}
}

func TestCompareTodoScenario(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "todo.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	diff, patch, err := Compare(context.Background(), s, RunOptions{})
	if err != nil {
		t.Fatalf("Compare error: %v", err)
	}

	want := map[string]any{
		"user":    map[string]any{"name": "linus"},
		"todos":   []any{map[string]any{"title": "first", "done": true}},
		"total":   1,
		"profile": map[string]any{"name": "linus"},
	}
	for _, r := range []*Result{diff, patch} {
		if !reflect.DeepEqual(r.Remote, want) {
			t.Errorf("%s remote = %v, want %v", r.Strategy, r.Remote, want)
		}
	}

	for _, d := range patch.Debug[1:] {
		if d.Mode != string(binding.StrategyPatch) {
			t.Errorf("patch run fell back: %+v", d)
		}
	}
	if len(patch.Fallbacks()) != 0 {
		t.Errorf("Fallbacks = %v", patch.Fallbacks())
	}
}

func TestRunRecordsPayloads(t *testing.T) {
	s, err := Parse([]byte(`
initial:
  a: {b: 1, c: 1}
steps:
  - {op: set, path: a.b, value: 2}
`))
	if err != nil {
		t.Fatal(err)
	}

	for _, strategy := range []binding.Strategy{binding.StrategyDiff, binding.StrategyPatch} {
		res, err := Run(context.Background(), s, strategy, RunOptions{})
		if err != nil {
			t.Fatalf("%s: %v", strategy, err)
		}
		if len(res.Payloads) != 2 {
			t.Fatalf("%s: payloads = %v", strategy, res.Payloads)
		}
		if want := map[string]any{"a.b": 2}; !reflect.DeepEqual(res.Payloads[1], want) {
			t.Errorf("%s: payload = %v, want %v", strategy, res.Payloads[1], want)
		}
	}
}

func TestRunReportsFallbacks(t *testing.T) {
	s, err := Parse([]byte(`
initial: {x: 1, y: 1}
binding:
  maxPatchKeys: 1
steps:
  - {op: set, path: x, value: 2}
  - {op: set, path: y, value: 2}
`))
	if err != nil {
		t.Fatal(err)
	}

	var seen []telemetry.DebugInfo
	res, err := Run(context.Background(), s, binding.StrategyPatch, RunOptions{
		Debug: func(info telemetry.DebugInfo) { seen = append(seen, info) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Fallbacks(); got[telemetry.ReasonMaxPatchKeys] != 1 {
		t.Errorf("Fallbacks = %v", got)
	}
	if len(seen) != len(res.Debug) {
		t.Errorf("external hook saw %d events, result has %d", len(seen), len(res.Debug))
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown op", "steps: [{op: explode, path: a}]"},
		{"missing path", "steps: [{op: set, value: 1}]"},
		{"malformed path", "steps: [{op: set, path: 'a..b', value: 1}]"},
		{"nested batch", "steps: [{op: batch, steps: [{op: nope}]}]"},
		{"computed func", "computed: [{name: n, path: a, func: sum}]"},
		{"computed name", "computed: [{name: 'a.b', path: a}]"},
		{"not yaml", "steps: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !goerrors.Is(err, errors.ErrScenarioInvalid) {
				t.Errorf("Parse = %v, want ErrScenarioInvalid", err)
			}
		})
	}

	_, err := Parse([]byte("binding: {strategy: stream}"))
	if !goerrors.Is(err, errors.ErrConfigInvalid) {
		t.Errorf("bad binding options = %v, want ErrConfigInvalid", err)
	}
}

func TestRunStepErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing container", "initial: {}\nsteps: [{op: set, path: a.b, value: 1}]"},
		{"push on object", "initial: {a: {}}\nsteps: [{op: push, path: a, values: [1]}]"},
		{"delete array element", "initial: {a: [1]}\nsteps: [{op: delete, path: 'a[0]'}]"},
		{"unsupported value", "initial: {a: [1]}\nsteps: [{op: setLen, path: a, index: 0}, {op: set, path: 'a.x', value: 1}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := Run(context.Background(), s, binding.StrategyPatch, RunOptions{}); !goerrors.Is(err, errors.ErrScenarioInvalid) {
				t.Errorf("Run = %v, want ErrScenarioInvalid", err)
			}
		})
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	s, err := Parse([]byte("initial: {a: 1}\nsteps: [{op: set, path: a, value: 2}]"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, s, binding.StrategyDiff, RunOptions{}); !goerrors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestKeys(t *testing.T) {
	got := Keys(map[string]any{"b": 1, "a": 2})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Keys = %v", got)
	}
}
