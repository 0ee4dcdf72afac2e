package bindtest

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-dev/viewstate/pkg/binding"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

func TestHarnessPatchFlow(t *testing.T) {
	h := New().
		WithState(map[string]any{"user": map[string]any{"name": "ada"}, "n": 0}).
		Build(t)

	ExpectFlushes(t, h, 1)
	ExpectMode(t, h, binding.StrategyDiff, telemetry.ReasonInitial)

	h.State.Child("user").Set("name", "grace")
	h.State.Set("n", 1)
	h.Tick()

	ExpectFlushes(t, h, 2)
	ExpectMode(t, h, binding.StrategyPatch, "")
	ExpectPayload(t, h, map[string]any{"user.name": "grace", "n": 1})
	ExpectConverged(t, h)
}

func TestHarnessDiffStrategy(t *testing.T) {
	h := New().
		WithState(map[string]any{"a": map[string]any{"b": 1}}).
		WithStrategy(binding.StrategyDiff).
		Build(t)

	h.Batch(func() {
		h.State.Child("a").Set("b", 2)
		h.State.Child("a").Set("b", 3)
	})
	h.Tick()

	ExpectFlushes(t, h, 2)
	ExpectMode(t, h, binding.StrategyDiff, telemetry.ReasonStrategy)
	ExpectPayload(t, h, map[string]any{"a.b": 3})
	ExpectConverged(t, h)
}

func TestHarnessUnmounted(t *testing.T) {
	h := New().WithState(map[string]any{"x": 1}).Unmounted().Build(t)
	ExpectFlushes(t, h, 0)
	if h.Last() != nil {
		t.Errorf("Last = %v before mount", h.Last())
	}
	if len(h.Debug()) != 0 {
		t.Error("debug recorded before mount")
	}
}

func TestRecorderReturnsErr(t *testing.T) {
	r := NewRecorder()
	r.Err = errors.New("view gone")
	if err := r.SetData(context.Background(), map[string]any{"a": 1}); err == nil {
		t.Fatal("SetData error = nil")
	}
	if got := r.Remote()["a"]; got != 1 {
		t.Errorf("payload not applied before error: remote a = %v", got)
	}

	p := r.Payloads()
	p[0]["a"] = 2
	if r.Payloads()[0]["a"] != 1 {
		t.Error("Payloads exposes internal maps")
	}
}

type fakeTB struct {
	testing.TB
	failed bool
}

func (f *fakeTB) Helper() {}
func (f *fakeTB) Errorf(string, ...any) {
	f.failed = true
}

func TestExpectationsReportMismatch(t *testing.T) {
	h := New().WithState(map[string]any{"x": 1}).Build(t)

	ft := &fakeTB{TB: t}
	ExpectPayload(ft, h, map[string]any{"x": 2})
	if !ft.failed {
		t.Error("ExpectPayload did not fail on mismatch")
	}

	ft = &fakeTB{TB: t}
	ExpectFlushes(ft, h, 5)
	if !ft.failed {
		t.Error("ExpectFlushes did not fail on mismatch")
	}

	ft = &fakeTB{TB: t}
	ExpectMode(ft, h, binding.StrategyPatch, "")
	if !ft.failed {
		t.Error("ExpectMode did not fail on mismatch")
	}
}
