package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestMetricsRecordFlushes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))

	m.ObserveFlush("patch", "", 3, 120)
	m.ObserveFlush("diff", ReasonMaxPatchKeys, 10, 900)
	m.ObserveFallback(ReasonMaxPatchKeys)
	m.AdapterError()
	m.MergedSiblings(2)
	m.ComputedDirty(0)
	m.BindingMounted(1)

	if got := testutil.ToFloat64(m.flushes.WithLabelValues("patch", "")); got != 1 {
		t.Errorf("patch flushes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fallbacks.WithLabelValues(ReasonMaxPatchKeys)); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.adapterErrors); got != 1 {
		t.Errorf("adapter errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.mergedSiblings); got != 2 {
		t.Errorf("merged siblings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.computedDirty); got != 0 {
		t.Errorf("computed dirty = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.bindings); got != 1 {
		t.Errorf("bindings = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.payloadBytes); n != 1 {
		t.Errorf("payload bytes series = %d, want 1", n)
	}
}

func TestNilTelemetryIsDisabled(t *testing.T) {
	var m *Metrics
	m.ObserveFlush("diff", "", 1, 1)
	m.ObserveFallback("x")
	m.AdapterError()
	m.BindingMounted(1)

	var tr *Tracer
	ctx, span := tr.StartFlush(context.Background(), "b", "diff")
	if ctx == nil || span != nil {
		t.Fatal("nil tracer should pass the context through")
	}
	span.End("diff", "", 0, 0, nil)

	var h *Hooks
	h.Emit(DebugInfo{})
	if h.Len() != 0 {
		t.Error("nil hooks should be empty")
	}
}

func TestTracerFlushSpan(t *testing.T) {
	tr := NewTracerFrom(noop.NewTracerProvider(), "")
	ctx, span := tr.StartFlush(context.Background(), "b-1", "patch")
	if ctx == nil || span == nil || span.Span() == nil {
		t.Fatal("expected a span")
	}
	span.End("diff", ReasonMaxPayloadBytes, 4, 2048, errors.New("adapter down"))

	if NewTracer("").tracer == nil {
		t.Error("global tracer should resolve")
	}
}

func TestHooksFanOut(t *testing.T) {
	var logs bytes.Buffer
	h := NewHooks(slog.New(slog.NewTextHandler(&logs, nil)))

	var got []string
	h.Add(func(DebugInfo) { panic("boom") })
	remove := h.Add(func(d DebugInfo) { got = append(got, "second:"+d.Mode) })
	h.Add(func(d DebugInfo) { got = append(got, "third:"+d.Mode) })

	h.Emit(DebugInfo{BindingID: "b", Mode: "patch"})
	remove()
	remove()
	h.Emit(DebugInfo{BindingID: "b", Mode: "diff"})

	want := []string{"second:patch", "third:patch", "third:diff"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
	if !strings.Contains(logs.String(), "debug hook panic") {
		t.Error("hook panic should be logged")
	}
	if h.Len() != 2 {
		t.Errorf("Len = %d, want 2", h.Len())
	}
}

func TestDebugInfoFallback(t *testing.T) {
	for _, reason := range []string{"", ReasonInitial, ReasonStrategy} {
		if (DebugInfo{Reason: reason}).Fallback() {
			t.Errorf("%q is not a fallback", reason)
		}
	}
	if !(DebugInfo{Reason: ReasonUnresolvedPath}).Fallback() {
		t.Error("unresolvedPath is a fallback")
	}
}

func TestNewLoggerFansOut(t *testing.T) {
	var primary, extra bytes.Buffer
	logger := NewLogger(&primary, LoggerOptions{
		Level: slog.LevelDebug,
		Extra: []slog.Handler{slog.NewJSONHandler(&extra, nil)},
	})

	logger.Info("flush", "keys", 3)
	if !strings.Contains(primary.String(), "flush") || !strings.Contains(extra.String(), `"keys":3`) {
		t.Errorf("primary=%q extra=%q", primary.String(), extra.String())
	}

	if ParseLevel("debug") != slog.LevelDebug || ParseLevel("nonsense") != slog.LevelInfo {
		t.Error("ParseLevel mismatch")
	}
}
