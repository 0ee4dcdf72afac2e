package bindtest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/vango-dev/viewstate/pkg/binding"
	"github.com/vango-dev/viewstate/pkg/reactive"
	"github.com/vango-dev/viewstate/pkg/scheduler"
	"github.com/vango-dev/viewstate/pkg/snapshot"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

// Recorder is an Adapter that keeps every payload and the state a view
// holding them would end up with.
type Recorder struct {
	mu       sync.Mutex
	payloads []map[string]any
	remote   map[string]any

	// Err, when set, is returned from SetData after recording.
	Err error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{remote: map[string]any{}}
}

// SetData implements binding.Adapter.
func (r *Recorder) SetData(_ context.Context, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, snapshot.CloneMap(payload))
	snapshot.Apply(r.remote, payload)
	return r.Err
}

// Payloads returns copies of every payload received.
func (r *Recorder) Payloads() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, len(r.payloads))
	for i, p := range r.payloads {
		out[i] = snapshot.CloneMap(p)
	}
	return out
}

// Remote returns a copy of the accumulated view state.
func (r *Recorder) Remote() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot.CloneMap(r.remote)
}

// Builder assembles a Harness.
type Builder struct {
	initial map[string]any
	opts    []binding.Option
	sched   []scheduler.Option
	mount   bool
}

// New creates a builder with an empty state that mounts on Build.
func New() *Builder {
	return &Builder{initial: map[string]any{}, mount: true}
}

// WithState sets the initial state. The map is copied.
func (b *Builder) WithState(initial map[string]any) *Builder {
	b.initial = snapshot.CloneMap(initial)
	return b
}

// WithOptions appends binding options.
func (b *Builder) WithOptions(opts ...binding.Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// WithStrategy selects the engine.
func (b *Builder) WithStrategy(s binding.Strategy) *Builder {
	b.opts = append(b.opts, binding.WithStrategy(s))
	return b
}

// WithSchedulerOptions configures the harness scheduler.
func (b *Builder) WithSchedulerOptions(opts ...scheduler.Option) *Builder {
	b.sched = append(b.sched, opts...)
	return b
}

// Unmounted leaves the binding unmounted so the test can call Mount.
func (b *Builder) Unmounted() *Builder {
	b.mount = false
	return b
}

// Build creates the harness, mounts the binding unless Unmounted was
// called, and registers cleanup with t.
func (b *Builder) Build(t testing.TB) *Harness {
	t.Helper()

	h := &Harness{
		Scheduler: scheduler.New(b.sched...),
		Adapter:   NewRecorder(),
	}
	h.Runtime = reactive.NewRuntime(h.Scheduler)
	h.State = h.Runtime.Reactive(snapshot.CloneMap(b.initial))
	h.Binding = binding.New(h.Runtime, h.State, h.Adapter, b.opts...)
	h.Binding.OnDebug(func(info telemetry.DebugInfo) {
		h.mu.Lock()
		h.debug = append(h.debug, info)
		h.mu.Unlock()
	})
	t.Cleanup(h.Binding.Close)

	if b.mount {
		if err := h.Binding.Mount(context.Background()); err != nil {
			t.Fatalf("bindtest: mount: %v", err)
		}
	}
	return h
}

// Harness is a mounted binding over a fresh runtime.
type Harness struct {
	Scheduler *scheduler.Scheduler
	Runtime   *reactive.Runtime
	State     *reactive.Proxy
	Binding   *binding.Binding
	Adapter   *Recorder

	mu    sync.Mutex
	debug []telemetry.DebugInfo
}

// Tick drains the scheduler loop, running any scheduled flush.
func (h *Harness) Tick() {
	h.Scheduler.Loop().Drain()
}

// Batch runs fn inside a runtime batch.
func (h *Harness) Batch(fn func()) {
	h.Runtime.Batch(fn)
}

// Debug returns the DebugInfo of every flush so far.
func (h *Harness) Debug() []telemetry.DebugInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]telemetry.DebugInfo(nil), h.debug...)
}

// Last returns the most recent payload, or nil.
func (h *Harness) Last() map[string]any {
	p := h.Adapter.Payloads()
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

// Live returns the current state as a plain tree.
func (h *Harness) Live() map[string]any {
	m, _ := reactive.ToPlain(h.State, reactive.DefaultPlainBudget).(map[string]any)
	return m
}

// ExpectPayload asserts that the last payload equals want.
func ExpectPayload(t testing.TB, h *Harness, want map[string]any) {
	t.Helper()
	got := h.Last()
	if !snapshot.Equal(got, want) {
		t.Errorf("last payload = %s, want %s", encode(got), encode(want))
	}
}

// ExpectFlushes asserts how many payloads the adapter has received.
func ExpectFlushes(t testing.TB, h *Harness, n int) {
	t.Helper()
	if got := len(h.Adapter.Payloads()); got != n {
		t.Errorf("adapter received %d payloads, want %d", got, n)
	}
}

// ExpectMode asserts the engine and reason of the last flush.
func ExpectMode(t testing.TB, h *Harness, mode binding.Strategy, reason string) {
	t.Helper()
	d := h.Debug()
	if len(d) == 0 {
		t.Errorf("no flush recorded, want mode %s", mode)
		return
	}
	last := d[len(d)-1]
	if last.Mode != string(mode) || last.Reason != reason {
		t.Errorf("last flush mode=%s reason=%q, want mode=%s reason=%q", last.Mode, last.Reason, mode, reason)
	}
}

// ExpectConverged asserts that the adapter's view, the binding's ledger
// and the live state agree. The live comparison assumes no Pick, Omit or
// computed fields.
func ExpectConverged(t testing.TB, h *Harness) {
	t.Helper()
	remote := h.Adapter.Remote()
	if ledger := h.Binding.Snapshot(); !snapshot.Equal(remote, ledger) {
		t.Errorf("remote %s differs from ledger %s", encode(remote), encode(ledger))
	}
	if live := h.Live(); !snapshot.Equal(remote, live) {
		t.Errorf("remote %s differs from live state %s", encode(remote), encode(live))
	}
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "<unencodable>"
	}
	return truncate(string(data), 500)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
