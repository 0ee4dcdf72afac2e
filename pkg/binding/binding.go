package binding

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/reactive"
	"github.com/vango-dev/viewstate/pkg/scheduler"
	"github.com/vango-dev/viewstate/pkg/snapshot"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

// DebugInfo describes one flush.
type DebugInfo = telemetry.DebugInfo

// Binding syncs one reactive root to an Adapter.
type Binding struct {
	id      string
	rt      *reactive.Runtime
	state   *reactive.Proxy
	root    *reactive.Object
	adapter Adapter
	opts    Options
	logger  *slog.Logger
	hooks   *telemetry.Hooks
	job     *scheduler.Job
	ctx     context.Context

	pick map[string]struct{}
	omit map[string]struct{}

	// ledger is what the adapter is known to hold.
	ledger map[string]any

	pending map[string]struct{}
	forced  string

	computed      []*computedSlot
	computedDirty map[string]struct{}

	rootEffect  *reactive.Effect
	release     func()
	unsubscribe func()

	mounted bool
	closed  bool
}

type computedSlot struct {
	field  ComputedField
	effect *reactive.Effect
	raw    any
}

// New creates a binding for state. state must be a reactive object proxy
// (not an array, not readonly) owned by rt. The binding does nothing until
// Mount.
func New(rt *reactive.Runtime, state *reactive.Proxy, adapter Adapter, opts ...Option) *Binding {
	if state == nil || state.IsArray() {
		panic(errors.New("E104").WithDetail("binding root must be an object proxy"))
	}
	if state.Runtime() != rt {
		panic(errors.New("E103"))
	}

	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()

	b := &Binding{
		id:            uuid.NewString(),
		rt:            rt,
		state:         state,
		root:          state.Raw().(*reactive.Object),
		adapter:       adapter,
		opts:          o,
		ledger:        map[string]any{},
		pending:       map[string]struct{}{},
		computedDirty: map[string]struct{}{},
		pick:          keySet(o.Pick),
		omit:          keySet(o.Omit),
		ctx:           context.Background(),
	}
	b.logger = o.Logger.With("binding", b.id, "strategy", string(o.Strategy))
	b.hooks = telemetry.NewHooks(b.logger)
	if o.Debug != nil {
		b.hooks.Add(o.Debug)
	}
	b.job = scheduler.NewJob("binding:"+b.id, b.runJob)
	return b
}

// ID returns the binding identifier used in telemetry.
func (b *Binding) ID() string {
	return b.id
}

// Options returns the effective options.
func (b *Binding) Options() Options {
	return b.opts
}

// OnDebug registers an additional debug hook and returns its remover.
// Hooks see the same filtered, sampled stream as Options.Debug.
func (b *Binding) OnDebug(fn telemetry.DebugHook) (remove func()) {
	return b.hooks.Add(fn)
}

// Mount prelinks the state tree, starts tracking and sends the initial
// full snapshot.
func (b *Binding) Mount(ctx context.Context) error {
	if b.closed {
		return errors.New("E602")
	}
	if b.mounted {
		return errors.New("E601")
	}
	b.mounted = true
	if ctx != nil {
		b.ctx = context.WithoutCancel(ctx)
	}

	b.release = b.rt.Prelink(b.root, reactive.PrelinkOptions{
		MaxDepth: b.opts.PrelinkMaxDepth,
		MaxKeys:  b.opts.PrelinkMaxKeys,
	})
	b.unsubscribe = b.rt.OnMutation(b.onMutation)
	b.rootEffect = b.rt.Effect(func() {
		b.state.TrackVersion()
	}, reactive.WithScheduler(b.schedule))

	if b.opts.IncludeComputed {
		for _, f := range b.opts.Computed {
			if f.Source == nil || !b.allowed(f.Name) {
				continue
			}
			b.computed = append(b.computed, b.watchComputed(f))
		}
	}
	b.opts.Metrics.BindingMounted(1)

	for _, k := range b.root.Keys() {
		if !snapshot.SafeKey(k) {
			b.logger.Warn("field name is not addressable, skipping", "field", k)
		}
	}

	next := b.buildSnapshot()
	payload := snapshot.Diff(map[string]any{}, next)
	b.ledger = next

	info := DebugInfo{
		Mode:   string(StrategyDiff),
		Reason: telemetry.ReasonInitial,
	}
	return b.send(ctx, payload, &info)
}

func (b *Binding) watchComputed(f ComputedField) *computedSlot {
	slot := &computedSlot{field: f}
	slot.effect = b.rt.Effect(func() {
		slot.raw = f.Source.Read()
	}, reactive.WithScheduler(func() {
		b.computedDirty[f.Name] = struct{}{}
		b.schedule()
	}))
	return slot
}

// Flush builds and sends a payload for everything pending, synchronously.
// Adapter errors are returned after the ledger has been updated.
func (b *Binding) Flush(ctx context.Context) error {
	if b.closed {
		return errors.New("E602")
	}
	if !b.mounted {
		return nil
	}
	return b.flush(ctx)
}

// Snapshot returns a deep copy of the ledger.
func (b *Binding) Snapshot() map[string]any {
	return snapshot.CloneMap(b.ledger)
}

// Pending returns the pending paths in sorted order.
func (b *Binding) Pending() []string {
	out := make([]string, 0, len(b.pending))
	for p := range b.pending {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close stops tracking. Pending changes are dropped. Close is idempotent.
func (b *Binding) Close() {
	if b.closed {
		return
	}
	b.closed = true
	if b.rootEffect != nil {
		b.rootEffect.Stop()
	}
	for _, slot := range b.computed {
		slot.effect.Stop()
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	if b.release != nil {
		b.release()
	}
	if b.mounted {
		b.opts.Metrics.BindingMounted(-1)
	}
	b.pending = map[string]struct{}{}
	b.computedDirty = map[string]struct{}{}
}

func (b *Binding) schedule() {
	if b.closed {
		return
	}
	b.rt.Scheduler().QueueJob(b.job)
}

func (b *Binding) runJob() {
	if b.closed {
		return
	}
	if err := b.flush(b.ctx); err != nil {
		b.logger.Debug("scheduled flush returned error", "error", err)
	}
}

// onMutation folds a record into the pending set.
func (b *Binding) onMutation(rec reactive.MutationRecord) {
	if rec.Root != b.root || b.closed {
		return
	}
	if b.opts.Strategy == StrategyDiff {
		return
	}

	if rec.HasPath {
		if _, ok := snapshot.ParsePath(rec.Path); !ok {
			b.force(telemetry.ReasonUnresolvedPath)
			return
		}
		if b.allowed(snapshot.TopKey(rec.Path)) {
			b.pending[rec.Path] = struct{}{}
		}
		return
	}
	if len(rec.TopKeys) == 0 {
		b.force(telemetry.ReasonUnreachableNode)
		return
	}
	for _, k := range rec.TopKeys {
		if b.allowed(k) {
			b.pending[k] = struct{}{}
		}
	}
}

func (b *Binding) force(reason string) {
	if b.forced == "" {
		b.forced = reason
	}
}

// allowed reports whether a top-level field is synced. Field names that
// cannot be addressed as payload keys never are.
func (b *Binding) allowed(key string) bool {
	if !snapshot.SafeKey(key) {
		return false
	}
	if len(b.pick) > 0 {
		if _, ok := b.pick[key]; !ok {
			return false
		}
	}
	_, omitted := b.omit[key]
	return !omitted
}

// buildSnapshot serializes every allowed field plus computed fields.
func (b *Binding) buildSnapshot() map[string]any {
	out := make(map[string]any)
	budget := b.plainBudget()
	for _, k := range b.root.Keys() {
		if !b.allowed(k) {
			continue
		}
		v, _ := b.root.Get(k)
		out[k] = reactive.ToPlain(v, budget)
	}
	for _, slot := range b.computed {
		out[slot.field.Name] = reactive.ToPlain(slot.raw, budget)
	}
	return out
}

func (b *Binding) plainBudget() snapshot.Budget {
	return snapshot.Budget{MaxDepth: b.opts.ToPlainMaxDepth, MaxKeys: b.opts.ToPlainMaxKeys}
}

// send applies telemetry and hands a non-empty payload to the adapter.
func (b *Binding) send(ctx context.Context, payload map[string]any, info *DebugInfo) error {
	if ctx == nil {
		ctx = b.ctx
	}
	if len(payload) == 0 {
		return nil
	}

	ctx, span := b.opts.Tracer.StartFlush(ctx, b.id, string(b.opts.Strategy))

	info.BindingID = b.id
	info.Time = time.Now()
	info.PayloadKeys = len(payload)
	if info.EstimatedBytes == 0 {
		info.EstimatedBytes = estimatePayload(payload)
	}

	var err error
	if b.adapter != nil {
		err = b.adapter.SetData(ctx, payload)
	}
	if err != nil {
		b.logger.Warn("adapter setData failed", "mode", info.Mode, "keys", len(payload), "error", err)
		b.opts.Metrics.AdapterError()
	}

	span.End(info.Mode, info.Reason, info.PayloadKeys, info.Bytes, err)
	b.opts.Metrics.ObserveFlush(info.Mode, info.Reason, info.PayloadKeys, bytesOrEstimate(info))
	if info.Fallback() {
		b.opts.Metrics.ObserveFallback(info.Reason)
	}
	b.opts.Metrics.MergedSiblings(len(info.MergedSiblingParents))
	b.opts.Metrics.ComputedDirty(len(info.ComputedDirtyKeys))

	b.logger.Debug("flush",
		"mode", info.Mode,
		"reason", info.Reason,
		"pending", info.PendingPatchKeys,
		"keys", info.PayloadKeys,
		"bytes", bytesOrEstimate(info),
	)
	b.emit(*info)
	return err
}

func (b *Binding) emit(info DebugInfo) {
	if b.hooks.Len() == 0 {
		return
	}
	if b.opts.DebugWhen == DebugFallback && !info.Fallback() {
		return
	}
	if rate := b.opts.DebugSampleRate; rate > 0 && rate < 1 && b.opts.Rand() >= rate {
		return
	}
	b.hooks.Emit(info)
}

func bytesOrEstimate(info *DebugInfo) int {
	if info.Bytes > 0 {
		return info.Bytes
	}
	return info.EstimatedBytes
}

func keySet(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}
