package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/vango-dev/viewstate/internal/config"
	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/binding"
	"github.com/vango-dev/viewstate/pkg/reactive"
	"github.com/vango-dev/viewstate/pkg/scheduler"
	"github.com/vango-dev/viewstate/pkg/snapshot"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

// RunOptions wires telemetry into a replay.
type RunOptions struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	// Debug receives every flush, unfiltered.
	Debug telemetry.DebugHook
}

// Result is what the adapter observed during one replay.
type Result struct {
	Strategy  binding.Strategy
	BindingID string
	Payloads  []map[string]any
	Debug     []telemetry.DebugInfo

	// Remote is the state the adapter ends up holding.
	Remote map[string]any
	// Ledger is the binding's own record of Remote.
	Ledger map[string]any
}

// Fallbacks counts flushes that fell back from patch to diff, by reason.
func (r *Result) Fallbacks() map[string]int {
	out := map[string]int{}
	for _, d := range r.Debug {
		if d.Fallback() {
			out[d.Reason]++
		}
	}
	return out
}

// recorder is the replay adapter.
type recorder struct {
	payloads []map[string]any
	remote   map[string]any
}

func (r *recorder) SetData(_ context.Context, payload map[string]any) error {
	r.payloads = append(r.payloads, snapshot.CloneMap(payload))
	snapshot.Apply(r.remote, payload)
	return nil
}

// Run replays s under strategy on a fresh runtime.
func Run(ctx context.Context, s *Scenario, strategy binding.Strategy, ro RunOptions) (res *Result, err error) {
	logger := ro.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("scenario", s.Name, "strategy", string(strategy))

	sched := scheduler.New(scheduler.WithLogger(logger))
	rt := reactive.NewRuntime(sched, reactive.WithLogger(logger))

	// Programmer errors surface as panics carrying *errors.Error.
	defer func() {
		if p := recover(); p != nil {
			err = asScenarioError(p)
		}
	}()

	state := rt.Reactive(snapshot.CloneMap(s.Initial))

	cfg := config.Config{Binding: s.Binding}
	opts := cfg.BindingOptions()
	opts.Strategy = strategy
	opts.Logger = logger
	opts.Metrics = ro.Metrics
	opts.Tracer = ro.Tracer

	adapter := &recorder{remote: map[string]any{}}
	res = &Result{Strategy: strategy}

	bopts := []binding.Option{binding.WithOptions(opts)}
	for _, c := range s.Computed {
		bopts = append(bopts, binding.WithComputed(c.Name, computedSource(rt, state, c)))
	}
	b := binding.New(rt, state, adapter, bopts...)
	defer b.Close()
	res.BindingID = b.ID()

	b.OnDebug(func(info telemetry.DebugInfo) {
		res.Debug = append(res.Debug, info)
	})
	if ro.Debug != nil {
		b.OnDebug(ro.Debug)
	}

	if err := b.Mount(ctx); err != nil {
		return nil, err
	}

	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := apply(rt, state, st); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if st.Op == OpTick {
			sched.Loop().Drain()
		}
	}
	sched.Loop().Drain()

	res.Payloads = adapter.payloads
	res.Remote = adapter.remote
	res.Ledger = b.Snapshot()
	logger.Debug("scenario replayed", "payloads", len(res.Payloads), "steps", len(s.Steps))
	return res, nil
}

// Compare replays s under both engines and checks that the adapters
// converge. It returns ErrNotEquivalent when they do not.
func Compare(ctx context.Context, s *Scenario, ro RunOptions) (diff, patch *Result, err error) {
	diff, err = Run(ctx, s, binding.StrategyDiff, ro)
	if err != nil {
		return nil, nil, err
	}
	patch, err = Run(ctx, s, binding.StrategyPatch, ro)
	if err != nil {
		return nil, nil, err
	}

	if !snapshot.Equal(diff.Remote, patch.Remote) {
		return diff, patch, errors.New("E402").
			WithDetail(fmt.Sprintf("diff remote %v, patch remote %v", diff.Remote, patch.Remote))
	}
	for _, r := range []*Result{diff, patch} {
		if !snapshot.Equal(r.Remote, r.Ledger) {
			return diff, patch, errors.New("E402").
				WithDetail(fmt.Sprintf("%s ledger %v does not match remote %v", r.Strategy, r.Ledger, r.Remote))
		}
	}
	return diff, patch, nil
}

func apply(rt *reactive.Runtime, state *reactive.Proxy, st Step) error {
	switch st.Op {
	case OpTick:
		return nil
	case OpBatch:
		var err error
		rt.Batch(func() {
			for _, inner := range st.Steps {
				if err = apply(rt, state, inner); err != nil {
					return
				}
			}
		})
		return err
	}

	segs, ok := snapshot.ParsePath(st.Path)
	if !ok {
		return invalid("malformed path %q", st.Path)
	}

	switch st.Op {
	case OpSet, OpDelete:
		parent, err := resolve(state, segs[:len(segs)-1], st.Path)
		if err != nil {
			return err
		}
		last := segs[len(segs)-1]
		key := last.Key
		if last.IsIndex {
			key = strconv.Itoa(last.Index)
		}
		if st.Op == OpSet {
			parent.Set(key, st.Value)
			return nil
		}
		if parent.IsArray() {
			return invalid("delete on array element %q, use remove", st.Path)
		}
		parent.Delete(key)
		return nil
	}

	arr, err := resolve(state, segs, st.Path)
	if err != nil {
		return err
	}
	if !arr.IsArray() {
		return invalid("%s on %q: not an array", st.Op, st.Path)
	}
	switch st.Op {
	case OpPush:
		arr.Push(st.Values...)
	case OpPop:
		arr.Pop()
	case OpInsert:
		arr.Insert(st.Index, st.Values...)
	case OpRemove:
		arr.RemoveAt(st.Index)
	case OpSetLen:
		arr.SetLen(st.Index)
	}
	return nil
}

// resolve walks segs through proxies and returns the container there.
func resolve(state *reactive.Proxy, segs []snapshot.Segment, path string) (*reactive.Proxy, error) {
	cur := state
	for _, seg := range segs {
		key := seg.Key
		if seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		}
		next := cur.Child(key)
		if next == nil {
			return nil, invalid("path %q does not resolve to a container", path)
		}
		cur = next
	}
	return cur, nil
}

func computedSource(rt *reactive.Runtime, state *reactive.Proxy, c Computed) reactive.Source {
	return reactive.NewComputed(rt, func() any {
		v, ok := state.Lookup(c.Path)
		if !ok {
			return nil
		}
		p, isProxy := v.(*reactive.Proxy)
		if c.Func == FuncLength {
			if isProxy {
				return p.Len()
			}
			return 0
		}
		if isProxy {
			p.TrackVersion()
		}
		return reactive.ToPlain(v, reactive.DefaultPlainBudget)
	})
}

func asScenarioError(p any) error {
	if e, ok := p.(*errors.Error); ok {
		return errors.New("E401").Wrap(e)
	}
	if e, ok := p.(error); ok {
		return errors.New("E401").Wrap(e)
	}
	return errors.New("E401").WithDetail(fmt.Sprint(p))
}

// Keys returns the top-level keys of a remote state in sorted order.
func Keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
