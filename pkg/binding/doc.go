// Package binding keeps a remote view state in sync with a reactive root.
//
// A Binding watches a *reactive.Proxy through a single root-tracking
// effect and a mutation recorder. Writes mark paths pending; once per
// scheduler tick the binding turns them into a payload and hands it to an
// Adapter. Two engines build payloads:
//
//   - diff serializes the whole state and diffs it against the ledger of
//     what the adapter already holds.
//   - patch serializes only the pending paths, with safety valves that
//     fall back to diff when incremental patching is unsafe or too large.
//
// Both engines converge to the same state on the adapter side.
//
//	rt := reactive.NewRuntime(nil)
//	state := rt.Reactive(map[string]any{"a": map[string]any{"b": 1}})
//	b := binding.New(rt, state, adapter, binding.WithStrategy(binding.StrategyPatch))
//	_ = b.Mount(ctx)
//	state.Child("a").Set("b", 2) // adapter receives {"a.b": 2}
package binding
