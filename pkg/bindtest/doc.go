// Package bindtest provides testing helpers for code built on bindings.
//
// A Harness wires a fresh scheduler, runtime, state proxy and recording
// adapter together and mounts a binding, so a test only writes the
// mutations and the expectations.
//
// # Quick Start
//
//	func TestCounter(t *testing.T) {
//	    h := bindtest.New().
//	        WithState(map[string]any{"count": 0}).
//	        Build(t)
//
//	    h.State.Set("count", 1)
//	    h.Tick()
//
//	    bindtest.ExpectPayload(t, h, map[string]any{"count": 1})
//	    bindtest.ExpectConverged(t, h)
//	}
//
// # Options and Strategies
//
//	h := bindtest.New().
//	    WithState(initial).
//	    WithOptions(binding.WithMergeSiblings(3)).
//	    WithStrategy(binding.StrategyDiff).
//	    Build(t)
//
// Build registers Close with t.Cleanup.
package bindtest
