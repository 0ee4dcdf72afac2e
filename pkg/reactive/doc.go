// Package reactive is a dependency-tracking runtime for live object trees.
//
// A Runtime owns the tracking state: the effect currently running, the
// batch depth and the mutation recorders. Reading a key through a Proxy
// while an Effect runs subscribes that effect to the key; writing the key
// re-runs every subscriber, or hands it to the effect's scheduler.
//
//	rt := reactive.NewRuntime(scheduler.New())
//	state := rt.Reactive(map[string]any{"count": 1})
//
//	rt.Effect(func() {
//	    fmt.Println(state.Get("count"))
//	})
//
//	state.Set("count", 2) // prints 2
//
// Live trees are made of *Object and *Array nodes. Plain map[string]any and
// []any values are converted to nodes when they enter a tree. Nodes keep
// parent links so a write deep in the tree bumps a version key on every
// ancestor, and so recorders can translate the write into a path relative
// to a declared root (see Prelink and OnMutation).
//
// A Runtime is not safe for concurrent use. Drive it from the goroutine that
// drains its scheduler loop.
package reactive
