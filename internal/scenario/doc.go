// Package scenario replays scripted mutations against a binding.
//
// A scenario is a YAML document with an initial state, binding options,
// optional computed fields and a list of steps:
//
//	name: counter
//	initial: {count: 0, user: {name: ada}}
//	binding:
//	  mergeSibling: {threshold: 3}
//	steps:
//	  - {op: set, path: count, value: 1}
//	  - {op: tick}
//	  - op: batch
//	    steps:
//	      - {op: set, path: user.name, value: grace}
//	      - {op: delete, path: user.email}
//
// Run replays under one engine and records every payload. Compare replays
// under both and reports ErrNotEquivalent when the remote states differ.
package scenario
