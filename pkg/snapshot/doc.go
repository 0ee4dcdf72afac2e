// Package snapshot works on plain value trees: map[string]any, []any and
// JSON scalars, with no live object identity.
//
// A snapshot is what the remote view layer is known to hold. Diff computes
// the minimal payload between two snapshots, Apply replays a payload onto a
// ledger snapshot, and the size helpers let callers bound payload cost.
//
// Payload paths use object keys joined by "." and array indices in
// brackets:
//
//	{"user.name": "ada", "list[0].done": true, "removed": nil}
package snapshot
