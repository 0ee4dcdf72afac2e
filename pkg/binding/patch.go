package binding

import (
	"context"
	"sort"

	"github.com/vango-dev/viewstate/pkg/reactive"
	"github.com/vango-dev/viewstate/pkg/snapshot"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

// measureFraction is the share of MaxPayloadBytes above which the cheap
// estimate is replaced by an exact measurement.
const measureFraction = 0.8

func (b *Binding) flush(ctx context.Context) error {
	pending := b.Pending()
	forced := b.forced
	b.pending = map[string]struct{}{}
	b.forced = ""

	dirty, prevRaw := b.refreshComputed()

	info := DebugInfo{
		PendingPatchKeys:  len(pending),
		ComputedDirtyKeys: dirty,
	}

	if b.opts.Strategy == StrategyDiff {
		return b.flushDiff(ctx, telemetry.ReasonStrategy, &info)
	}
	if forced != "" {
		return b.flushDiff(ctx, forced, &info)
	}
	if b.opts.MaxPatchKeys > 0 && len(pending) > b.opts.MaxPatchKeys {
		return b.flushDiff(ctx, telemetry.ReasonMaxPatchKeys, &info)
	}
	if len(pending) == 0 && len(dirty) == 0 {
		return nil
	}

	paths, fits := b.fitBudget(b.elevate(pending))
	if !fits {
		return b.flushDiff(ctx, telemetry.ReasonToPlainBudget, &info)
	}
	payload := b.serialize(paths)
	b.addComputed(payload, dirty, prevRaw)
	collapse(payload)
	info.MergedSiblingParents = b.mergeSiblings(payload)

	est := estimatePayload(payload)
	info.EstimatedBytes = est
	if limit := b.opts.MaxPayloadBytes; limit > 0 && float64(est) >= measureFraction*float64(limit) {
		exact := snapshot.MeasureSize(payload)
		info.Bytes = exact
		if exact < 0 || exact > limit {
			info.EstimatedBytes, info.Bytes = 0, 0
			info.MergedSiblingParents = nil
			return b.flushDiff(ctx, telemetry.ReasonMaxPayloadBytes, &info)
		}
	}

	snapshot.Apply(b.ledger, payload)
	info.Mode = string(StrategyPatch)
	return b.send(ctx, payload, &info)
}

// flushDiff rebuilds the full snapshot and sends its diff to the ledger.
func (b *Binding) flushDiff(ctx context.Context, reason string, info *DebugInfo) error {
	next := b.buildSnapshot()
	payload := snapshot.Diff(b.ledger, next)
	b.ledger = next

	info.Mode = string(StrategyDiff)
	info.Reason = reason
	return b.send(ctx, payload, info)
}

// refreshComputed re-runs dirty computed effects so their dependencies
// stay current. It returns the dirty names and their values before the
// re-run.
func (b *Binding) refreshComputed() ([]string, map[string]any) {
	if len(b.computedDirty) == 0 {
		return nil, nil
	}
	var names []string
	prev := make(map[string]any, len(b.computedDirty))
	for _, slot := range b.computed {
		name := slot.field.Name
		if _, ok := b.computedDirty[name]; !ok {
			continue
		}
		names = append(names, name)
		prev[name] = slot.raw
		slot.effect.Run()
	}
	b.computedDirty = map[string]struct{}{}
	return names, prev
}

// elevate replaces the children of busy top-level fields with the field.
func (b *Binding) elevate(pending []string) []string {
	threshold := b.opts.ElevateTopKeyThreshold
	if threshold <= 0 {
		return pending
	}

	children := make(map[string]int)
	for _, p := range pending {
		if top := snapshot.TopKey(p); top != p {
			children[top]++
		}
	}

	out := make([]string, 0, len(pending))
	seen := make(map[string]struct{})
	for _, p := range pending {
		top := snapshot.TopKey(p)
		if children[top] >= threshold {
			p = top
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// fitBudget drops paths that sit below the plain depth budget, where a
// full snapshot never looks. It reports false when a field is patched below
// its top level but would not fit the key budget as a whole, since the
// entries a full snapshot keeps then depend on the rest of the field.
func (b *Binding) fitBudget(paths []string) ([]string, bool) {
	budget := reactive.EffectiveBudget(b.plainBudget())

	whole := make(map[string]bool)
	for _, p := range paths {
		if snapshot.Depth(p) == 1 {
			whole[p] = true
		}
	}

	out := make([]string, 0, len(paths))
	checked := make(map[string]bool)
	for _, p := range paths {
		depth := snapshot.Depth(p)
		if depth-1 > budget.MaxDepth {
			continue
		}
		out = append(out, p)

		top := snapshot.TopKey(p)
		if depth == 1 || whole[top] || checked[top] {
			continue
		}
		checked[top] = true
		if v, ok := b.root.Get(top); ok && !reactive.FitsPlain(v, budget) {
			return nil, false
		}
	}
	return out, true
}

// serialize reads the current value of every path. A path that no longer
// resolves is sent as nil when its parent still exists, otherwise its
// top-level field is sent whole.
func (b *Binding) serialize(paths []string) map[string]any {
	budget := b.plainBudget()
	payload := make(map[string]any, len(paths))
	for _, p := range paths {
		if v, ok := lookup(b.root, p); ok {
			payload[p] = reactive.ToPlainAt(v, snapshot.Depth(p)-1, budget)
			continue
		}
		parent, hasParent := snapshot.ParentPath(p)
		if !hasParent {
			payload[p] = nil
			continue
		}
		if _, ok := lookup(b.root, parent); ok {
			payload[p] = nil
			continue
		}
		top := snapshot.TopKey(p)
		v, _ := b.root.Get(top)
		payload[top] = reactive.ToPlain(v, budget)
	}
	return payload
}

// addComputed adds dirty computed fields whose value changed.
func (b *Binding) addComputed(payload map[string]any, dirty []string, prev map[string]any) {
	if len(dirty) == 0 {
		return
	}
	budget := b.plainBudget()
	for _, slot := range b.computed {
		name := slot.field.Name
		old, ok := prev[name]
		if !ok {
			continue
		}

		switch b.opts.ComputedCompare {
		case CompareShallow:
			if shallowSame(old, slot.raw) {
				continue
			}
			payload[name] = reactive.ToPlain(slot.raw, budget)
		case CompareDeep:
			next := reactive.ToPlain(slot.raw, budget)
			sent, had := b.ledger[name]
			cmp := snapshot.Budget{MaxDepth: b.opts.ComputedCompareMaxDepth, MaxKeys: b.opts.ComputedCompareMaxKeys}
			if had && snapshot.EqualBudget(sent, next, cmp) {
				continue
			}
			payload[name] = next
		default:
			if snapshot.Identical(old, slot.raw) {
				continue
			}
			payload[name] = reactive.ToPlain(slot.raw, budget)
		}
	}
}

// shallowSame compares the first level of two raw values by identity.
func shallowSame(a, b any) bool {
	a, b = reactive.ToRaw(a), reactive.ToRaw(b)
	if snapshot.Identical(a, b) {
		return true
	}
	switch x := a.(type) {
	case *reactive.Object:
		y, ok := b.(*reactive.Object)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.Keys() {
			xv, _ := x.Get(k)
			yv, ok := y.Get(k)
			if !ok || !snapshot.Identical(xv, yv) {
				return false
			}
		}
		return true
	case *reactive.Array:
		y, ok := b.(*reactive.Array)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for i := 0; i < x.Len(); i++ {
			if !snapshot.Identical(x.At(i), y.At(i)) {
				return false
			}
		}
		return true
	}
	return snapshot.ShallowEqual(a, b)
}

// collapse drops every key that has an ancestor key in the payload.
func collapse(payload map[string]any) {
	for p := range payload {
		for q, ok := snapshot.ParentPath(p); ok; q, ok = snapshot.ParentPath(q) {
			if _, found := payload[q]; found {
				delete(payload, p)
				break
			}
		}
	}
}

// mergeSiblings replaces groups of sibling keys with their parent when
// that is not larger than the guards allow. It returns the merged parents.
func (b *Binding) mergeSiblings(payload map[string]any) []string {
	threshold := b.opts.MergeSiblingThreshold
	if threshold <= 0 || len(payload) < threshold {
		return nil
	}

	groups := make(map[string][]string)
	for p := range payload {
		parent, ok := snapshot.ParentPath(p)
		if !ok {
			continue
		}
		groups[parent] = append(groups[parent], p)
	}

	parents := make([]string, 0, len(groups))
	for parent, kids := range groups {
		if len(kids) >= threshold {
			parents = append(parents, parent)
		}
	}
	sort.Strings(parents)

	budget := b.plainBudget()
	var merged []string
	for _, parent := range parents {
		live, ok := lookup(b.root, parent)
		if !ok {
			continue
		}
		if _, isArray := reactive.ToRaw(live).(*reactive.Array); isArray && b.opts.MergeSiblingSkipArray {
			continue
		}

		value := reactive.ToPlainAt(live, snapshot.Depth(parent)-1, budget)
		parentBytes := snapshot.EstimateSize(value)
		if limit := b.opts.MergeSiblingMaxParentBytes; limit > 0 && parentBytes > limit {
			continue
		}
		siblingBytes := 0
		for _, k := range groups[parent] {
			siblingBytes += snapshot.EntrySize(k, payload[k])
		}
		if float64(parentBytes) > b.opts.MergeSiblingMaxInflationRatio*float64(siblingBytes) {
			continue
		}

		for _, k := range groups[parent] {
			delete(payload, k)
		}
		payload[parent] = value
		merged = append(merged, parent)
	}
	return merged
}

// lookup resolves a path on raw nodes without tracking.
func lookup(root *reactive.Object, path string) (any, bool) {
	segs, ok := snapshot.ParsePath(path)
	if !ok {
		return root.Get(path)
	}

	var cur any = root
	for _, seg := range segs {
		switch n := cur.(type) {
		case *reactive.Object:
			if seg.IsIndex {
				return nil, false
			}
			v, ok := n.Get(seg.Key)
			if !ok {
				return nil, false
			}
			cur = v
		case *reactive.Array:
			if !seg.IsIndex || seg.Index >= n.Len() {
				return nil, false
			}
			cur = n.At(seg.Index)
		default:
			return nil, false
		}
	}
	return cur, true
}

func estimatePayload(payload map[string]any) int {
	n := 2
	first := true
	for k, v := range payload {
		if !first {
			n++
		}
		first = false
		n += snapshot.EntrySize(k, v)
	}
	return n
}
