package reactive

import (
	"fmt"

	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/scheduler"
)

// StartBatch defers non-computed effect runs until the matching EndBatch.
// Batches nest; only the outermost EndBatch flushes.
func (rt *Runtime) StartBatch() {
	rt.batchDepth++
}

// EndBatch closes a batch. When the outermost batch closes, every effect
// triggered inside it runs once, in first-trigger order. Effects triggered
// during that drain run as part of the same drain.
//
// Effects that keep re-triggering each other are dropped after
// scheduler.DefaultMaxRecursion rounds. The drop is logged and reported to
// the scheduler's error handler as errors.ErrRecursionLimit; the write that
// closed the batch does not panic. A panic raised by an effect is
// re-raised once the drain finishes.
func (rt *Runtime) EndBatch() {
	if rt.batchDepth == 0 {
		return
	}
	rt.batchDepth--
	if rt.batchDepth > 0 {
		return
	}

	var first any
	for rounds := 0; len(rt.batchQueue) > 0; rounds++ {
		if rounds >= scheduler.DefaultMaxRecursion {
			rt.logger.Error("dropping effects that keep re-triggering each other", "effects", len(rt.batchQueue), "rounds", rounds)
			rt.sched.Report(errors.New("E201").WithDetail(fmt.Sprintf("%d effects still pending after %d rounds", len(rt.batchQueue), rounds)))
			rt.batchQueue = nil
			clear(rt.batchSet)
			break
		}
		queue := rt.batchQueue
		rt.batchQueue = nil
		clear(rt.batchSet)

		rt.batchDepth++
		for _, e := range queue {
			if p := rt.runQueued(e); p != nil && first == nil {
				first = p
			}
		}
		rt.batchDepth--
	}
	if first != nil {
		panic(first)
	}
}

func (rt *Runtime) runQueued(e *Effect) (p any) {
	defer func() {
		p = recover()
	}()
	if e.active && !e.running {
		e.trigger()
	}
	return nil
}

// Batch runs fn inside a batch.
func (rt *Runtime) Batch(fn func()) {
	rt.StartBatch()
	defer rt.EndBatch()
	fn()
}

// Batching reports whether a batch is open.
func (rt *Runtime) Batching() bool {
	return rt.batchDepth > 0
}
