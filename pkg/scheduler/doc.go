// Package scheduler batches reactive work into one flush per tick.
//
// A Loop is an explicit single-threaded task queue standing in for the
// host's microtask queue. A Scheduler owns a job queue (deduplicated by job
// identity) and posts at most one flush task to its Loop at a time:
//
//	sched := scheduler.New()
//	job := scheduler.NewJob("render", render)
//	sched.QueueJob(job)
//	sched.QueueJob(job)  // coalesced
//	sched.Loop().Drain() // render runs once
//
// NextTick lets callers wait until propagation has settled:
//
//	done := sched.NextTick(nil)
//	sched.Loop().Drain()
//	<-done
//
// Jobs that keep re-queueing themselves across consecutive flushes (two
// watchers invalidating each other, for example) are dropped after
// MaxRecursion flushes and reported as errors.ErrRecursionLimit. Report
// lets work outside the queue, such as a runtime's batched effects, send
// its own drops to the same error handler.
package scheduler
