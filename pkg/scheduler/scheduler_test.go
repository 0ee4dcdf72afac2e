package scheduler

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/vango-dev/viewstate/internal/errors"
)

func TestQueueJobDeduplicates(t *testing.T) {
	s := New()
	runs := 0
	job := NewJob("count", func() { runs++ })

	s.QueueJob(job)
	s.QueueJob(job)
	s.QueueJob(job)

	if runs != 0 {
		t.Fatalf("job ran before the tick: %d", runs)
	}

	s.Loop().Drain()

	if runs != 1 {
		t.Errorf("expected 1 run, got %d", runs)
	}
	if s.Flushes() != 1 {
		t.Errorf("expected 1 flush, got %d", s.Flushes())
	}
}

func TestFlushRunsInInsertionOrder(t *testing.T) {
	s := New()
	var order []string
	a := NewJob("a", func() { order = append(order, "a") })
	b := NewJob("b", func() { order = append(order, "b") })
	c := NewJob("c", func() { order = append(order, "c") })

	s.QueueJob(b)
	s.QueueJob(a)
	s.QueueJob(c)
	s.QueueJob(b)
	s.Loop().Drain()

	want := []string{"b", "a", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestSingleFlushPerTick(t *testing.T) {
	l := NewLoop()
	s := New(WithLoop(l))

	s.QueueJob(NewJob("a", func() {}))
	s.QueueJob(NewJob("b", func() {}))

	if l.Len() != 1 {
		t.Errorf("expected exactly one posted flush, got %d", l.Len())
	}
}

func TestJobQueuedDuringFlushRunsInSameDrain(t *testing.T) {
	s := New()
	var order []string
	var second *Job
	second = NewJob("second", func() { order = append(order, "second") })
	first := NewJob("first", func() {
		order = append(order, "first")
		s.QueueJob(second)
	})

	s.QueueJob(first)
	s.Loop().Drain()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
	if s.Flushes() != 2 {
		t.Errorf("expected 2 flushes, got %d", s.Flushes())
	}
}

func TestNextTickAfterFlush(t *testing.T) {
	s := New()
	ran := false
	s.QueueJob(NewJob("work", func() { ran = true }))

	sawRan := false
	done := s.NextTick(func() { sawRan = ran })

	select {
	case <-done:
		t.Fatal("next tick resolved before drain")
	default:
	}

	s.Loop().Drain()

	select {
	case <-done:
	default:
		t.Fatal("next tick not resolved after drain")
	}
	if !sawRan {
		t.Error("next tick callback ran before the queued job")
	}
}

func TestNextTickWithEmptyQueue(t *testing.T) {
	s := New()
	done := s.NextTick(nil)
	s.Loop().Drain()

	select {
	case <-done:
	default:
		t.Fatal("next tick should resolve on the next drain")
	}
}

func TestRecursionLimitDropsJob(t *testing.T) {
	var reported error
	s := New(WithMaxRecursion(5), WithErrorHandler(func(err error) { reported = err }))

	runs := 0
	var job *Job
	job = NewJob("loop", func() {
		runs++
		s.QueueJob(job)
	})

	s.QueueJob(job)
	s.Loop().Drain()

	// First run plus five tolerated re-queues.
	if runs != 6 {
		t.Errorf("expected 6 runs, got %d", runs)
	}
	if !stderrors.Is(reported, errors.ErrRecursionLimit) {
		t.Errorf("expected recursion limit error, got %v", reported)
	}
	if s.Pending() {
		t.Error("dropped job should not stay queued")
	}

	// After the queue settles the job may run again.
	runs = 0
	other := NewJob("once", func() { runs++ })
	s.QueueJob(other)
	s.Loop().Drain()
	if runs != 1 {
		t.Errorf("expected scheduler to keep working, got %d runs", runs)
	}
}

func TestJobPanicDoesNotAbortFlush(t *testing.T) {
	var reported []error
	s := New(WithErrorHandler(func(err error) { reported = append(reported, err) }))

	ran := false
	s.QueueJob(NewJob("bad", func() { panic("boom") }))
	s.QueueJob(NewJob("good", func() { ran = true }))
	s.Loop().Drain()

	if !ran {
		t.Error("job after a panicking job should still run")
	}
	if len(reported) != 1 {
		t.Errorf("expected 1 reported error, got %d", len(reported))
	}
}

func TestFlushSynchronously(t *testing.T) {
	s := New()
	ran := false
	s.QueueJob(NewJob("work", func() { ran = true }))
	s.Flush()

	if !ran {
		t.Error("Flush should run queued jobs immediately")
	}

	// The posted flush task finds nothing to do.
	s.Loop().Drain()
	if s.Flushes() != 1 {
		t.Errorf("expected 1 flush, got %d", s.Flushes())
	}
}

func TestLoopRunServesPostedTasks(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	got := 0
	if err := l.Do(ctx, func() { got = 42 }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 {
		t.Errorf("got = %d", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if !stderrors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestLoopDrainCountsNestedPosts(t *testing.T) {
	l := NewLoop()
	l.Post(func() {
		l.Post(func() {})
	})
	if n := l.Drain(); n != 2 {
		t.Errorf("Drain() = %d, want 2", n)
	}
}
