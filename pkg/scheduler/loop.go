package scheduler

import (
	"context"
	"sync"
)

// Loop is a single-threaded task queue. It plays the role of the host's
// microtask queue: tasks posted while the loop is draining run in the same
// drain, so one Drain call is one "tick".
//
// Post may be called from any goroutine. Drain and Run must not be called
// concurrently with each other.
type Loop struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
	}
}

// Post appends a task to the queue.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of tasks waiting to run.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// collect atomically retrieves and clears the pending tasks.
func (l *Loop) collect() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	tasks := l.tasks
	l.tasks = nil
	return tasks
}

// Drain runs tasks in FIFO order until the queue is empty, including tasks
// posted by the tasks themselves. It returns the number of tasks run.
func (l *Loop) Drain() int {
	n := 0
	for {
		tasks := l.collect()
		if len(tasks) == 0 {
			return n
		}
		for _, task := range tasks {
			task()
			n++
		}
	}
}

// Run drains the loop whenever tasks are posted, until ctx is done.
// It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Do posts fn and blocks until it has run on the loop or ctx is done.
// It is how other goroutines hand mutations to a loop served by Run.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
