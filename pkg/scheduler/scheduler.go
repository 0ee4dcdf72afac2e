package scheduler

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/vango-dev/viewstate/internal/errors"
)

// DefaultMaxRecursion is the number of consecutive flushes a job may
// re-queue itself before it is dropped.
const DefaultMaxRecursion = 100

var jobIDCounter atomic.Uint64

// Job is a unit of deferred work. Jobs are deduplicated by identity: queueing
// the same *Job twice before a flush runs it once.
type Job struct {
	id   uint64
	name string
	fn   func()
}

// NewJob creates a job. The name only appears in logs.
func NewJob(name string, fn func()) *Job {
	return &Job{
		id:   jobIDCounter.Add(1),
		name: name,
		fn:   fn,
	}
}

// ID returns the unique identifier for this job.
func (j *Job) ID() uint64 {
	return j.id
}

// Name returns the job name.
func (j *Job) Name() string {
	return j.name
}

// Scheduler collects jobs and flushes them once per loop tick, in insertion
// order of first enqueue. It is not safe for concurrent use; all calls must
// come from the goroutine that drains its Loop.
type Scheduler struct {
	loop   *Loop
	logger *slog.Logger

	queue  []*Job
	queued map[*Job]struct{}

	// flushPending is set while a flush task sits in the loop.
	flushPending bool
	flushing     bool

	// waiters run after the queue settles (see NextTick).
	waiters []func()

	// streak counts consecutive flushes in which a job re-queued itself.
	streak       map[*Job]int
	dropped      map[*Job]struct{}
	maxRecursion int

	onError func(error)
	flushes uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLoop sets the loop the scheduler posts flushes to.
func WithLoop(l *Loop) Option {
	return func(s *Scheduler) {
		s.loop = l
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMaxRecursion sets how many consecutive flushes a job may re-queue
// itself before being dropped. Zero or negative disables the check.
func WithMaxRecursion(n int) Option {
	return func(s *Scheduler) {
		s.maxRecursion = n
	}
}

// WithErrorHandler sets a callback for job panics and dropped jobs.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// New creates a scheduler. Without WithLoop it owns a fresh Loop.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		queued:       make(map[*Job]struct{}),
		streak:       make(map[*Job]int),
		dropped:      make(map[*Job]struct{}),
		maxRecursion: DefaultMaxRecursion,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loop == nil {
		s.loop = NewLoop()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "scheduler")
	return s
}

// Loop returns the loop driving this scheduler.
func (s *Scheduler) Loop() *Loop {
	return s.loop
}

// QueueJob adds a job to the queue and schedules a flush if none is pending.
func (s *Scheduler) QueueJob(j *Job) {
	if j == nil {
		return
	}
	if _, ok := s.dropped[j]; ok {
		return
	}
	if _, ok := s.queued[j]; ok {
		return
	}

	s.queued[j] = struct{}{}
	s.queue = append(s.queue, j)
	s.requestFlush()
}

// Pending reports whether jobs are waiting for the next flush.
func (s *Scheduler) Pending() bool {
	return len(s.queue) > 0
}

// Flushes returns how many flushes have run jobs.
func (s *Scheduler) Flushes() uint64 {
	return s.flushes
}

// NextTick registers fn to run once the queue has settled after the next
// flush, and returns a channel closed at the same moment. fn may be nil.
func (s *Scheduler) NextTick(fn func()) <-chan struct{} {
	done := make(chan struct{})
	s.waiters = append(s.waiters, func() {
		defer close(done)
		if fn != nil {
			fn()
		}
	})
	s.requestFlush()
	return done
}

// Flush runs queued jobs immediately instead of waiting for the loop.
func (s *Scheduler) Flush() {
	if s.flushing {
		return
	}
	s.flush()
}

func (s *Scheduler) requestFlush() {
	if s.flushPending {
		return
	}
	s.flushPending = true
	s.loop.Post(s.flush)
}

func (s *Scheduler) flush() {
	s.flushPending = false
	if s.flushing {
		return
	}

	jobs := s.queue
	s.queue = nil
	clear(s.queued)

	if len(jobs) > 0 {
		s.flushing = true
		for _, j := range jobs {
			s.runJob(j)
		}
		s.flushing = false
		s.flushes++
		s.trackRecursion(jobs)
	}

	if len(s.queue) > 0 {
		// Jobs queued during this flush already requested the next one.
		return
	}

	clear(s.streak)
	clear(s.dropped)

	waiters := s.waiters
	s.waiters = nil
	for _, w := range waiters {
		w()
	}
}

// trackRecursion updates re-queue streaks for jobs that just ran and drops
// any job whose streak passed the limit.
func (s *Scheduler) trackRecursion(ran []*Job) {
	for _, j := range ran {
		if _, again := s.queued[j]; !again {
			delete(s.streak, j)
			continue
		}
		s.streak[j]++
		if s.maxRecursion <= 0 || s.streak[j] <= s.maxRecursion {
			continue
		}

		s.removeQueued(j)
		s.dropped[j] = struct{}{}

		err := errors.New("E201").WithDetail(fmt.Sprintf("job %q re-queued itself in %d consecutive flushes", j.name, s.streak[j]))
		s.logger.Error("dropping recursive job", "job", j.name, "flushes", s.streak[j])
		s.report(err)
	}
}

func (s *Scheduler) removeQueued(j *Job) {
	delete(s.queued, j)
	for i, q := range s.queue {
		if q == j {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) runJob(j *Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("job panic", "job", j.name, "panic", r)
			s.report(fmt.Errorf("scheduler: job %q panicked: %v", j.name, r))
		}
	}()
	j.fn()
}

// Report passes err to the error handler set with WithErrorHandler. Work
// that runs outside the job queue, such as batched effects, reports its
// drops here too.
func (s *Scheduler) Report(err error) {
	s.report(err)
}

func (s *Scheduler) report(err error) {
	if s.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("error handler panic", "panic", r)
		}
	}()
	s.onError(err)
}
