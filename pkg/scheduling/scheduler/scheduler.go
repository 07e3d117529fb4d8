package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FirstCallerExecutor is the first id handed out to caller-driven Execute
// calls. Ids below it are reserved for pool workers.
const FirstCallerExecutor ExecutorID = 1 << 32

// Notifier is told when work becomes available. Worker pools use it to wake
// idle workers and their dispatcher.
type Notifier interface {
	// WorkReady is called after a Task entered scheduled or readyToExecute.
	WorkReady()
	// WorkFinished is called after a Task entered readyToFinalize, the
	// paused set, or toCancel.
	WorkFinished()
}

// Config holds scheduler configuration.
type Config struct {
	// Name labels log records and metrics.
	Name string

	// Context is the parent of every Task run context. Canceling it requests
	// cancellation of running hooks without changing Task states.
	Context context.Context

	// Locker guards the queues. Defaults to a sync.Mutex; NoopLocker is
	// only safe when a single goroutine drives the scheduler.
	Locker sync.Locker

	// Logger receives lifecycle and failure records. Defaults to discarding.
	Logger *slog.Logger

	// Observer is notified of lifecycle events. Optional.
	Observer Observer

	// Notifier is told when work becomes available. Optional.
	Notifier Notifier
}

// Scheduler sequences Tasks through pre-execution, execution and
// post-execution.
//
// Without workers it is driven by the caller: Update runs pre-execution,
// post-execution and progress delivery, Execute runs one execution pass.
// A worker pool calls Execute from its workers instead.
//
// The queues are guarded by one lock that is never held while a hook runs.
type Scheduler struct {
	name     string
	ctx      context.Context
	logger   *slog.Logger
	observer Observer
	notifier Notifier

	mu        sync.Locker
	scheduled []*Task
	ready     []*Task
	finalize  []*Task
	toCancel  []*Task
	paused    []*Task
	running   map[ExecutorID]*Task
	inTransit int
	closed    bool

	nextCaller atomic.Uint64
}

// New creates a scheduler with default configuration.
func New() *Scheduler {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) *Scheduler {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	locker := cfg.Locker
	if locker == nil {
		locker = &sync.Mutex{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	return &Scheduler{
		name:     cfg.Name,
		ctx:      ctx,
		logger:   logger.With("scheduler", cfg.Name),
		observer: observer,
		notifier: notifier,
		mu:       locker,
		running:  make(map[ExecutorID]*Task),
	}
}

// Name returns the configured scheduler name.
func (s *Scheduler) Name() string { return s.name }

// Schedule validates the Task state and appends it to the scheduled queue.
// It reports false if the Task is nil, not Initialised, has a cancellation
// pending, or the scheduler is closed.
func (s *Scheduler) Schedule(t *Task) bool {
	if t == nil {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("schedule rejected: scheduler closed", "task", t.id)
		return false
	}

	t.mu.Lock()
	if t.state != Initialised || t.cancelRequested || t.sealed {
		state := t.state
		t.mu.Unlock()
		s.mu.Unlock()
		s.logger.Debug("schedule rejected", "task", t.id, "state", state)
		return false
	}
	t.state = Scheduled
	t.owner = s
	t.ctx, t.cancelCtx = context.WithCancel(s.ctx)
	t.mu.Unlock()

	s.scheduled = append(s.scheduled, t)
	s.mu.Unlock()

	s.logger.Debug("task scheduled", "task", t.id)
	s.observer.TaskScheduled(t)
	s.notifier.WorkReady()
	return true
}

// Update drains the cancel, scheduled and readyToFinalize queues on the
// calling goroutine and delivers progress buffered by paused Tasks. It never
// runs OnExecute. It returns the number of Tasks that reached a terminal
// state.
func (s *Scheduler) Update() int {
	finished := 0

	for _, t := range s.take(&s.toCancel) {
		if s.cancelQueued(t) {
			finished++
		}
		s.doneTransit()
	}

	for _, t := range s.take(&s.scheduled) {
		if s.preExecute(t) {
			s.push(&s.ready, t, true)
		} else {
			s.push(&s.finalize, t, false)
		}
		s.doneTransit()
	}

	for _, t := range s.take(&s.finalize) {
		s.complete(t)
		s.doneTransit()
		finished++
	}

	s.mu.Lock()
	paused := append([]*Task(nil), s.paused...)
	s.mu.Unlock()
	for _, t := range paused {
		s.deliver(t, true)
	}

	return finished
}

// Execute runs one execution pass on the calling goroutine under a fresh
// executor id. It reports false if no Task was waiting.
func (s *Scheduler) Execute() bool {
	return s.ExecuteOn(FirstCallerExecutor + ExecutorID(s.nextCaller.Add(1)-1))
}

// ExecuteOn runs one execution pass as executor id. It pops from
// readyToExecute first and otherwise takes a Task from the scheduled queue,
// running its pre-execution on this goroutine. It reports false if nothing
// was waiting or id is already executing a Task.
func (s *Scheduler) ExecuteOn(id ExecutorID) bool {
	s.mu.Lock()
	if _, busy := s.running[id]; busy {
		s.mu.Unlock()
		return false
	}

	var t *Task
	needsPre := false
	switch {
	case len(s.ready) > 0:
		t = popFront(&s.ready)
	case len(s.scheduled) > 0:
		t = popFront(&s.scheduled)
		needsPre = true
	default:
		s.mu.Unlock()
		return false
	}
	s.running[id] = t
	s.mu.Unlock()

	if needsPre && !s.preExecute(t) {
		s.finishPass(id, t, false, nil)
		return true
	}

	s.execute(id, t)
	return true
}

// TaskCount returns the number of Tasks the scheduler is holding: all queues,
// the paused set, Tasks being moved between queues and running executions.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled) + len(s.ready) + len(s.finalize) + len(s.toCancel) +
		len(s.paused) + len(s.running) + s.inTransit
}

// Stats is a snapshot of queue sizes.
type Stats struct {
	Scheduled int
	Ready     int
	Finalize  int
	ToCancel  int
	Paused    int
	Running   int
}

// Stats returns the current queue sizes.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Scheduled: len(s.scheduled),
		Ready:     len(s.ready),
		Finalize:  len(s.finalize),
		ToCancel:  len(s.toCancel),
		Paused:    len(s.paused),
		Running:   len(s.running),
	}
}

// Running returns a snapshot of which executor runs which Task.
func (s *Scheduler) Running() map[ExecutorID]*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[ExecutorID]*Task, len(s.running))
	for id, t := range s.running {
		snapshot[id] = t
	}
	return snapshot
}

// PausedTasks returns the Tasks currently parked in the paused set.
func (s *Scheduler) PausedTasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Task(nil), s.paused...)
}

// Close stops the scheduler from accepting new Tasks. Tasks already held keep
// moving through their lifecycle.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// preExecute runs OnPreExecute and reports whether the Task may execute.
func (s *Scheduler) preExecute(t *Task) bool {
	t.mu.Lock()
	t.state = PreExecution
	ctx, canceled := t.ctx, t.cancelRequested
	t.mu.Unlock()

	if canceled {
		return false
	}

	if t.pre != nil {
		if err := safeCall("OnPreExecute", func() error { return t.pre.OnPreExecute(ctx, t) }); err != nil {
			s.logHookFailure(t, "OnPreExecute", err)
			t.fail(err)
			return false
		}
	}
	return !t.CancelRequested()
}

// execute runs one OnExecute pass for t as executor id.
func (s *Scheduler) execute(id ExecutorID, t *Task) {
	t.deliverMu.Lock()
	t.mu.Lock()
	if t.cancelRequested {
		t.mu.Unlock()
		t.deliverMu.Unlock()
		s.finishPass(id, t, false, nil)
		return
	}
	t.state = Executing
	t.executor = id
	t.ran = true
	t.pauseRequested = false
	resume, ctx := t.resume, t.ctx
	t.mu.Unlock()
	t.deliverMu.Unlock()

	s.observer.TaskStarted(t, id)
	start := time.Now()
	err := safeCall("OnExecute", func() error { return t.handler.OnExecute(ctx, t, resume) })
	elapsed := time.Since(start)

	t.mu.Lock()
	paused := err == nil && t.pauseRequested && !t.cancelRequested
	loc := t.resume
	t.mu.Unlock()

	if err != nil {
		s.logHookFailure(t, "OnExecute", err)
		t.fail(err)
	}

	if paused && t.pauser != nil {
		perr := safeCall("OnPause", func() error {
			t.pauser.OnPause(t, loc)
			return nil
		})
		if perr != nil {
			s.logHookFailure(t, "OnPause", perr)
			t.fail(perr)
			paused = false
		}
	}

	s.finishPass(id, t, paused, func(parked bool) {
		s.observer.TaskExecuted(t, id, elapsed, parked, err)
	})
}

// finishPass unregisters id and parks t either in the paused set or on
// readyToFinalize. report, if set, sees the final decision before waiters
// are notified.
func (s *Scheduler) finishPass(id ExecutorID, t *Task, paused bool, report func(paused bool)) {
	s.mu.Lock()
	if current, ok := s.running[id]; !ok || current != t {
		s.mu.Unlock()
		s.logger.Error("executor registration corrupted", "executor", id, "task", t.id)
		panic(fmt.Sprintf("scheduler: executor %d finished task %s it was not registered for", id, t.id))
	}
	delete(s.running, id)

	t.mu.Lock()
	if paused && t.cancelRequested {
		paused = false
	}
	t.executor = 0
	if paused {
		t.state = Paused
	} else {
		t.state = PostExecution
	}
	t.mu.Unlock()

	if paused {
		s.paused = append(s.paused, t)
	} else {
		s.finalize = append(s.finalize, t)
	}
	s.mu.Unlock()

	if report != nil {
		report(paused)
	}
	if paused {
		s.logger.Debug("task paused", "task", t.id, "resume", t.ResumeLocation())
	}
	s.notifier.WorkFinished()
}

// complete runs post-execution for a Task leaving the scheduler. OnPostExecute
// only runs if OnExecute ran at least once.
func (s *Scheduler) complete(t *Task) {
	t.mu.Lock()
	t.state = PostExecution
	ran, ctx := t.ran, t.ctx
	t.mu.Unlock()

	if ran && t.post != nil {
		if err := safeCall("OnPostExecute", func() error { return t.post.OnPostExecute(ctx, t) }); err != nil {
			s.logHookFailure(t, "OnPostExecute", err)
			t.fail(err)
		}
	}

	s.deliver(t, false)
	s.terminate(t)
}

// terminate moves t into its terminal state, running OnCanceled first when
// the Task ends canceled.
func (s *Scheduler) terminate(t *Task) {
	t.mu.Lock()
	canceled := t.cancelRequested
	t.sealed = true
	t.mu.Unlock()

	if canceled {
		t.notifyCanceled()
	}

	final := Complete
	if canceled {
		final = Canceled
	}

	t.mu.Lock()
	t.finishLocked(final)
	err := t.err
	t.mu.Unlock()

	s.logger.Debug("task finished", "task", t.id, "state", final, "error", err)
	s.observer.TaskTerminated(t, final, err)
}

// cancelQueued finishes a Task taken from toCancel if it is still parked in a
// queue. Tasks that are executing or finalizing are left to those paths, and
// an entry left over from a run that was since Reset is ignored.
func (s *Scheduler) cancelQueued(t *Task) bool {
	s.mu.Lock()
	t.mu.Lock()
	skip := t.resuming || !t.cancelRequested
	t.mu.Unlock()
	if skip {
		s.mu.Unlock()
		return false
	}
	found := remove(&s.scheduled, t) || remove(&s.ready, t) || remove(&s.paused, t)
	if found {
		s.inTransit++
	}
	s.mu.Unlock()

	if !found {
		return false
	}
	defer s.doneTransit()

	s.complete(t)
	return true
}

// requestCancel queues t for cancellation on the next Update.
func (s *Scheduler) requestCancel(t *Task) {
	s.mu.Lock()
	s.toCancel = append(s.toCancel, t)
	s.mu.Unlock()
	s.notifier.WorkFinished()
}

// resume moves a paused Task back to readyToExecute.
func (s *Scheduler) resume(t *Task) bool {
	s.mu.Lock()
	t.mu.Lock()
	t.resuming = false
	if t.cancelRequested {
		t.mu.Unlock()
		s.mu.Unlock()
		s.requestCancel(t)
		return false
	}
	if !remove(&s.paused, t) {
		t.mu.Unlock()
		s.mu.Unlock()
		return false
	}
	t.state = Scheduled
	t.mu.Unlock()
	s.ready = append(s.ready, t)
	s.mu.Unlock()

	s.logger.Debug("task resumed", "task", t.id)
	s.notifier.WorkReady()
	return true
}

// deliver hands buffered progress to the Task's receiver and releases every
// payload. With pausedOnly set it does nothing unless the Task is parked.
func (s *Scheduler) deliver(t *Task, pausedOnly bool) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	if pausedOnly && (t.state != Paused || t.resuming) {
		t.mu.Unlock()
		return
	}
	batch := t.pending
	t.pending = nil
	t.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	delivered := 0
	failed := false
	for _, p := range batch {
		if t.receiver != nil && !failed {
			err := safeCall("OnProgress", func() error { return t.receiver.OnProgress(t, p) })
			if err != nil {
				s.logHookFailure(t, "OnProgress", err)
				t.fail(err)
				failed = true
			} else {
				delivered++
			}
		}
		releaseProgress(p)
	}

	if delivered > 0 {
		s.observer.ProgressDelivered(t, delivered)
	}
	if failed && pausedOnly {
		s.requestCancel(t)
	}
}

// take swaps out a queue for processing outside the lock.
func (s *Scheduler) take(queue *[]*Task) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := *queue
	*queue = nil
	s.inTransit += len(batch)
	return batch
}

func (s *Scheduler) push(queue *[]*Task, t *Task, ready bool) {
	s.mu.Lock()
	*queue = append(*queue, t)
	s.mu.Unlock()
	if ready {
		s.notifier.WorkReady()
	}
}

func (s *Scheduler) doneTransit() {
	s.mu.Lock()
	s.inTransit--
	s.mu.Unlock()
}

func (s *Scheduler) logHookFailure(t *Task, hook string, err error) {
	s.logger.Warn("task hook failed", "task", t.id, "hook", hook, "error", err)
}

func popFront(queue *[]*Task) *Task {
	q := *queue
	t := q[0]
	q[0] = nil
	*queue = q[1:]
	return t
}

// remove deletes t from queue by linear search, preserving order.
func remove(queue *[]*Task, t *Task) bool {
	q := *queue
	for i, candidate := range q {
		if candidate == t {
			copy(q[i:], q[i+1:])
			q[len(q)-1] = nil
			*queue = q[:len(q)-1]
			return true
		}
	}
	return false
}
