package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ExecutorID identifies the goroutine that executes a Task. Worker pools use
// small fixed ids; caller-driven Execute calls get ids from FirstCallerExecutor
// upward.
type ExecutorID uint64

// Task is a unit of deferred work with an explicit lifecycle.
//
// A Task is created by its owner, handed to a Scheduler with Schedule, and
// stays owned by the caller: the scheduler never discards it. After it
// reaches Complete or Canceled it may be Reset and scheduled again.
type Task struct {
	id      string
	handler Handler

	pre      PreExecuter
	post     PostExecuter
	pauser   Pauser
	resumer  Resumer
	canceler Canceler
	resetter Resetter
	receiver ProgressReceiver

	// deliverMu keeps progress delivery and the start of an execution pass
	// from overlapping.
	deliverMu sync.Mutex

	mu              sync.Mutex
	state           State
	owner           *Scheduler
	resume          uint64
	err             error
	pending         []Progress
	cancelRequested bool
	pauseRequested  bool
	resuming        bool
	resetting       bool
	sealed          bool
	ran             bool
	executor        ExecutorID
	ctx             context.Context
	cancelCtx       context.CancelFunc
	done            chan struct{}
}

// TaskOption configures a Task at construction.
type TaskOption func(*Task)

// WithID sets the Task id instead of a generated UUID.
func WithID(id string) TaskOption {
	return func(t *Task) { t.id = id }
}

// NewTask creates an Initialised Task running h. The optional hook interfaces
// are detected on h once, here.
func NewTask(h Handler, opts ...TaskOption) *Task {
	if h == nil {
		panic("scheduler: task handler cannot be nil")
	}
	if hooks, ok := h.(*Hooks); ok && hooks.Execute == nil {
		panic("scheduler: Hooks.Execute cannot be nil")
	}

	t := &Task{
		id:      uuid.NewString(),
		handler: h,
		done:    make(chan struct{}),
	}
	t.pre, _ = h.(PreExecuter)
	t.post, _ = h.(PostExecuter)
	t.pauser, _ = h.(Pauser)
	t.resumer, _ = h.(Resumer)
	t.canceler, _ = h.(Canceler)
	t.resetter, _ = h.(Resetter)
	t.receiver, _ = h.(ProgressReceiver)

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the Task id.
func (t *Task) ID() string { return t.id }

// Handler returns the handler the Task was created with.
func (t *Task) Handler() Handler { return t.handler }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Scheduler returns the scheduler the Task was last scheduled on, or nil.
func (t *Task) Scheduler() *Scheduler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner
}

// ResumeLocation returns the location recorded by the last RequestPause. It is
// only meaningful between a pause and the matching resume.
func (t *Task) ResumeLocation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resume
}

// Executor reports which executor is running the Task, if any.
func (t *Task) Executor() (ExecutorID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executor, t.state == Executing
}

// Schedule hands the Task to s. It reports false unless the Task is
// Initialised; a terminal Task must be Reset first.
func (t *Task) Schedule(s *Scheduler) bool {
	if s == nil {
		return false
	}
	return s.Schedule(t)
}

// Cancel requests cancellation. It reports false if the Task is already
// terminal or a cancellation is already pending.
//
// An unscheduled Task is canceled on the spot. Otherwise cancellation is
// cooperative: the Task's context is canceled and the owning scheduler
// finishes the Task the next time it observes it. A running OnExecute is not
// interrupted.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	if t.state.Terminal() || t.cancelRequested || t.sealed {
		t.mu.Unlock()
		return false
	}
	t.cancelRequested = true
	if t.cancelCtx != nil {
		t.cancelCtx()
	}
	state, owner := t.state, t.owner
	if state == Initialised {
		t.sealed = true
	}
	t.mu.Unlock()

	if state == Initialised {
		t.notifyCanceled()
		t.mu.Lock()
		t.finishLocked(Canceled)
		t.mu.Unlock()
		return true
	}

	if owner != nil {
		owner.requestCancel(t)
	}
	return true
}

// CancelRequested reports whether cancellation was requested or forced by a
// hook failure. Long-running OnExecute hooks poll it.
func (t *Task) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}

// Reset returns a Canceled or Complete Task to Initialised, clearing the
// captured failure and resume location. A panic in OnReset leaves the Task
// Canceled with the panic captured and Reset reports false.
func (t *Task) Reset() bool {
	t.mu.Lock()
	if !t.state.Terminal() || t.resetting {
		t.mu.Unlock()
		return false
	}
	t.resetting = true
	t.mu.Unlock()

	if t.resetter != nil {
		err := safeCall("OnReset", func() error {
			t.resetter.OnReset(t)
			return nil
		})
		if err != nil {
			t.mu.Lock()
			if t.err == nil {
				t.err = err
			}
			t.state = Canceled
			t.resetting = false
			t.mu.Unlock()
			return false
		}
	}

	t.mu.Lock()
	leftover := t.pending
	t.pending = nil
	t.state = Initialised
	t.owner = nil
	t.resume = 0
	t.err = nil
	t.cancelRequested = false
	t.pauseRequested = false
	t.resuming = false
	t.resetting = false
	t.sealed = false
	t.ran = false
	t.executor = 0
	t.ctx = nil
	t.cancelCtx = nil
	t.done = make(chan struct{})
	t.mu.Unlock()

	for _, p := range leftover {
		releaseProgress(p)
	}
	return true
}

// RequestPause asks the scheduler to park the Task once the current OnExecute
// returns, recording loc for the next pass. It is only legal from inside
// OnExecute; anywhere else it reports false.
func (t *Task) RequestPause(loc uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Executing || t.cancelRequested {
		return false
	}
	t.pauseRequested = true
	t.resume = loc
	return true
}

// Resume puts a Paused Task back on its scheduler's ready queue. OnResume runs
// on the calling goroutine first. The Task does not pass through
// pre-execution again; its next OnExecute receives the paused location.
func (t *Task) Resume() bool {
	t.mu.Lock()
	if t.state != Paused || t.resuming || t.cancelRequested || t.owner == nil {
		t.mu.Unlock()
		return false
	}
	t.resuming = true
	owner, loc := t.owner, t.resume
	t.mu.Unlock()

	if t.resumer != nil {
		if err := safeCall("OnResume", func() error { return t.resumer.OnResume(t, loc) }); err != nil {
			owner.logHookFailure(t, "OnResume", err)
			t.fail(err)
		}
	}
	return owner.resume(t)
}

// SendProgress queues p for delivery to the Task's ProgressReceiver. It is
// only legal from inside OnExecute and reports false otherwise, in which case
// the caller keeps ownership of p.
func (t *Task) SendProgress(p Progress) bool {
	if p == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Executing {
		return false
	}
	t.pending = append(t.pending, p)
	return true
}

// PendingProgress returns the number of payloads waiting for delivery.
func (t *Task) PendingProgress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Done returns a channel closed when the current run reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Wait blocks until the Task is Complete or Canceled. Calling it from the
// Task's own hooks deadlocks.
func (t *Task) Wait() {
	<-t.Done()
}

// WaitContext is Wait bounded by ctx.
func (t *Task) WaitContext(ctx context.Context) error {
	select {
	case <-t.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryWait reports whether the Task has reached a terminal state, without
// blocking.
func (t *Task) TryWait() bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}

// Err returns the failure captured from a hook, or nil.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Failed reports whether a hook failure was captured.
func (t *Task) Failed() bool {
	return t.Err() != nil
}

// Rethrow reproduces the captured failure: a captured panic is re-panicked
// with its original value, a returned error is returned as is.
func (t *Task) Rethrow() error {
	err := t.Err()
	var pe *PanicError
	if errors.As(err, &pe) {
		panic(pe.Value)
	}
	return err
}

// fail records err as the captured failure if none is set yet and forces the
// Task toward Canceled.
func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
	t.cancelRequested = true
	if t.cancelCtx != nil {
		t.cancelCtx()
	}
}

func (t *Task) notifyCanceled() {
	if t.canceler == nil {
		return
	}
	err := safeCall("OnCanceled", func() error {
		t.canceler.OnCanceled(t)
		return nil
	})
	if err != nil {
		t.mu.Lock()
		if t.err == nil {
			t.err = err
		}
		t.mu.Unlock()
	}
}

// finishLocked moves the Task into final and wakes waiters. t.mu must be held.
func (t *Task) finishLocked(final State) {
	t.state = final
	t.executor = 0
	t.sealed = true
	if t.cancelCtx != nil {
		t.cancelCtx()
	}
	close(t.done)
}

func releaseProgress(p Progress) {
	// A panicking Release has nobody to report to once the Task is gone.
	_ = safeCall("Release", func() error {
		p.Release()
		return nil
	})
}
