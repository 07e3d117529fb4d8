package scheduler

import "context"

// Handler is the work a Task performs. It is the only hook a Task must
// provide.
//
// OnExecute is called with the location passed to the last RequestPause, or 0
// on the first pass. It runs on an executor goroutine and may take as long as
// it needs; the scheduler never preempts it. A handler that wants to be
// cancelable watches ctx or polls Task.CancelRequested and returns promptly.
type Handler interface {
	OnExecute(ctx context.Context, t *Task, resume uint64) error
}

// PreExecuter is implemented by handlers that prepare state before the first
// execution pass. A returned error or a panic cancels the Task.
type PreExecuter interface {
	OnPreExecute(ctx context.Context, t *Task) error
}

// PostExecuter is implemented by handlers that clean up after execution.
// It runs on the goroutine calling Scheduler.Update, and only if OnExecute ran.
type PostExecuter interface {
	OnPostExecute(ctx context.Context, t *Task) error
}

// Pauser is notified on the executor goroutine after an execution pass ended
// with a pause request.
type Pauser interface {
	OnPause(t *Task, resume uint64)
}

// Resumer is notified on the goroutine calling Task.Resume.
type Resumer interface {
	OnResume(t *Task, resume uint64) error
}

// Canceler is notified exactly once when the Task ends canceled.
type Canceler interface {
	OnCanceled(t *Task)
}

// Resetter is notified when a terminal Task is reset to Initialised.
type Resetter interface {
	OnReset(t *Task)
}

// ProgressReceiver receives the payloads sent with Task.SendProgress. It runs
// on the goroutine calling Scheduler.Update, never concurrently with OnExecute.
type ProgressReceiver interface {
	OnProgress(t *Task, p Progress) error
}

// HandlerFunc is a function type that implements the Handler interface.
type HandlerFunc func(ctx context.Context, t *Task, resume uint64) error

// OnExecute implements the Handler interface for HandlerFunc.
func (f HandlerFunc) OnExecute(ctx context.Context, t *Task, resume uint64) error {
	return f(ctx, t, resume)
}

// Hooks assembles a handler from closures. Nil fields are skipped; Execute
// must be set.
type Hooks struct {
	PreExecute  func(ctx context.Context, t *Task) error
	Execute     func(ctx context.Context, t *Task, resume uint64) error
	PostExecute func(ctx context.Context, t *Task) error
	Pause       func(t *Task, resume uint64)
	Resume      func(t *Task, resume uint64) error
	Canceled    func(t *Task)
	Reset       func(t *Task)
	Progress    func(t *Task, p Progress) error
}

// OnPreExecute calls PreExecute if set.
func (h *Hooks) OnPreExecute(ctx context.Context, t *Task) error {
	if h.PreExecute == nil {
		return nil
	}
	return h.PreExecute(ctx, t)
}

// OnExecute calls Execute.
func (h *Hooks) OnExecute(ctx context.Context, t *Task, resume uint64) error {
	return h.Execute(ctx, t, resume)
}

// OnPostExecute calls PostExecute if set.
func (h *Hooks) OnPostExecute(ctx context.Context, t *Task) error {
	if h.PostExecute == nil {
		return nil
	}
	return h.PostExecute(ctx, t)
}

// OnPause calls Pause if set.
func (h *Hooks) OnPause(t *Task, resume uint64) {
	if h.Pause != nil {
		h.Pause(t, resume)
	}
}

// OnResume calls Resume if set. A returned error cancels the Task.
func (h *Hooks) OnResume(t *Task, resume uint64) error {
	if h.Resume == nil {
		return nil
	}
	return h.Resume(t, resume)
}

// OnCanceled calls Canceled if set.
func (h *Hooks) OnCanceled(t *Task) {
	if h.Canceled != nil {
		h.Canceled(t)
	}
}

// OnReset calls Reset if set.
func (h *Hooks) OnReset(t *Task) {
	if h.Reset != nil {
		h.Reset(t)
	}
}

// OnProgress calls Progress if set. A Hooks value always receives progress,
// so payloads are counted as delivered even when Progress is nil.
func (h *Hooks) OnProgress(t *Task, p Progress) error {
	if h.Progress == nil {
		return nil
	}
	return h.Progress(t, p)
}
