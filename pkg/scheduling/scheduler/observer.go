package scheduler

import "time"

// Observer receives scheduler lifecycle events. Callbacks run on whichever
// goroutine drives the transition and must not block or call back into the
// scheduler's locking methods.
type Observer interface {
	TaskScheduled(t *Task)
	TaskStarted(t *Task, executor ExecutorID)
	// TaskExecuted reports a finished OnExecute pass. paused is true only if
	// the Task was parked in the paused set.
	TaskExecuted(t *Task, executor ExecutorID, elapsed time.Duration, paused bool, err error)
	ProgressDelivered(t *Task, n int)
	TaskTerminated(t *Task, final State, err error)
}

// NopObserver ignores every event. Embed it to implement a subset of
// Observer.
type NopObserver struct{}

func (NopObserver) TaskScheduled(*Task)                                         {}
func (NopObserver) TaskStarted(*Task, ExecutorID)                               {}
func (NopObserver) TaskExecuted(*Task, ExecutorID, time.Duration, bool, error) {}
func (NopObserver) ProgressDelivered(*Task, int)                                {}
func (NopObserver) TaskTerminated(*Task, State, error)                          {}

// Observers fans events out to each non-nil observer in order.
func Observers(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) TaskScheduled(t *Task) {
	for _, o := range m {
		o.TaskScheduled(t)
	}
}

func (m multiObserver) TaskStarted(t *Task, executor ExecutorID) {
	for _, o := range m {
		o.TaskStarted(t, executor)
	}
}

func (m multiObserver) TaskExecuted(t *Task, executor ExecutorID, elapsed time.Duration, paused bool, err error) {
	for _, o := range m {
		o.TaskExecuted(t, executor, elapsed, paused, err)
	}
}

func (m multiObserver) ProgressDelivered(t *Task, n int) {
	for _, o := range m {
		o.ProgressDelivered(t, n)
	}
}

func (m multiObserver) TaskTerminated(t *Task, final State, err error) {
	for _, o := range m {
		o.TaskTerminated(t, final, err)
	}
}

type nopNotifier struct{}

func (nopNotifier) WorkReady()    {}
func (nopNotifier) WorkFinished() {}

// NoopLocker satisfies sync.Locker without locking. Use it only when a
// single goroutine calls Schedule, Update and Execute.
type NoopLocker struct{}

func (NoopLocker) Lock()   {}
func (NoopLocker) Unlock() {}
