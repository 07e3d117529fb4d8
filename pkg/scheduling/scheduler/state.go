package scheduler

import "fmt"

// State is the lifecycle state of a Task.
type State int32

const (
	// Initialised is the state of a new or reset Task.
	Initialised State = iota
	// Scheduled means the Task is queued and waiting for pre-execution, or
	// was resumed and is waiting for its next execution pass.
	Scheduled
	// PreExecution means the pre-execution hook is running or has finished
	// and the Task waits on readyToExecute.
	PreExecution
	// Paused means the Task asked to pause and waits for Resume.
	Paused
	// Executing means an executor is running the Task's Execute hook.
	Executing
	// PostExecution means execution ended and the Task waits for Update.
	PostExecution
	// Canceled is terminal: the Task was canceled or one of its hooks failed.
	Canceled
	// Complete is terminal: the Task ran to completion.
	Complete
)

var stateNames = [...]string{
	Initialised:   "initialised",
	Scheduled:     "scheduled",
	PreExecution:  "pre-execution",
	Paused:        "paused",
	Executing:     "executing",
	PostExecution: "post-execution",
	Canceled:      "canceled",
	Complete:      "complete",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether s is Canceled or Complete.
func (s State) Terminal() bool {
	return s == Canceled || s == Complete
}
