/*
Package scheduler provides cooperative tasks with an explicit lifecycle and the
scheduler that moves them through it.

A Task wraps a Handler and walks these states:

	Initialised -> Scheduled -> PreExecution -> Executing -> PostExecution -> Complete
	                                              |    ^
	                                              v    |
	                                             Paused (Resume)

Any non-terminal state may end in Canceled instead. A terminal Task can be
Reset and scheduled again.

Basic Usage:

	s := scheduler.New()

	task := scheduler.NewTask(scheduler.HandlerFunc(
		func(ctx context.Context, t *scheduler.Task, resume uint64) error {
			fmt.Println("working")
			return nil
		}))

	task.Schedule(s)
	s.Update()  // pre-execution
	s.Execute() // execution on this goroutine
	s.Update()  // post-execution, task becomes Complete

Without a worker pool the caller drives the scheduler: Update runs
pre-execution, post-execution, cancellation and progress delivery; Execute runs
one execution pass. The workerpool package calls Execute from a fixed set of
worker goroutines instead.

Hooks:

Only OnExecute is required. A handler may also implement PreExecuter,
PostExecuter, Pauser, Resumer, Canceler, Resetter and ProgressReceiver, or be
assembled from closures with Hooks:

	task := scheduler.NewTask(&scheduler.Hooks{
		Execute: func(ctx context.Context, t *scheduler.Task, resume uint64) error {
			return upload(ctx)
		},
		Canceled: func(t *scheduler.Task) { log.Println("upload canceled") },
	})

A hook fails by returning an error or by panicking. The first failure is
captured, the Task is forced toward Canceled, and Err, Failed and Rethrow
expose it afterwards.

Pause and Resume:

A long OnExecute may call RequestPause(loc) and return. The Task is parked in
the scheduler's paused set until Resume puts it back on the ready queue; its
next OnExecute receives loc. The handler owns the meaning of loc.

Progress:

OnExecute may hand payloads to SendProgress. They are delivered in send order
to OnProgress on the goroutine running Update, and each payload's Release is
called exactly once.

Cron:

CronTrigger schedules a Task each time a cron expression fires, resetting it
when the previous run ended and skipping the fire while it is still running.

Observability:

Config.Logger receives slog records; Config.Observer receives lifecycle
events. NewMetricsObserver records them in a metrics.Registry.
*/
package scheduler
