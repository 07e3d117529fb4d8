/*
Package gotask provides cooperative tasks with an explicit lifecycle, a
scheduler that sequences them, and a worker pool that executes them.

Task Scheduling (pkg/scheduling):
  - scheduler: Task lifecycle, pause/resume, progress, cancellation and cron triggers
  - workerpool: Fixed worker goroutines driving a scheduler

Progress (pkg/progress):
  - redisfeed: Publish task progress to a Redis pub/sub channel

Metrics (pkg/metrics):
  - Prometheus collectors for schedulers and pools

Example usage:

	import (
		"github.com/vnykmshr/gotask/pkg/scheduling/scheduler"
		"github.com/vnykmshr/gotask/pkg/scheduling/workerpool"
	)

	pool, _ := workerpool.NewWithConfig(workerpool.Config{WorkerCount: 4, AutoUpdate: true})
	defer func() { <-pool.Shutdown() }()

	task := scheduler.NewTask(scheduler.HandlerFunc(
		func(ctx context.Context, t *scheduler.Task, resume uint64) error {
			return process(ctx)
		}))
	task.Schedule(pool.Scheduler)
	task.Wait()
*/
package gotask
