/*
Package workerpool runs scheduler Tasks on a fixed set of worker goroutines.

A WorkerPool embeds a *scheduler.Scheduler. Tasks are scheduled on it as
usual; N workers call Execute under fixed executor ids 1..N and sleep on a
condition variable while there is nothing to run.

Basic usage:

	pool := workerpool.New(4)
	defer func() { <-pool.Shutdown() }()

	task := scheduler.NewTask(scheduler.HandlerFunc(
		func(ctx context.Context, t *scheduler.Task, resume uint64) error {
			return render(ctx)
		}))
	task.Schedule(pool.Scheduler)

	for !task.TryWait() {
		pool.Poll() // post-execution and progress on this goroutine
	}

With AutoUpdate set, a dispatcher goroutine calls Update whenever a worker
finishes a pass, so callers can simply Wait:

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		Name:        "render",
		WorkerCount: 8,
		AutoUpdate:  true,
	})
	...
	task.Schedule(pool.Scheduler)
	task.Wait()

Shutdown:

Shutdown closes the scheduler to new tasks, lets workers finish what is
queued, joins them, cancels tasks still paused and drains the rest on the
shutting-down goroutine. The returned channel closes when the pool holds no
tasks:

	<-pool.Shutdown()

Configuration:

LoadConfig reads a YAML file and applies the GOTASK_WORKERS,
GOTASK_POOL_NAME and GOTASK_AUTO_UPDATE environment overrides:

	config, err := workerpool.LoadConfig("pool.yaml")
	if err != nil {
		log.Fatal(err)
	}
	config.Logger = slog.Default()
	pool, err := workerpool.NewWithConfig(config)

Metrics:

Config.Registry records the scheduler metrics plus the pool size and busy
worker gauges.

Single-threaded builds:

Building with the nothreads tag starts no goroutines. Poll then runs Update,
executes every ready task on the caller and runs Update again, and the
scheduler uses scheduler.NoopLocker.
*/
package workerpool
