/*
Package scheduling groups the task execution packages:

  - scheduler: Task lifecycle and the scheduler that sequences it
  - workerpool: Fixed set of worker goroutines executing scheduled tasks

Scheduler:

Without workers the caller drives every stage:

	s := scheduler.New()
	task.Schedule(s)

	s.Update()  // pre-execution
	s.Execute() // one execution pass
	s.Update()  // post-execution and progress delivery

Worker Pool:

A pool runs Execute on its workers and, with AutoUpdate, Update on a
dispatcher goroutine:

	pool := workerpool.New(4)
	defer func() { <-pool.Shutdown() }()

	task.Schedule(pool.Scheduler)
	for !task.TryWait() {
		pool.Poll()
	}
*/
package scheduling
