package workerpool

import (
	"time"

	"github.com/vnykmshr/gotask/pkg/scheduling/scheduler"
)

// busyTracker counts workers inside OnExecute and mirrors the count into the
// pool's busy gauge.
type busyTracker struct {
	scheduler.NopObserver
	pool *WorkerPool
}

func (b busyTracker) TaskStarted(*scheduler.Task, scheduler.ExecutorID) {
	b.pool.recordBusy(b.pool.busy.Add(1))
}

func (b busyTracker) TaskExecuted(*scheduler.Task, scheduler.ExecutorID, time.Duration, bool, error) {
	b.pool.recordBusy(b.pool.busy.Add(-1))
}

func (p *WorkerPool) recordBusy(n int32) {
	if p.registry == nil {
		return
	}
	p.registry.WorkerPoolBusy.WithLabelValues(p.config.Name).Set(float64(n))
}

func (p *WorkerPool) recordSize(n int) {
	if p.registry == nil {
		return
	}
	p.registry.WorkerPoolSize.WithLabelValues(p.config.Name).Set(float64(n))
}
