//go:build !nothreads

package workerpool

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/gotask/pkg/scheduling/scheduler"
)

// workers is the goroutine side of the pool: N workers plus an optional
// dispatcher, all woken through one condition variable.
type workers struct {
	mu   sync.Mutex
	cond *sync.Cond
	gen  uint64
	exit bool

	group errgroup.Group
}

func defaultLocker() sync.Locker {
	return &sync.Mutex{}
}

func (p *WorkerPool) startWorkers() {
	p.workers.cond = sync.NewCond(&p.workers.mu)

	for i := 1; i <= p.config.WorkerCount; i++ {
		id := scheduler.ExecutorID(i)
		p.workers.group.Go(func() error {
			p.work(id)
			return nil
		})
	}

	if p.config.AutoUpdate {
		p.workers.group.Go(func() error {
			p.dispatch()
			return nil
		})
	}
}

// notify bumps the work generation and wakes every waiter. A waiter that
// sampled the generation before trying for work cannot miss this wakeup.
func (w *workers) notify() {
	w.mu.Lock()
	w.gen++
	w.mu.Unlock()
	w.cond.Broadcast()
}

// wait blocks until the generation moves past seen or the pool is exiting.
// It reports whether the pool is exiting.
func (w *workers) wait(seen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.gen == seen && !w.exit {
		w.cond.Wait()
	}
	return w.exit
}

// settle blocks until the generation moves past seen or d elapses. It
// ignores the exit flag so it can be used after the workers are joined.
func (w *workers) settle(seen uint64, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	expired := false
	timer := time.AfterFunc(d, func() {
		w.mu.Lock()
		expired = true
		w.mu.Unlock()
		w.cond.Broadcast()
	})
	defer timer.Stop()

	for w.gen == seen && !expired {
		w.cond.Wait()
	}
}

func (w *workers) generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

// work is the main loop for a worker.
func (p *WorkerPool) work(id scheduler.ExecutorID) {
	log := p.logger.With("worker", uint64(id))
	log.Debug("worker started")
	defer log.Debug("worker stopped")

	for {
		seen := p.workers.generation()
		if p.ExecuteOn(id) {
			continue
		}
		if p.workers.wait(seen) {
			for p.ExecuteOn(id) {
			}
			return
		}
	}
}

// dispatch runs Update whenever a worker finishes a pass or a cancel is
// requested.
func (p *WorkerPool) dispatch() {
	for {
		seen := p.workers.generation()
		p.Update()
		if p.workers.wait(seen) {
			return
		}
	}
}

// stopWorkers sets the exit flag, wakes everyone and joins the group.
func (p *WorkerPool) stopWorkers() error {
	p.workers.mu.Lock()
	p.workers.exit = true
	p.workers.mu.Unlock()
	p.workers.cond.Broadcast()
	return p.workers.group.Wait()
}

func (p *WorkerPool) goShutdown(fn func()) {
	go fn()
}

// Poll runs one Update pass on the calling goroutine and returns the number
// of tasks that reached a terminal state. Workers handle execution.
func (p *WorkerPool) Poll() int {
	return p.Update()
}
