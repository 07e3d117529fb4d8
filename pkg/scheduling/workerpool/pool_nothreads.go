//go:build nothreads

package workerpool

import (
	"sync"
	"time"

	"github.com/vnykmshr/gotask/pkg/scheduling/scheduler"
)

// workers is empty in single-threaded builds: the caller drives every
// execution through Poll.
type workers struct{}

func defaultLocker() sync.Locker {
	return scheduler.NoopLocker{}
}

func (p *WorkerPool) startWorkers() {
	if p.config.AutoUpdate {
		p.logger.Warn("auto_update ignored in nothreads build; call Poll")
	}
}

func (w *workers) notify() {}

func (w *workers) generation() uint64 { return 0 }

// settle returns at once: nothing else runs, so every round of drain makes
// progress by itself.
func (w *workers) settle(uint64, time.Duration) {}

func (p *WorkerPool) stopWorkers() error { return nil }

func (p *WorkerPool) goShutdown(fn func()) {
	fn()
}

// Poll runs Update, executes every ready task on the calling goroutine and
// runs Update again. It returns the number of tasks that reached a terminal
// state.
func (p *WorkerPool) Poll() int {
	finished := p.Update()
	for p.Execute() {
	}
	return finished + p.Update()
}
