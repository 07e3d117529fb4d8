package workerpool

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/gotask/pkg/common/validation"
	"github.com/vnykmshr/gotask/pkg/metrics"
	"github.com/vnykmshr/gotask/pkg/scheduling/scheduler"
)

// drainInterval bounds how long drain waits for a wakeup before polling the
// scheduler again.
const drainInterval = 10 * time.Millisecond

// Config holds configuration options for creating a worker pool.
type Config struct {
	// Name labels log records and metrics. Defaults to "workerpool".
	Name string `yaml:"name"`

	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int `yaml:"workers"`

	// AutoUpdate starts a dispatcher goroutine that calls Update whenever
	// work finishes, so tasks reach a terminal state without a caller loop.
	// It has no effect in nothreads builds, where Poll runs Update.
	AutoUpdate bool `yaml:"auto_update"`

	// Logger receives pool and scheduler records. Defaults to discarding.
	Logger *slog.Logger `yaml:"-"`

	// Observer is notified of task lifecycle events. Optional.
	Observer scheduler.Observer `yaml:"-"`

	// Registry records task and pool metrics. Optional.
	Registry *metrics.Registry `yaml:"-"`
}

// WorkerPool is a Scheduler whose Execute side is driven by a fixed set of
// worker goroutines. Update still runs on the caller unless AutoUpdate is set.
type WorkerPool struct {
	*scheduler.Scheduler

	config   Config
	logger   *slog.Logger
	registry *metrics.Registry
	busy     atomic.Int32

	workers workers

	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a worker pool with workerCount workers and default settings.
// It panics if workerCount is not positive.
func New(workerCount int) *WorkerPool {
	p, err := NewWithConfig(Config{WorkerCount: workerCount})
	if err != nil {
		panic("worker count must be positive")
	}
	return p
}

// NewWithConfig creates a worker pool and starts its workers.
func NewWithConfig(config Config) (*WorkerPool, error) {
	if err := validation.ValidatePositive("workerpool", "WorkerCount", config.WorkerCount); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = "workerpool"
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &WorkerPool{
		config:   config,
		logger:   logger.With("pool", config.Name),
		registry: config.Registry,
		done:     make(chan struct{}),
	}

	p.Scheduler = scheduler.NewWithConfig(scheduler.Config{
		Name:   config.Name,
		Locker: defaultLocker(),
		Logger: logger,
		Observer: scheduler.Observers(
			busyTracker{pool: p},
			config.Observer,
			scheduler.NewMetricsObserver(config.Registry, config.Name),
		),
		Notifier: p,
	})

	p.recordSize(config.WorkerCount)
	p.startWorkers()
	p.logger.Debug("worker pool started", "workers", config.WorkerCount, "auto_update", config.AutoUpdate)
	return p, nil
}

// Size returns the number of workers in the pool.
func (p *WorkerPool) Size() int {
	return p.config.WorkerCount
}

// BusyWorkers returns the number of workers currently running OnExecute.
func (p *WorkerPool) BusyWorkers() int {
	return int(p.busy.Load())
}

// WorkReady wakes idle workers.
func (p *WorkerPool) WorkReady() {
	p.workers.notify()
}

// WorkFinished wakes the dispatcher, if any.
func (p *WorkerPool) WorkFinished() {
	p.workers.notify()
}

// Shutdown stops the pool from accepting tasks, lets workers finish the work
// already queued, joins them, cancels paused tasks and drains every remaining
// task on the shutting-down goroutine. The returned channel closes once the
// pool holds no tasks.
func (p *WorkerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.Close()
		p.goShutdown(func() {
			defer close(p.done)

			if err := p.stopWorkers(); err != nil {
				p.logger.Error("worker exited with error", "error", err)
			}
			p.drain()
			p.recordSize(0)
			p.logger.Debug("worker pool stopped")
		})
	})
	return p.done
}

// drain finishes every task the scheduler still holds. Paused tasks are
// canceled since nothing will resume them. Between rounds it blocks until a
// task moves, which covers passes still running on a caller's goroutine.
func (p *WorkerPool) drain() {
	for {
		seen := p.workers.generation()
		for _, t := range p.PausedTasks() {
			t.Cancel()
		}
		p.Update()
		for p.Execute() {
		}
		p.Update()
		if p.TaskCount() == 0 {
			return
		}
		p.workers.settle(seen, drainInterval)
	}
}
