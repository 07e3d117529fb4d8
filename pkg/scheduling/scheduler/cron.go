package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts an optional leading seconds field and descriptors such
// as "@hourly" or "@every 5s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Clock supplies the current time to a CronTrigger.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// CronConfig configures a CronTrigger.
type CronConfig struct {
	// Location evaluates the expression in this zone. Defaults to time.Local.
	Location *time.Location

	// TickInterval is how often the trigger checks the clock. Defaults to 50ms.
	TickInterval time.Duration

	// Clock defaults to the system clock.
	Clock Clock

	// MaxRuns stops the trigger after this many fires (0 = unlimited).
	MaxRuns int
}

// CronTrigger schedules one Task every time a cron expression fires.
//
// A Task that reached Complete or Canceled is Reset before being scheduled
// again. A fire that finds the previous run still in flight is skipped.
type CronTrigger struct {
	scheduler *Scheduler
	task      *Task
	expr      string
	schedule  cron.Schedule
	location  *time.Location
	clock     Clock
	tick      time.Duration
	maxRuns   int

	mu      sync.Mutex
	next    time.Time
	fires   int
	skipped int
	started bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// ValidateCronExpression reports whether expr parses.
func ValidateCronExpression(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NewCronTrigger creates a trigger that schedules task on s whenever expr
// fires. It does not start until Start is called.
func NewCronTrigger(s *Scheduler, expr string, task *Task, cfg CronConfig) (*CronTrigger, error) {
	if s == nil {
		return nil, fmt.Errorf("cron trigger: scheduler cannot be nil")
	}
	if task == nil {
		return nil, fmt.Errorf("cron trigger: task cannot be nil")
	}
	if expr == "" {
		return nil, fmt.Errorf("cron trigger: expression cannot be empty")
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 50 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}

	ct := &CronTrigger{
		scheduler: s,
		task:      task,
		expr:      expr,
		schedule:  schedule,
		location:  cfg.Location,
		clock:     cfg.Clock,
		tick:      cfg.TickInterval,
		maxRuns:   cfg.MaxRuns,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	ct.next = schedule.Next(ct.clock.Now().In(ct.location))
	return ct, nil
}

// Expression returns the cron expression the trigger was built with.
func (ct *CronTrigger) Expression() string { return ct.expr }

// Next returns the next fire time.
func (ct *CronTrigger) Next() time.Time {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.next
}

// Fires returns how many times the Task was scheduled by the trigger.
func (ct *CronTrigger) Fires() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.fires
}

// Skipped returns how many fires found the Task still in flight.
func (ct *CronTrigger) Skipped() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.skipped
}

// Start launches the polling goroutine. Calling it twice is a no-op.
func (ct *CronTrigger) Start() {
	ct.mu.Lock()
	if ct.started {
		ct.mu.Unlock()
		return
	}
	ct.started = true
	ct.mu.Unlock()

	go ct.run()
}

// Stop halts the trigger. The returned channel closes once the polling
// goroutine has exited. A Task already scheduled keeps running.
func (ct *CronTrigger) Stop() <-chan struct{} {
	ct.stopOnce.Do(func() {
		close(ct.stop)
		ct.mu.Lock()
		started := ct.started
		ct.started = true
		ct.mu.Unlock()
		if !started {
			close(ct.done)
		}
	})
	return ct.done
}

func (ct *CronTrigger) run() {
	defer close(ct.done)

	ticker := time.NewTicker(ct.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ct.stop:
			return
		case <-ticker.C:
			if !ct.check(ct.clock.Now()) {
				return
			}
		}
	}
}

// check fires if now reached the next fire time. It reports false once the
// trigger has nothing left to do.
func (ct *CronTrigger) check(now time.Time) bool {
	now = now.In(ct.location)

	ct.mu.Lock()
	if now.Before(ct.next) {
		ct.mu.Unlock()
		return true
	}
	ct.next = ct.schedule.Next(now)
	ct.mu.Unlock()

	if ct.task.State().Terminal() {
		ct.task.Reset()
	}

	scheduled := ct.task.State() == Initialised && ct.scheduler.Schedule(ct.task)

	ct.mu.Lock()
	defer ct.mu.Unlock()
	if !scheduled {
		ct.skipped++
		ct.scheduler.logger.Debug("cron fire skipped", "task", ct.task.ID(), "expr", ct.expr)
		return !ct.scheduler.Closed()
	}
	ct.fires++
	ct.scheduler.logger.Debug("cron fired", "task", ct.task.ID(), "expr", ct.expr, "next", ct.next)
	return ct.maxRuns <= 0 || ct.fires < ct.maxRuns
}
