package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/gotask/internal/testutil"
)

func TestScheduler_Lifecycle(t *testing.T) {
	s := New()
	hooks, rec := recordingHooks(nil)
	task := NewTask(hooks)

	if !s.Schedule(task) {
		t.Fatal("Schedule should accept an Initialised task")
	}
	testutil.AssertEqual(t, task.State(), Scheduled)
	testutil.AssertEqual(t, task.Scheduler(), s)
	testutil.AssertEqual(t, s.TaskCount(), 1)

	if s.Schedule(task) {
		t.Error("scheduling twice should fail")
	}
	if s.Schedule(nil) {
		t.Error("scheduling nil should fail")
	}

	testutil.AssertEqual(t, s.Update(), 0)
	testutil.AssertEqual(t, task.State(), PreExecution)
	testutil.AssertEqual(t, s.Stats().Ready, 1)

	if !s.Execute() {
		t.Fatal("Execute should find the ready task")
	}
	testutil.AssertEqual(t, task.State(), PostExecution)
	if s.Execute() {
		t.Error("Execute should find nothing left")
	}

	testutil.AssertEqual(t, s.Update(), 1)
	testutil.AssertEqual(t, task.State(), Complete)
	testutil.AssertEqual(t, s.TaskCount(), 0)
	testutil.AssertEqual(t, task.TryWait(), true)

	want := []string{"pre", "execute", "post"}
	testutil.AssertEqual(t, fmt.Sprint(rec.list()), fmt.Sprint(want))
}

func TestScheduler_ExecutePicksUpScheduled(t *testing.T) {
	s := New()
	hooks, rec := recordingHooks(nil)
	task := NewTask(hooks)
	s.Schedule(task)

	if !s.Execute() {
		t.Fatal("Execute should take a task straight from the scheduled queue")
	}
	testutil.AssertEqual(t, task.State(), PostExecution)
	testutil.AssertEqual(t, rec.count("pre"), 1)

	s.Update()
	testutil.AssertEqual(t, task.State(), Complete)
}

func TestScheduler_CancelScheduled(t *testing.T) {
	s := New()
	hooks, rec := recordingHooks(nil)
	task := NewTask(hooks)
	s.Schedule(task)

	if !task.Cancel() {
		t.Fatal("Cancel on a scheduled task should succeed")
	}
	if task.Cancel() {
		t.Error("Cancel with a pending request should be a no-op")
	}
	if s.Schedule(task) {
		t.Error("scheduling a task with a pending cancel should fail")
	}

	testutil.AssertEqual(t, s.Update(), 1)
	testutil.AssertEqual(t, task.State(), Canceled)
	testutil.AssertEqual(t, s.TaskCount(), 0)
	testutil.AssertEqual(t, rec.count("canceled"), 1)
	testutil.AssertEqual(t, rec.count("pre"), 0)
	testutil.AssertEqual(t, rec.count("execute"), 0)
	testutil.AssertEqual(t, rec.count("post"), 0)

	if task.Cancel() {
		t.Error("Cancel on a canceled task should be a no-op")
	}
	s.Update()
	testutil.AssertEqual(t, rec.count("canceled"), 1)
}

func TestScheduler_CancelReady(t *testing.T) {
	s := New()
	hooks, rec := recordingHooks(nil)
	task := NewTask(hooks)
	s.Schedule(task)
	s.Update()

	task.Cancel()
	testutil.AssertEqual(t, s.Update(), 1)
	testutil.AssertEqual(t, task.State(), Canceled)
	testutil.AssertEqual(t, rec.count("execute"), 0)
	if s.Execute() {
		t.Error("canceled task must not be executed")
	}
}

func TestScheduler_CancelDuringExecute(t *testing.T) {
	s := New()
	hooks, rec := recordingHooks(func(_ context.Context, task *Task, _ uint64) error {
		if !task.Cancel() {
			t.Error("Cancel from inside OnExecute should succeed")
		}
		if !task.CancelRequested() {
			t.Error("CancelRequested should report the request")
		}
		if task.RequestPause(1) {
			t.Error("RequestPause after Cancel should fail")
		}
		return nil
	})
	task := NewTask(hooks)
	s.Schedule(task)
	runToEnd(t, s)

	testutil.AssertEqual(t, task.State(), Canceled)
	want := []string{"pre", "execute", "post", "canceled"}
	testutil.AssertEqual(t, fmt.Sprint(rec.list()), fmt.Sprint(want))
}

func TestScheduler_HookFailures(t *testing.T) {
	errHook := errors.New("hook failed")

	tests := []struct {
		name         string
		hooks        func(rec *recorder) *Hooks
		wantHook     string
		wantExecuted bool
	}{
		{
			name: "pre-execute error",
			hooks: func(rec *recorder) *Hooks {
				return &Hooks{
					PreExecute: func(context.Context, *Task) error { return errHook },
					Execute:    func(context.Context, *Task, uint64) error { rec.add("execute"); return nil },
					Canceled:   func(*Task) { rec.add("canceled") },
				}
			},
		},
		{
			name: "pre-execute panic",
			hooks: func(rec *recorder) *Hooks {
				return &Hooks{
					PreExecute: func(context.Context, *Task) error { panic("bad config") },
					Execute:    func(context.Context, *Task, uint64) error { rec.add("execute"); return nil },
					Canceled:   func(*Task) { rec.add("canceled") },
				}
			},
			wantHook: "OnPreExecute",
		},
		{
			name: "execute error",
			hooks: func(rec *recorder) *Hooks {
				return &Hooks{
					Execute:  func(context.Context, *Task, uint64) error { rec.add("execute"); return errHook },
					Canceled: func(*Task) { rec.add("canceled") },
				}
			},
			wantExecuted: true,
		},
		{
			name: "post-execute panic",
			hooks: func(rec *recorder) *Hooks {
				return &Hooks{
					Execute:     func(context.Context, *Task, uint64) error { rec.add("execute"); return nil },
					PostExecute: func(context.Context, *Task) error { panic("cleanup") },
					Canceled:    func(*Task) { rec.add("canceled") },
				}
			},
			wantHook:     "OnPostExecute",
			wantExecuted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			s := New()
			task := NewTask(tt.hooks(rec))
			s.Schedule(task)
			runToEnd(t, s)

			testutil.AssertEqual(t, task.State(), Canceled)
			testutil.AssertEqual(t, task.Failed(), true)
			testutil.AssertEqual(t, rec.count("canceled"), 1)
			testutil.AssertEqual(t, rec.count("execute") == 1, tt.wantExecuted)

			if tt.wantHook == "" {
				if !errors.Is(task.Err(), errHook) {
					t.Errorf("Err() = %v, want %v", task.Err(), errHook)
				}
				return
			}
			var pe *PanicError
			if !errors.As(task.Err(), &pe) {
				t.Fatalf("Err() = %v, want *PanicError", task.Err())
			}
			testutil.AssertEqual(t, pe.Hook, tt.wantHook)
		})
	}
}

func TestScheduler_FirstFailureWins(t *testing.T) {
	errFirst := errors.New("first")
	s := New()
	task := NewTask(&Hooks{
		Execute:     func(context.Context, *Task, uint64) error { return errFirst },
		PostExecute: func(context.Context, *Task) error { return errors.New("second") },
	})
	s.Schedule(task)
	runToEnd(t, s)

	if task.Err() != errFirst {
		t.Errorf("Err() = %v, want %v", task.Err(), errFirst)
	}
}

func TestScheduler_PauseResume(t *testing.T) {
	s := New()
	var resumes []uint64
	hooks, rec := recordingHooks(func(_ context.Context, task *Task, resume uint64) error {
		resumes = append(resumes, resume)
		if resume == 0 {
			if !task.RequestPause(7) {
				t.Error("RequestPause inside OnExecute should succeed")
			}
		}
		return nil
	})
	task := NewTask(hooks)
	s.Schedule(task)
	s.Update()
	s.Execute()

	testutil.AssertEqual(t, task.State(), Paused)
	testutil.AssertEqual(t, task.ResumeLocation(), uint64(7))
	testutil.AssertEqual(t, s.TaskCount(), 1)
	testutil.AssertEqual(t, len(s.PausedTasks()), 1)

	if s.Execute() {
		t.Error("a paused task must not be executed")
	}
	testutil.AssertEqual(t, s.Update(), 0)
	testutil.AssertEqual(t, task.State(), Paused)

	if !task.Resume() {
		t.Fatal("Resume on a paused task should succeed")
	}
	if task.Resume() {
		t.Error("Resume twice should fail")
	}
	testutil.AssertEqual(t, task.State(), Scheduled)
	testutil.AssertEqual(t, s.Stats().Ready, 1)

	runToEnd(t, s)

	testutil.AssertEqual(t, task.State(), Complete)
	testutil.AssertEqual(t, fmt.Sprint(resumes), "[0 7]")
	want := []string{"pre", "execute", "pause", "resume", "execute", "post"}
	testutil.AssertEqual(t, fmt.Sprint(rec.list()), fmt.Sprint(want))
}

func TestScheduler_CancelPaused(t *testing.T) {
	s := New()
	hooks, rec := recordingHooks(func(_ context.Context, task *Task, _ uint64) error {
		task.RequestPause(2)
		return nil
	})
	task := NewTask(hooks)
	s.Schedule(task)
	s.Update()
	s.Execute()
	testutil.AssertEqual(t, task.State(), Paused)

	if !task.Cancel() {
		t.Fatal("Cancel on a paused task should succeed")
	}
	if task.Resume() {
		t.Error("Resume after Cancel should fail")
	}

	testutil.AssertEqual(t, s.Update(), 1)
	testutil.AssertEqual(t, task.State(), Canceled)
	testutil.AssertEqual(t, s.TaskCount(), 0)
	want := []string{"pre", "execute", "pause", "post", "canceled"}
	testutil.AssertEqual(t, fmt.Sprint(rec.list()), fmt.Sprint(want))
}

func TestScheduler_ResumeFailure(t *testing.T) {
	s := New()
	task := NewTask(&Hooks{
		Execute: func(_ context.Context, task *Task, resume uint64) error {
			if resume == 0 {
				task.RequestPause(1)
			}
			return nil
		},
		Resume: func(*Task, uint64) error { return errors.New("lost state") },
	})
	s.Schedule(task)
	s.Update()
	s.Execute()

	if task.Resume() {
		t.Error("Resume should report false when OnResume fails")
	}
	runToEnd(t, s)
	testutil.AssertEqual(t, task.State(), Canceled)
	testutil.AssertEqual(t, task.Failed(), true)
}

func TestScheduler_Progress(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var delivered []int
	released := 0

	task := NewTask(&Hooks{
		Execute: func(_ context.Context, task *Task, _ uint64) error {
			for i := 1; i <= 3; i++ {
				if !task.SendProgress(NewPayload(i, func(int) { released++ })) {
					t.Error("SendProgress inside OnExecute should succeed")
				}
			}
			testutil.AssertEqual(t, task.PendingProgress(), 3)
			return nil
		},
		Progress: func(task *Task, p Progress) error {
			if task.State() == Executing {
				t.Error("progress delivered while executing")
			}
			mu.Lock()
			delivered = append(delivered, p.(*Payload[int]).Value)
			mu.Unlock()
			return nil
		},
	})
	s.Schedule(task)
	s.Update()
	s.Execute()
	testutil.AssertEqual(t, len(delivered), 0)

	s.Update()
	testutil.AssertEqual(t, task.State(), Complete)
	testutil.AssertEqual(t, fmt.Sprint(delivered), "[1 2 3]")
	testutil.AssertEqual(t, released, 3)
	testutil.AssertEqual(t, task.PendingProgress(), 0)
}

func TestScheduler_ProgressFailure(t *testing.T) {
	s := New()
	errSink := errors.New("sink closed")
	var delivered []int
	released := 0

	task := NewTask(&Hooks{
		Execute: func(_ context.Context, task *Task, _ uint64) error {
			for i := 1; i <= 3; i++ {
				task.SendProgress(NewPayload(i, func(int) { released++ }))
			}
			return nil
		},
		Progress: func(_ *Task, p Progress) error {
			v := p.(*Payload[int]).Value
			delivered = append(delivered, v)
			if v == 2 {
				return errSink
			}
			return nil
		},
	})
	s.Schedule(task)
	runToEnd(t, s)

	testutil.AssertEqual(t, task.State(), Canceled)
	testutil.AssertEqual(t, fmt.Sprint(delivered), "[1 2]")
	testutil.AssertEqual(t, released, 3)
	if !errors.Is(task.Err(), errSink) {
		t.Errorf("Err() = %v, want %v", task.Err(), errSink)
	}
}

func TestScheduler_ProgressWhilePaused(t *testing.T) {
	s := New()
	var delivered []string

	task := NewTask(&Hooks{
		Execute: func(_ context.Context, task *Task, resume uint64) error {
			if resume == 0 {
				task.SendProgress(NewPayload("half", nil))
				task.RequestPause(1)
				return nil
			}
			task.SendProgress(NewPayload("done", nil))
			return nil
		},
		Progress: func(_ *Task, p Progress) error {
			delivered = append(delivered, p.(*Payload[string]).Value)
			return nil
		},
	})
	s.Schedule(task)
	s.Update()
	s.Execute()
	s.Update()

	testutil.AssertEqual(t, task.State(), Paused)
	testutil.AssertEqual(t, fmt.Sprint(delivered), "[half]")

	task.Resume()
	runToEnd(t, s)
	testutil.AssertEqual(t, fmt.Sprint(delivered), "[half done]")
}

func TestScheduler_ProgressReleasedOnReset(t *testing.T) {
	s := New()
	released := 0
	task := NewTask(HandlerFunc(func(_ context.Context, task *Task, _ uint64) error {
		task.SendProgress(NewPayload(1, func(int) { released++ }))
		return nil
	}))
	s.Schedule(task)
	runToEnd(t, s)

	testutil.AssertEqual(t, released, 1)
	task.Reset()
	testutil.AssertEqual(t, released, 1)
}

func TestScheduler_ExecuteOn(t *testing.T) {
	s := New()
	const id ExecutorID = 5

	task := NewTask(HandlerFunc(func(_ context.Context, task *Task, _ uint64) error {
		exec, running := task.Executor()
		testutil.AssertEqual(t, running, true)
		testutil.AssertEqual(t, exec, id)
		testutil.AssertEqual(t, s.Running()[id], task)
		if s.ExecuteOn(id) {
			t.Error("an executor that is already running a task must be refused")
		}
		return nil
	}))
	other := NewTask(HandlerFunc(func(context.Context, *Task, uint64) error { return nil }))
	s.Schedule(task)
	s.Schedule(other)
	s.Update()

	if !s.ExecuteOn(id) {
		t.Fatal("ExecuteOn should run the first ready task")
	}
	testutil.AssertEqual(t, len(s.Running()), 0)
	_, running := task.Executor()
	testutil.AssertEqual(t, running, false)

	testutil.AssertEqual(t, other.State(), PreExecution)
	runToEnd(t, s)
}

func TestScheduler_Close(t *testing.T) {
	s := New()
	task := NewTask(HandlerFunc(func(context.Context, *Task, uint64) error { return nil }))
	s.Schedule(task)

	s.Close()
	testutil.AssertEqual(t, s.Closed(), true)

	late := NewTask(HandlerFunc(func(context.Context, *Task, uint64) error { return nil }))
	if s.Schedule(late) {
		t.Error("a closed scheduler should reject new tasks")
	}
	testutil.AssertEqual(t, late.State(), Initialised)

	runToEnd(t, s)
	testutil.AssertEqual(t, task.State(), Complete)
}

func TestScheduler_BaseContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewWithConfig(Config{Name: "ctx", Context: ctx})

	task := NewTask(HandlerFunc(func(ctx context.Context, _ *Task, _ uint64) error {
		return ctx.Err()
	}))
	s.Schedule(task)
	cancel()
	runToEnd(t, s)

	if !errors.Is(task.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", task.Err())
	}
}

func TestScheduler_NoopLocker(t *testing.T) {
	s := NewWithConfig(Config{Locker: NoopLocker{}})
	hooks, _ := recordingHooks(nil)
	task := NewTask(hooks)
	s.Schedule(task)
	runToEnd(t, s)
	testutil.AssertEqual(t, task.State(), Complete)
}

func TestScheduler_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewWithConfig(Config{Name: "logged", Logger: logger})

	task := NewTask(HandlerFunc(func(context.Context, *Task, uint64) error {
		return errors.New("no route")
	}), WithID("job-1"))
	s.Schedule(task)
	runToEnd(t, s)

	out := buf.String()
	for _, want := range []string{"scheduler=logged", "task=job-1", "hook=OnExecute", "no route", "level=WARN"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

type countingNotifier struct {
	ready    atomic.Int32
	finished atomic.Int32
}

func (n *countingNotifier) WorkReady()    { n.ready.Add(1) }
func (n *countingNotifier) WorkFinished() { n.finished.Add(1) }

func TestScheduler_Notifier(t *testing.T) {
	n := &countingNotifier{}
	s := NewWithConfig(Config{Notifier: n})
	task := NewTask(HandlerFunc(func(context.Context, *Task, uint64) error { return nil }))

	s.Schedule(task)
	testutil.AssertEqual(t, n.ready.Load(), int32(1))

	s.Update()
	testutil.AssertEqual(t, n.ready.Load(), int32(2))

	s.Execute()
	testutil.AssertEqual(t, n.finished.Load(), int32(1))
	s.Update()
}

// goroutineID parses the current goroutine id from the stack header.
func goroutineID() string {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	fields := strings.Fields(string(buf))
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func TestScheduler_ProgressOnUpdateGoroutine(t *testing.T) {
	s := New()
	var execG, progressG atomic.Value
	task := NewTask(&Hooks{
		Execute: func(_ context.Context, task *Task, _ uint64) error {
			execG.Store(goroutineID())
			task.SendProgress(NewPayload(1, nil))
			task.SendProgress(NewPayload(2, nil))
			return nil
		},
		Progress: func(*Task, Progress) error {
			progressG.Store(goroutineID())
			return nil
		},
	})
	s.Schedule(task)
	s.Update()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Execute()
	}()
	<-done

	s.Update()
	testutil.AssertEqual(t, task.State(), Complete)
	testutil.AssertNotEqual(t, execG.Load().(string), progressG.Load().(string))
}

func TestScheduler_ConcurrentExecutors(t *testing.T) {
	const (
		workers = 4
		tasks   = 64
	)
	s := New()

	var (
		mu        sync.Mutex
		executing = make(map[*Task]ExecutorID)
		conflicts atomic.Int32
		runs      atomic.Int32
	)

	all := make([]*Task, tasks)
	for i := range all {
		all[i] = NewTask(HandlerFunc(func(_ context.Context, task *Task, _ uint64) error {
			exec, _ := task.Executor()

			mu.Lock()
			if _, dup := executing[task]; dup {
				conflicts.Add(1)
			}
			executing[task] = exec
			mu.Unlock()

			if s.Running()[exec] != task {
				conflicts.Add(1)
			}
			runs.Add(1)
			time.Sleep(time.Millisecond)

			mu.Lock()
			delete(executing, task)
			mu.Unlock()
			return nil
		}))
		s.Schedule(all[i])
	}

	var stop atomic.Bool
	var wg sync.WaitGroup
	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(id ExecutorID) {
			defer wg.Done()
			for !stop.Load() {
				if !s.ExecuteOn(id) {
					runtime.Gosched()
				}
			}
		}(ExecutorID(w))
	}

	testutil.Eventually(t, func() bool {
		s.Update()
		return s.TaskCount() == 0
	}, 5*time.Second, time.Millisecond)

	stop.Store(true)
	wg.Wait()

	testutil.AssertEqual(t, conflicts.Load(), int32(0))
	testutil.AssertEqual(t, runs.Load(), int32(tasks))
	for _, task := range all {
		testutil.AssertEqual(t, task.State(), Complete)
	}
}
