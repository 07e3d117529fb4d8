package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestTimeout is the default timeout for tests
const TestTimeout = 5 * time.Second

// WithTimeout creates a context with the default test timeout
func WithTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), TestTimeout)
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// AssertNotEqual fails the test if got == want
func AssertNotEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got == want {
		t.Fatalf("got %v, want anything else", got)
	}
}

// Eventually polls condition every tick until it returns true or timeout
// elapses, failing the test in the latter case.
func Eventually(t *testing.T, condition func() bool, timeout, tick time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(tick)
	}
}

// AssertEventually is Eventually with the default test timeout and a short
// tick, for conditions driven by worker goroutines.
func AssertEventually(t *testing.T, condition func() bool) {
	t.Helper()
	Eventually(t, condition, TestTimeout, time.Millisecond)
}

// CallbackTracker records invocations of a callback from any goroutine.
type CallbackTracker struct {
	mu    sync.Mutex
	count int
	value interface{}
}

// NewCallbackTracker creates an empty tracker.
func NewCallbackTracker() *CallbackTracker {
	return &CallbackTracker{}
}

// Mark records a call, optionally remembering the last value passed.
func (c *CallbackTracker) Mark(value ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if len(value) > 0 {
		c.value = value[0]
	}
}

// CallCount returns the number of Mark calls.
func (c *CallbackTracker) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Value returns the last value passed to Mark.
func (c *CallbackTracker) Value() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// AssertCallCount fails the test unless Mark was called exactly want times.
func (c *CallbackTracker) AssertCallCount(t *testing.T, want int) {
	t.Helper()
	if n := c.CallCount(); n != want {
		t.Fatalf("call count = %d, want %d", n, want)
	}
}
