package scheduler

import (
	"fmt"
	"runtime/debug"
)

// PanicError is the failure captured when a hook panics.
type PanicError struct {
	Hook  string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked in %s: %v\nStack trace:\n%s", e.Hook, e.Value, e.Stack)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// safeCall runs fn, converting a panic into a *PanicError. Returned errors are
// passed through unchanged so Rethrow can reproduce them.
func safeCall(hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Hook: hook, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
