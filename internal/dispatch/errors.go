package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatch package.
var (
	// ErrClosed is returned when dispatch is attempted after Close.
	ErrClosed = errors.New("dispatch: engine is closed")

	// ErrAlreadyRunning is returned when Start is called on a running pool.
	ErrAlreadyRunning = errors.New("dispatch: pool is already running")

	// ErrNotRunning is returned when tasks are submitted to a stopped pool.
	ErrNotRunning = errors.New("dispatch: pool is not running")

	// ErrQueueFull is returned when the pool queue cannot accept more tasks.
	ErrQueueFull = errors.New("dispatch: task queue is full")

	// ErrHandlerPanic marks a handler that panicked instead of returning.
	ErrHandlerPanic = errors.New("dispatch: handler panicked")

	// ErrOwnerNotConfigured is reported when an owner-only handler is
	// evaluated with no owner identity configured. The handler never matches.
	ErrOwnerNotConfigured = errors.New("dispatch: owner-only handler but no owner configured")
)

// HandlerInvocationError reports a failed handler invocation.
type HandlerInvocationError struct {
	Module  string
	Handler string
	Err     error
}

func (e *HandlerInvocationError) Error() string {
	return fmt.Sprintf("dispatch: handler %s.%s: %v", e.Module, e.Handler, e.Err)
}

func (e *HandlerInvocationError) Unwrap() error {
	return e.Err
}
