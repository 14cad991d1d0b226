package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Result is the outcome of one handler invocation.
type Result struct {
	// Success is true if the handler returned nil without panicking.
	Success bool

	// Error is the handler's error, or an ErrHandlerPanic wrapper.
	Error error

	// Panicked is true if the handler panicked.
	Panicked bool

	// PanicValue is the recovered value when Panicked is true.
	PanicValue any

	// PanicStack is the stack trace captured at the panic.
	PanicStack []byte

	// Duration is how long the handler ran.
	Duration time.Duration

	// Skipped is true if the handler never ran because ctx was done.
	Skipped bool
}

// PanicHandler is called when a handler panics.
type PanicHandler func(call *Call, panicValue any, stack []byte)

// Executor runs handlers with panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithPanicHandler sets the callback for recovered panics.
func WithPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute invokes fn with call and reports how it went. It never panics:
// a panicking handler yields a Result wrapping ErrHandlerPanic. A ctx that is
// already done skips the handler.
func (e *Executor) Execute(ctx context.Context, call *Call, fn HandlerFunc) Result {
	if err := ctx.Err(); err != nil {
		return Result{Error: err, Skipped: true}
	}

	start := time.Now()
	res := e.invoke(ctx, call, fn)
	res.Duration = time.Since(start)
	res.Success = res.Error == nil
	return res
}

func (e *Executor) invoke(ctx context.Context, call *Call, fn HandlerFunc) (res Result) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		res = Result{
			Error:      fmt.Errorf("%w: %v", ErrHandlerPanic, v),
			Panicked:   true,
			PanicValue: v,
			PanicStack: debug.Stack(),
		}
		e.reportPanic(call, res)
	}()

	return Result{Error: fn(ctx, call)}
}

// reportPanic passes a recovered panic to the panic handler, which may not
// itself panic the worker.
func (e *Executor) reportPanic(call *Call, res Result) {
	if e.panicHandler == nil {
		return
	}
	defer func() { _ = recover() }()
	e.panicHandler(call, res.PanicValue, res.PanicStack)
}

// ExecuteWithTimeout runs Execute under a deadline when timeout is positive.
// Handlers must watch ctx for the deadline to stop them.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, call *Call, fn HandlerFunc, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.Execute(ctx, call, fn)
}
