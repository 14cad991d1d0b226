package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/xfs/internal/event"
)

// Report summarises one dispatch pass.
type Report struct {
	EventID   string
	Evaluated int
	Matched   int
	Succeeded int
	Failed    int
	Async     int
	Dropped   int

	// Errors holds a HandlerInvocationError per failed synchronous
	// handler, or ErrClosed / a context error when the pass did not run.
	Errors []error
}

// Err joins Errors.
func (r Report) Err() error {
	return errors.Join(r.Errors...)
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Events      uint64
	Invocations uint64
	Failures    uint64
	Panics      uint64
	Pool        PoolStats
}

// Engine evaluates events against handler entries and invokes every match.
type Engine struct {
	logger  *zap.Logger
	sender  Sender
	timeout time.Duration
	exec    *Executor
	pool    *Pool

	env atomic.Pointer[Env]

	mu     sync.RWMutex
	closed bool

	warned sync.Map

	events      atomic.Uint64
	invocations atomic.Uint64
	failures    atomic.Uint64
	panics      atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSender sets the output sink handed to every Call.
func WithSender(s Sender) Option {
	return func(e *Engine) {
		e.sender = s
	}
}

// WithEnv sets the initial match environment.
func WithEnv(env Env) Option {
	return func(e *Engine) {
		e.SetEnv(env)
	}
}

// WithHandlerTimeout bounds synchronous handlers. Zero disables it.
func WithHandlerTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithPoolOptions configures the worker pool used for own-thread handlers.
func WithPoolOptions(opts ...PoolOption) Option {
	return func(e *Engine) {
		e.pool = NewPool(append(opts,
			WithResultHandler(e.asyncResult),
			WithPoolExecutor(e.exec),
		)...)
	}
}

// NewEngine creates an engine. Call Start before dispatching own-thread
// handlers and Close when done.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:  zap.NewNop(),
		sender:  Discard,
		timeout: 30 * time.Second,
	}
	e.exec = NewExecutor(WithPanicHandler(e.logPanic))
	e.env.Store(&Env{})

	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = NewPool(WithResultHandler(e.asyncResult), WithPoolExecutor(e.exec))
	}
	return e
}

// Start starts the worker pool.
func (e *Engine) Start() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return e.pool.Start()
}

// Close stops further dispatch. It waits for an in-progress pass to finish,
// then drains queued own-thread handlers until ctx ends.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	e.mu.Unlock()

	if err := e.pool.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return nil
}

// Env returns the current match environment.
func (e *Engine) Env() Env {
	return *e.env.Load()
}

// SetEnv replaces the match environment, e.g. after a nick change.
func (e *Engine) SetEnv(env Env) {
	env = env.compiled()
	e.env.Store(&env)
}

// SetBotNick updates only the bot nick.
func (e *Engine) SetBotNick(nick string) {
	env := e.Env()
	env.BotNick = nick
	e.SetEnv(env)
}

// Dispatch evaluates every entry against ev, in order, and invokes all that
// match. Synchronous handlers run one at a time on the caller's goroutine;
// own-thread handlers are submitted to the pool without waiting. A failing
// handler never stops evaluation of the remaining entries.
func (e *Engine) Dispatch(ctx context.Context, ev event.Event, entries []Entry) Report {
	return e.DispatchLeased(ctx, ev, entries, nil)
}

// DispatchLeased is Dispatch for entries that stay usable only until
// release is called. release runs exactly once, after the synchronous pass
// and every own-thread invocation it queued have finished.
func (e *Engine) DispatchLeased(ctx context.Context, ev event.Event, entries []Entry, release func()) Report {
	rep := Report{EventID: ev.ID}
	l := newLease(release)
	defer l.done()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		rep.Errors = append(rep.Errors, ErrClosed)
		return rep
	}
	if err := ctx.Err(); err != nil {
		rep.Errors = append(rep.Errors, err)
		return rep
	}

	e.events.Add(1)
	env := e.Env()

	for _, entry := range entries {
		rep.Evaluated++

		if entry.Spec.OwnerOnly && !env.HasOwner() {
			e.warnOwner(entry)
			continue
		}

		matched, ok := Match(ev, entry.Spec, env)
		if !ok {
			continue
		}
		rep.Matched++

		call := NewCall(ev, entry, matched, e.sender)

		if entry.Spec.OwnThread {
			e.submit(ctx, entry, call, l, &rep)
			continue
		}

		e.invocations.Add(1)
		res := e.exec.ExecuteWithTimeout(ctx, call, entry.Func, e.timeout)
		if res.Success {
			rep.Succeeded++
			e.logger.Debug("handler done",
				zap.String("module", entry.Module),
				zap.String("handler", entry.Name),
				zap.String("event_id", ev.ID),
				zap.Duration("duration", res.Duration),
			)
			continue
		}

		rep.Failed++
		err := e.fail(entry, call, res)
		rep.Errors = append(rep.Errors, err)
	}

	return rep
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Events:      e.events.Load(),
		Invocations: e.invocations.Load(),
		Failures:    e.failures.Load(),
		Panics:      e.panics.Load(),
		Pool:        e.pool.Stats(),
	}
}

func (e *Engine) submit(ctx context.Context, entry Entry, call *Call, l *lease, rep *Report) {
	l.hold()
	if err := e.pool.enqueue(ctx, entry, call, l.done); err != nil {
		l.done()
		rep.Dropped++
		e.logger.Warn("own-thread handler dropped",
			zap.String("module", entry.Module),
			zap.String("handler", entry.Name),
			zap.String("event_id", call.Event.ID),
			zap.Error(err),
		)
		return
	}
	e.invocations.Add(1)
	rep.Async++
}

func (e *Engine) asyncResult(task Task, res Result) {
	if res.Success {
		return
	}
	_ = e.fail(task.Entry, task.Call, res)
}

func (e *Engine) fail(entry Entry, call *Call, res Result) error {
	e.failures.Add(1)
	if res.Panicked {
		e.panics.Add(1)
	}

	err := &HandlerInvocationError{Module: entry.Module, Handler: entry.Name, Err: res.Error}
	e.logger.Error("handler failed",
		zap.String("module", entry.Module),
		zap.String("handler", entry.Name),
		zap.String("event_id", call.Event.ID),
		zap.Bool("async", entry.Spec.OwnThread),
		zap.Duration("duration", res.Duration),
		zap.Error(res.Error),
	)
	return err
}

func (e *Engine) logPanic(call *Call, v any, stack []byte) {
	e.logger.Error("handler panic",
		zap.String("module", call.Module),
		zap.String("handler", call.Handler),
		zap.String("event_id", call.Event.ID),
		zap.Any("panic", v),
		zap.ByteString("stack", stack),
	)
}

func (e *Engine) warnOwner(entry Entry) {
	if _, seen := e.warned.LoadOrStore(entry.String(), struct{}{}); seen {
		return
	}
	e.logger.Warn("owner-only handler never matches",
		zap.String("module", entry.Module),
		zap.String("handler", entry.Name),
		zap.Error(ErrOwnerNotConfigured),
	)
}

// lease counts the invocations still using one dispatch pass's entries.
type lease struct {
	n       atomic.Int64
	release func()
}

func newLease(release func()) *lease {
	l := &lease{release: release}
	l.n.Store(1)
	return l
}

func (l *lease) hold() {
	l.n.Add(1)
}

func (l *lease) done() {
	if l.n.Add(-1) == 0 && l.release != nil {
		l.release()
	}
}
