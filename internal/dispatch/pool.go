package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one unit of work for the pool.
type Task struct {
	Entry Entry
	Call  *Call
	ctx   context.Context
	done  func()
}

// ResultHandler receives the outcome of every pool task.
type ResultHandler func(task Task, result Result)

// Pool runs handlers on a fixed set of workers fed by a bounded queue.
// Submission never blocks: a full queue drops the task.
type Pool struct {
	queueSize   int
	workerCount int
	timeout     time.Duration

	mu      sync.Mutex
	queue   chan Task
	running bool
	wg      sync.WaitGroup

	executor *Executor
	onResult ResultHandler

	enqueued    atomic.Uint64
	processed   atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	dropped     atomic.Uint64
	timedOut    atomic.Uint64
	totalTimeNs atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithQueueSize sets the task queue size.
func WithQueueSize(size int) PoolOption {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of workers.
func WithWorkerCount(count int) PoolOption {
	return func(p *Pool) {
		if count > 0 {
			p.workerCount = count
		}
	}
}

// WithTaskTimeout sets the per-task deadline. Zero disables it.
func WithTaskTimeout(timeout time.Duration) PoolOption {
	return func(p *Pool) {
		p.timeout = timeout
	}
}

// WithResultHandler sets the callback invoked after each task.
func WithResultHandler(h ResultHandler) PoolOption {
	return func(p *Pool) {
		p.onResult = h
	}
}

// WithPoolExecutor sets the executor used by workers.
func WithPoolExecutor(e *Executor) PoolOption {
	return func(p *Pool) {
		if e != nil {
			p.executor = e
		}
	}
}

// NewPool creates a stopped pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		queueSize:   256,
		workerCount: 4,
		timeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.executor == nil {
		p.executor = NewExecutor()
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	p.queue = make(chan Task, p.queueSize)
	p.running = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(p.queue)
	}

	return nil
}

// Stop closes the queue and waits for queued tasks to finish or ctx to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running = false
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues fn for call. Cancellation of ctx does not discard a queued
// task; the task timeout bounds it instead.
func (p *Pool) Submit(ctx context.Context, entry Entry, call *Call) error {
	return p.enqueue(ctx, entry, call, nil)
}

// enqueue is Submit with a callback run after the task finishes. done is
// not called when enqueue fails.
func (p *Pool) enqueue(ctx context.Context, entry Entry, call *Call, done func()) error {
	task := Task{Entry: entry, Call: call, ctx: context.WithoutCancel(ctx), done: done}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrNotRunning
	}

	select {
	case p.queue <- task:
		p.enqueued.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

func (p *Pool) worker(queue <-chan Task) {
	defer p.wg.Done()

	for task := range queue {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	if task.done != nil {
		defer task.done()
	}
	p.processed.Add(1)

	result := p.executor.ExecuteWithTimeout(task.ctx, task.Call, task.Entry.Func, p.timeout)
	p.totalTimeNs.Add(result.Duration.Nanoseconds())

	switch {
	case result.Panicked:
		p.panicked.Add(1)
	case result.Error != nil:
		if errors.Is(result.Error, context.DeadlineExceeded) {
			p.timedOut.Add(1)
		}
		p.failed.Add(1)
	default:
		p.succeeded.Add(1)
	}

	if p.onResult != nil {
		func() {
			defer func() { _ = recover() }()
			p.onResult(task, result)
		}()
	}
}

// Running reports whether the pool accepts tasks.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// QueueDepth returns the number of tasks waiting.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return 0
	}
	return len(p.queue)
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Enqueued      uint64
	Processed     uint64
	Succeeded     uint64
	Failed        uint64
	Panicked      uint64
	Dropped       uint64
	TimedOut      uint64
	QueueDepth    int
	TotalDuration time.Duration
	AvgDuration   time.Duration
}

// Stats returns the pool counters.
func (p *Pool) Stats() PoolStats {
	processed := p.processed.Load()
	totalNs := p.totalTimeNs.Load()

	var avgNs int64
	if processed > 0 {
		avgNs = totalNs / int64(processed)
	}

	return PoolStats{
		Enqueued:      p.enqueued.Load(),
		Processed:     processed,
		Succeeded:     p.succeeded.Load(),
		Failed:        p.failed.Load(),
		Panicked:      p.panicked.Load(),
		Dropped:       p.dropped.Load(),
		TimedOut:      p.timedOut.Load(),
		QueueDepth:    p.QueueDepth(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}
