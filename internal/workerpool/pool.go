package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrPoolFull   = errors.New("worker pool is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

const (
	DefaultWorkers = 4
	DefaultQueue   = 64
)

// Job is a unit of work. The context is cancelled when Shutdown gives up
// waiting.
type Job func(ctx context.Context)

type Submitter interface {
	Submit(job Job) error
}

// Pool runs jobs on a fixed number of workers behind a bounded queue.
// Submit never blocks: a full queue is reported as ErrPoolFull.
type Pool struct {
	queue  chan Job
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

func New(queueSize int, logger *slog.Logger) *Pool {
	if queueSize <= 0 {
		queueSize = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:  make(chan Job, queueSize),
		logger: logger.With("component", "workerpool"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches n workers. Calling it more than once has no effect.
func (p *Pool) Start(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) Submit(job Job) error {
	if job == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- job:
		return nil
	default:
		return ErrPoolFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When ctx
// expires first, running jobs see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "worker", id, "panic", fmt.Sprint(r))
		}
	}()
	job(p.ctx)
}
