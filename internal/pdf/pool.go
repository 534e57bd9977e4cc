package pdf

import (
	"context"
	"sync"

	"github.com/JakeFAU/pension-crawler/internal/metrics"
)

// Runner processes a single file.
type Runner interface {
	Process(ctx context.Context, path string) Outcome
}

type job struct {
	ctx    context.Context
	path   string
	result chan Outcome
}

// Pool runs a Runner on a fixed number of goroutines behind a bounded queue.
type Pool struct {
	runner Runner
	jobs   chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines. queue bounds pending jobs; Submit
// blocks once it is full.
func NewPool(runner Runner, workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{
		runner: runner,
		jobs:   make(chan job, queue),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.jobs {
		metrics.IncActivePDFWorkers()
		out := p.runner.Process(j.ctx, j.path)
		metrics.DecActivePDFWorkers()
		j.result <- out
	}
}

// Submit queues path and returns a channel that yields exactly one Outcome.
// A canceled context or closed pool yields an empty Outcome.
func (p *Pool) Submit(ctx context.Context, path string) <-chan Outcome {
	result := make(chan Outcome, 1)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		result <- Outcome{}
		return result
	}
	select {
	case p.jobs <- job{ctx: ctx, path: path, result: result}:
	case <-ctx.Done():
		result <- Outcome{}
	}
	return result
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
