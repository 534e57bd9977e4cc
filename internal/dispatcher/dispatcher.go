// Package dispatcher fans queued rows out to a fixed set of goroutines.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
	"github.com/JakeFAU/pension-crawler/internal/queue/memory"
)

// Queue is the subset of the row queue the dispatcher consumes.
type Queue interface {
	Enqueue(ctx context.Context, item crawler.QueueItem) error
	Dequeue(ctx context.Context) (crawler.QueueItem, error)
	Close()
}

// Handler processes one row to completion.
type Handler func(ctx context.Context, item crawler.QueueItem)

// Dispatcher runs Handler on queued rows with bounded parallelism.
type Dispatcher struct {
	queue   Queue
	workers int
	handle  Handler
}

// New creates a Dispatcher with workers goroutines.
func New(queue Queue, workers int, handle Handler) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		handle:  handle,
	}
}

// Run starts the workers and blocks until the queue is closed and drained or
// ctx ends.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.loop(ctx)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context) {
	for {
		item, err := d.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		d.handle(ctx, item)
	}
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Feed enqueues rows in order and then closes the queue so Run can return.
func (d *Dispatcher) Feed(ctx context.Context, rows []crawler.InputRow) error {
	defer d.queue.Close()
	for _, row := range rows {
		if err := d.Enqueue(ctx, crawler.QueueItem{Row: row}); err != nil {
			if errors.Is(err, memory.ErrClosed) {
				return nil
			}
			return err
		}
	}
	return nil
}
