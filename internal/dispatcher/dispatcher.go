// Package dispatcher manages worker fan-out over the task queue.
package dispatcher

import (
	"context"
	"sync"

	"github.com/JakeFAU/card-crawler/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers. The workers share the
// queue they were built with.
type Dispatcher struct {
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Run starts all workers and blocks until every one of them has returned,
// which happens once the queue is closed and drained or the context ends.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}
