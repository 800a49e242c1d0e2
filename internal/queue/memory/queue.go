// Package memory provides the in-process index-page task queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/card-crawler/internal/crawler"
)

var _ crawler.Queue = (*Queue)(nil)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan crawler.PageTask
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan crawler.PageTask, capacity),
	}
}

// Fill returns a closed queue that already holds every task, so workers
// drain it and stop once it is empty.
func Fill(tasks []crawler.PageTask) *Queue {
	q := NewQueue(len(tasks))
	for _, task := range tasks {
		q.ch <- task
	}
	q.Close()
	return q
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task crawler.PageTask) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return crawler.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. Once the queue
// is closed and drained it returns crawler.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (crawler.PageTask, error) {
	select {
	case <-ctx.Done():
		return crawler.PageTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return crawler.PageTask{}, crawler.ErrQueueClosed
		}
		return task, nil
	}
}

// Len reports how many tasks are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel so workers stop after draining it.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
