package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/card-crawler/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.PageTask, 1)
	errCh := make(chan error, 1)

	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- task
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	task := crawler.PageTask{Tier: "1", Page: 1, URL: "https://shoob.gg/cards?page=1&tier=1"}
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got != task {
			t.Fatalf("expected %+v, got %+v", task, got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), crawler.PageTask{Page: 1}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, crawler.PageTask{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, crawler.ErrQueueClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	if err := q.Enqueue(context.Background(), crawler.PageTask{}); !errors.Is(err, crawler.ErrQueueClosed) {
		t.Fatalf("expected enqueue on closed queue to fail, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}

func TestFillDrainsInOrderThenCloses(t *testing.T) {
	t.Parallel()

	tasks := crawler.GenerateFrontier("https://shoob.gg", crawler.CrawlTarget{Tier: "2", Start: 1, End: 3})
	q := Fill(tasks)
	if q.Len() != 3 {
		t.Fatalf("expected 3 queued tasks, got %d", q.Len())
	}
	for i, want := range tasks {
		got, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue(%d) error = %v", i, err)
		}
		if got != want {
			t.Fatalf("Dequeue(%d) = %+v, want %+v", i, got, want)
		}
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, crawler.ErrQueueClosed) {
		t.Fatalf("expected drained queue to report closed, got %v", err)
	}
}
