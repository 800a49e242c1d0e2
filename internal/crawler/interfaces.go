package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the rendered markup.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (Document, error)
}

// CardScraper is implemented by fetchers that can read card fields straight
// from a live DOM instead of handing markup to a separate parse step.
type CardScraper interface {
	ScrapeCard(ctx context.Context, request FetchRequest) (Card, error)
}

// Persister is the write path used by the crawl engine.
type Persister interface {
	// KnownURLs returns the identities already persisted by earlier runs.
	KnownURLs(ctx context.Context) ([]string, error)
	// Record stores a newly scraped card. Backends may buffer until Flush.
	Record(ctx context.Context, card Card) error
	// Flush writes any buffered cards.
	Flush(ctx context.Context) error
	Close() error
}

// CardReader backs the read-only query endpoints.
type CardReader interface {
	ListCards(ctx context.Context) ([]Card, error)
	FindByName(ctx context.Context, name string) ([]Card, error)
}

// Publisher pushes new-card notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for index-page tasks.
type Queue interface {
	Enqueue(ctx context.Context, task PageTask) error
	Dequeue(ctx context.Context) (PageTask, error)
}

// Pacer spaces out requests issued by one worker.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
