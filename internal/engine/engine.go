// Package engine runs complete crawl passes: it seeds the seen set from
// persisted state, fans the frontier out to a worker pool and flushes the
// results once every worker has finished.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/card-crawler/internal/clock/system"
	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/dispatcher"
	"github.com/JakeFAU/card-crawler/internal/metrics"
	"github.com/JakeFAU/card-crawler/internal/pacer"
	queueMemory "github.com/JakeFAU/card-crawler/internal/queue/memory"
	"github.com/JakeFAU/card-crawler/internal/worker"
)

// Pacer names handed to the pacer factory.
const (
	IndexPacer  = "index"
	DetailPacer = "detail"
)

// Config describes one crawl pass.
type Config struct {
	BaseURL            string
	Targets            []crawler.CrawlTarget
	Concurrency        int
	Strategy           string
	IndexWaitSelector  string
	DetailWaitSelector string
	Topic              string
	// Interval is the pause between passes for RunEvery. Zero means run once.
	Interval time.Duration
}

// Deps holds the long-lived collaborators shared by every pass.
type Deps struct {
	Fetcher   crawler.Fetcher
	Persister crawler.Persister
	Publisher crawler.Publisher
	Pacers    pacer.Factory
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
}

// Engine owns the state of a crawl. Each Run builds a fresh seen set, queue
// and result, so concurrent state never outlives a pass.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	mu      sync.Mutex
	last    crawler.RunSummary
	hasLast bool
}

// New validates cfg and returns an Engine.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Engine, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("engine: base url is required")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("engine: concurrency must be positive, got %d", cfg.Concurrency)
	}
	if deps.Fetcher == nil {
		return nil, errors.New("engine: fetcher is required")
	}
	if deps.Persister == nil {
		return nil, errors.New("engine: persister is required")
	}
	if deps.Pacers == nil {
		deps.Pacers = func(string) crawler.Pacer { return nil }
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, deps: deps, logger: logger.Named("engine")}, nil
}

// Run performs one full pass over the frontier and returns once every worker
// has stopped. Per-page failures never fail the run; only a cancelled context does.
func (e *Engine) Run(ctx context.Context) (crawler.RunSummary, error) {
	runID, err := e.newRunID()
	if err != nil {
		return crawler.RunSummary{}, err
	}
	logger := e.logger.With(zap.String("run_id", runID))
	started := e.deps.Clock.Now()

	known := e.knownURLs(ctx, logger)
	seen := crawler.NewSeenSet(known...)
	tasks := crawler.GenerateFrontier(e.cfg.BaseURL, e.cfg.Targets...)
	queue := queueMemory.Fill(tasks)
	result := crawler.NewCrawlResult()

	logger.Info("crawl started",
		zap.Int("known_urls", seen.Len()),
		zap.Int("index_pages", len(tasks)),
		zap.Int("concurrency", e.cfg.Concurrency),
	)

	workers := make([]*worker.Worker, e.cfg.Concurrency)
	for i := range workers {
		workers[i] = worker.New(worker.Deps{
			Queue:       queue,
			Fetcher:     e.deps.Fetcher,
			Persister:   e.deps.Persister,
			Publisher:   e.deps.Publisher,
			Clock:       e.deps.Clock,
			Seen:        seen,
			Result:      result,
			IndexPacer:  e.deps.Pacers(IndexPacer),
			DetailPacer: e.deps.Pacers(DetailPacer),
		}, worker.Config{
			RunID:              runID,
			Strategy:           e.cfg.Strategy,
			IndexWaitSelector:  e.cfg.IndexWaitSelector,
			DetailWaitSelector: e.cfg.DetailWaitSelector,
			Topic:              e.cfg.Topic,
		}, logger.Named("worker").With(zap.Int("worker", i)))
	}
	dispatcher.New(workers).Run(ctx)

	// Flush even when cancelled so scraped cards are not lost.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := e.deps.Persister.Flush(flushCtx); err != nil {
		logger.Error("flush failed", zap.Error(err))
	}

	summary := result.Summary()
	summary.RunID = runID
	summary.KnownAtStart = len(known)
	summary.StartedAt = started
	summary.FinishedAt = e.deps.Clock.Now()
	summary.Duration = summary.FinishedAt.Sub(started)

	e.setLast(summary)

	if err := ctx.Err(); err != nil {
		metrics.ObserveRun(metrics.StatusFailed)
		logger.Warn("crawl interrupted", zap.Int("new_cards", summary.CardsScraped+summary.CardsFailed), zap.Error(err))
		return summary, fmt.Errorf("crawl interrupted: %w", err)
	}
	metrics.ObserveRun(metrics.StatusOK)
	logger.Info("crawl finished",
		zap.Int("index_pages", summary.IndexPages),
		zap.Int("index_pages_failed", summary.IndexPagesFailed),
		zap.Int("cards_scraped", summary.CardsScraped),
		zap.Int("cards_failed", summary.CardsFailed),
		zap.Int("duplicates_skipped", summary.DuplicatesSkipped),
		zap.Int("persist_failures", summary.PersistFailures),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// RunEvery repeats Run with Interval between passes until ctx ends. With a
// zero Interval it runs a single pass.
func (e *Engine) RunEvery(ctx context.Context) error {
	for {
		if _, err := e.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if e.cfg.Interval <= 0 {
			return nil
		}
		timer := time.NewTimer(e.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// LastRun returns the summary of the most recently finished pass.
func (e *Engine) LastRun() (crawler.RunSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

func (e *Engine) setLast(summary crawler.RunSummary) {
	e.mu.Lock()
	e.last = summary
	e.hasLast = true
	e.mu.Unlock()
}

// knownURLs loads the persisted URL set. A failing backend degrades to an
// empty set so the run still proceeds.
func (e *Engine) knownURLs(ctx context.Context, logger *zap.Logger) []string {
	known, err := e.deps.Persister.KnownURLs(ctx)
	if err != nil {
		logger.Warn("loading known urls failed; starting from an empty set", zap.Error(err))
		return nil
	}
	return known
}

func (e *Engine) newRunID() (string, error) {
	if e.deps.IDs == nil {
		return "", nil
	}
	id, err := e.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}
