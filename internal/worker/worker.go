// Package worker implements the per-worker crawl loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/extract"
	"github.com/JakeFAU/card-crawler/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	RunID              string
	Strategy           string
	IndexWaitSelector  string
	DetailWaitSelector string
	Topic              string
}

// Deps bundles the collaborators a Worker needs. Seen and Result are owned by
// the run and shared by every worker in it.
type Deps struct {
	Queue       crawler.Queue
	Fetcher     crawler.Fetcher
	Persister   crawler.Persister
	Publisher   crawler.Publisher
	Clock       crawler.Clock
	Seen        *crawler.SeenSet
	Result      *crawler.CrawlResult
	IndexPacer  crawler.Pacer
	DetailPacer crawler.Pacer
}

// Worker consumes index-page tasks and scrapes every unseen card they link to.
type Worker struct {
	deps    Deps
	scraper crawler.CardScraper
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker. When the fetcher can read cards from a live DOM it
// is used for detail pages instead of fetch-then-parse.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Seen == nil {
		deps.Seen = crawler.NewSeenSet()
	}
	if deps.Result == nil {
		deps.Result = crawler.NewCrawlResult()
	}
	scraper, _ := deps.Fetcher.(crawler.CardScraper)
	return &Worker{
		deps:    deps,
		scraper: scraper,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks, consuming tasks until the queue is drained or the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued index page", zap.String("url", task.URL))
		if err := w.processTask(ctx, task); err != nil {
			return
		}
	}
}

// processTask handles one index page. It only returns an error when the
// context ends; every other failure is logged and the worker moves on.
func (w *Worker) processTask(ctx context.Context, task crawler.PageTask) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	links, err := w.indexLinks(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.deps.Result.IndexPageDone(true)
		metrics.ObserveIndexPage(metrics.StatusFailed)
		w.logger.Warn("index page failed",
			zap.String("url", task.URL),
			zap.String("tier", task.Tier),
			zap.Int("page", task.Page),
			zap.Error(err),
		)
		return w.pace(ctx, w.deps.IndexPacer)
	}

	for _, link := range links {
		if !w.deps.Seen.Claim(link) {
			w.deps.Result.DuplicateSkipped()
			metrics.ObserveCard(metrics.StatusDuplicate)
			continue
		}
		card, failed := w.scrapeCard(ctx, link)
		if ctx.Err() != nil {
			// Shutting down mid-scrape; the claim dies with this run.
			return ctx.Err()
		}
		w.deps.Result.AddCard(card, failed)
		w.persist(ctx, card)
		w.publish(ctx, card)
		if err := w.pace(ctx, w.deps.DetailPacer); err != nil {
			return err
		}
	}

	w.deps.Result.IndexPageDone(false)
	metrics.ObserveIndexPage(metrics.StatusOK)
	w.logger.Info("index page done",
		zap.String("url", task.URL),
		zap.Int("links", len(links)),
	)
	return w.pace(ctx, w.deps.IndexPacer)
}

func (w *Worker) indexLinks(ctx context.Context, task crawler.PageTask) ([]string, error) {
	doc, err := w.fetch(ctx, task.URL, w.cfg.IndexWaitSelector)
	if err != nil {
		return nil, err
	}
	links, err := extract.CardLinks(task.URL, doc.Body)
	if err != nil {
		return nil, fmt.Errorf("extract links from %s: %w", task.URL, err)
	}
	return links, nil
}

// scrapeCard fetches and extracts one detail page. A failed fetch yields a card
// carrying only its URL and reports failed=true.
func (w *Worker) scrapeCard(ctx context.Context, link string) (crawler.Card, bool) {
	card, err := w.readCard(ctx, link)
	if err != nil {
		metrics.ObserveCard(metrics.StatusFailed)
		w.logger.Warn("card scrape failed", zap.String("url", link), zap.Error(err))
		return crawler.EmptyCard(link), true
	}
	card.URL = link
	card = crawler.NormalizeCard(card)
	metrics.ObserveCard(metrics.StatusOK)
	w.logger.Info("scraped card", zap.String("url", link), zap.Stringp("name", card.Name))
	return card, false
}

func (w *Worker) readCard(ctx context.Context, link string) (crawler.Card, error) {
	request := crawler.FetchRequest{URL: link, WaitSelector: w.cfg.DetailWaitSelector}
	if w.scraper != nil {
		start := time.Now()
		card, err := w.scraper.ScrapeCard(ctx, request)
		metrics.ObserveFetch(w.cfg.Strategy, time.Since(start))
		if err != nil {
			return crawler.Card{}, fmt.Errorf("scrape card: %w", err)
		}
		return card, nil
	}
	doc, err := w.fetch(ctx, link, w.cfg.DetailWaitSelector)
	if err != nil {
		return crawler.Card{}, err
	}
	return extract.CardFromHTML(link, doc.Body)
}

func (w *Worker) fetch(ctx context.Context, url, waitSelector string) (crawler.Document, error) {
	start := time.Now()
	doc, err := w.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, WaitSelector: waitSelector})
	metrics.ObserveFetch(w.cfg.Strategy, time.Since(start))
	if err != nil {
		return crawler.Document{}, fmt.Errorf("fetch: %w", err)
	}
	return doc, nil
}

func (w *Worker) persist(ctx context.Context, card crawler.Card) {
	if w.deps.Persister == nil {
		return
	}
	if err := w.deps.Persister.Record(ctx, card); err != nil {
		w.deps.Result.PersistFailed()
		w.logger.Error("persist card failed", zap.String("url", card.URL), zap.Error(err))
	}
}

func (w *Worker) publish(ctx context.Context, card crawler.Card) {
	if w.cfg.Topic == "" || w.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id": w.cfg.RunID,
		"card":   card,
	}
	if w.deps.Clock != nil {
		payload["timestamp"] = w.deps.Clock.Now().Format(time.RFC3339)
	}
	id, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		w.logger.Warn("publish card failed", zap.String("url", card.URL), zap.Error(err))
		return
	}
	w.logger.Debug("card published", zap.String("url", card.URL), zap.String("message_id", id))
}

func (w *Worker) pace(ctx context.Context, p crawler.Pacer) error {
	if p == nil {
		return nil
	}
	if err := p.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn("pacer wait failed", zap.Error(err))
	}
	return nil
}
