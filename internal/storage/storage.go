// Package storage adapts card backends to crawler.Persister. Whole-collection
// backends sit behind BulkPersister; per-record backends behind RecordPersister.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/metrics"
)

// Kind names a configured backend.
type Kind string

// Supported backends.
const (
	KindJSONBin  Kind = "jsonbin"
	KindPostgres Kind = "postgres"
	KindGCS      Kind = "gcs"
	KindLocal    Kind = "local"
	KindMemory   Kind = "memory"
)

// Snapshot loads and saves an entire card collection in one call.
type Snapshot interface {
	Name() string
	Load(ctx context.Context) ([]crawler.Card, error)
	Save(ctx context.Context, cards []crawler.Card) error
}

// Records stores cards one at a time, keyed by URL.
type Records interface {
	Name() string
	KnownURLs(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, card crawler.Card) error
	ListCards(ctx context.Context) ([]crawler.Card, error)
	FindByName(ctx context.Context, name string) ([]crawler.Card, error)
	Close() error
}

// Mirror is the local backup written alongside the primary backend.
type Mirror interface {
	Save(ctx context.Context, cards []crawler.Card) error
	Upsert(ctx context.Context, card crawler.Card) error
}

var (
	_ crawler.Persister  = (*BulkPersister)(nil)
	_ crawler.CardReader = (*BulkPersister)(nil)
	_ crawler.Persister  = (*RecordPersister)(nil)
	_ crawler.CardReader = (*RecordPersister)(nil)
)

// BulkPersister keeps the whole collection in memory and writes it back once
// per Flush. A crash before Flush loses the run's cards; the mirror exists for that.
type BulkPersister struct {
	snapshot Snapshot
	mirror   Mirror
	logger   *zap.Logger

	mu     sync.RWMutex
	cards  map[string]crawler.Card
	order  []string
	loaded bool
}

// NewBulkPersister wraps snapshot. mirror may be nil.
func NewBulkPersister(snapshot Snapshot, mirror Mirror, logger *zap.Logger) *BulkPersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkPersister{
		snapshot: snapshot,
		mirror:   mirror,
		logger:   logger.Named("storage").With(zap.String("backend", snapshot.Name())),
		cards:    make(map[string]crawler.Card),
	}
}

// KnownURLs loads the stored collection, retains it for the next Flush and
// returns every URL held: stored ones plus any recorded but not yet saved.
func (p *BulkPersister) KnownURLs(ctx context.Context) ([]string, error) {
	cards, err := p.snapshot.Load(ctx)
	if err != nil {
		return nil, p.loadFailed(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.merge(cards)
	p.loaded = true
	return append([]string(nil), p.order...), nil
}

// Record upserts card into the in-memory collection.
func (p *BulkPersister) Record(_ context.Context, card crawler.Card) error {
	if card.URL == "" {
		return crawler.ErrMissingURL
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.put(card)
	return nil
}

// Flush writes the mirror and then the remote collection. If the collection
// was never loaded it is re-read first so stored cards are not overwritten;
// when that also fails only the mirror is written.
func (p *BulkPersister) Flush(ctx context.Context) error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if !loaded {
		if _, err := p.KnownURLs(ctx); err != nil {
			p.writeMirror(ctx, p.snapshotCards())
			return p.writeFailed(fmt.Errorf("collection not loaded, refusing to overwrite: %w", err))
		}
	}

	cards := p.snapshotCards()
	p.writeMirror(ctx, cards)
	if err := p.snapshot.Save(ctx, cards); err != nil {
		return p.writeFailed(err)
	}
	p.logger.Info("collection saved", zap.Int("cards", len(cards)))
	return nil
}

// Close is a no-op; snapshot backends hold no connections.
func (p *BulkPersister) Close() error {
	return nil
}

// ListCards returns the loaded and recorded cards in insertion order.
func (p *BulkPersister) ListCards(context.Context) ([]crawler.Card, error) {
	return p.snapshotCards(), nil
}

// FindByName returns cards whose name matches case-insensitively.
func (p *BulkPersister) FindByName(_ context.Context, name string) ([]crawler.Card, error) {
	return MatchName(p.snapshotCards(), name), nil
}

func (p *BulkPersister) merge(cards []crawler.Card) {
	for _, c := range cards {
		if c.URL == "" {
			continue
		}
		if _, ok := p.cards[c.URL]; ok {
			// Cards recorded this run win over the stored copy.
			continue
		}
		p.put(c)
	}
}

func (p *BulkPersister) put(card crawler.Card) {
	if _, ok := p.cards[card.URL]; !ok {
		p.order = append(p.order, card.URL)
	}
	p.cards[card.URL] = card
}

func (p *BulkPersister) snapshotCards() []crawler.Card {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.Card, 0, len(p.order))
	for _, u := range p.order {
		out = append(out, p.cards[u])
	}
	return out
}

func (p *BulkPersister) writeMirror(ctx context.Context, cards []crawler.Card) {
	if p.mirror == nil {
		return
	}
	if err := p.mirror.Save(ctx, cards); err != nil {
		metrics.ObservePersistError(string(KindLocal), string(crawler.PersistWrite))
		p.logger.Error("mirror write failed", zap.Error(err))
	}
}

func (p *BulkPersister) loadFailed(err error) error {
	metrics.ObservePersistError(p.snapshot.Name(), string(crawler.PersistLoad))
	return &crawler.PersistenceError{Op: crawler.PersistLoad, Backend: p.snapshot.Name(), Err: err}
}

func (p *BulkPersister) writeFailed(err error) error {
	metrics.ObservePersistError(p.snapshot.Name(), string(crawler.PersistWrite))
	return &crawler.PersistenceError{Op: crawler.PersistWrite, Backend: p.snapshot.Name(), Err: err}
}

// RecordPersister upserts every card as soon as it is recorded and mirrors it
// into the local backup.
type RecordPersister struct {
	records Records
	mirror  Mirror
	logger  *zap.Logger
}

// NewRecordPersister wraps records. mirror may be nil.
func NewRecordPersister(records Records, mirror Mirror, logger *zap.Logger) *RecordPersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordPersister{
		records: records,
		mirror:  mirror,
		logger:  logger.Named("storage").With(zap.String("backend", records.Name())),
	}
}

// KnownURLs returns the stored URLs only.
func (p *RecordPersister) KnownURLs(ctx context.Context) ([]string, error) {
	urls, err := p.records.KnownURLs(ctx)
	if err != nil {
		metrics.ObservePersistError(p.records.Name(), string(crawler.PersistLoad))
		return nil, &crawler.PersistenceError{Op: crawler.PersistLoad, Backend: p.records.Name(), Err: err}
	}
	return urls, nil
}

// Record upserts card keyed by URL, then mirrors it. Mirror failures are
// logged and do not fail the record.
func (p *RecordPersister) Record(ctx context.Context, card crawler.Card) error {
	if card.URL == "" {
		return crawler.ErrMissingURL
	}
	if err := p.records.Upsert(ctx, card); err != nil {
		metrics.ObservePersistError(p.records.Name(), string(crawler.PersistWrite))
		return &crawler.PersistenceError{Op: crawler.PersistWrite, Backend: p.records.Name(), Err: err}
	}
	if p.mirror != nil {
		if err := p.mirror.Upsert(ctx, card); err != nil {
			metrics.ObservePersistError(string(KindLocal), string(crawler.PersistWrite))
			p.logger.Error("mirror write failed", zap.String("url", card.URL), zap.Error(err))
		}
	}
	return nil
}

// Flush is a no-op; every record is already durable.
func (p *RecordPersister) Flush(context.Context) error {
	return nil
}

// Close releases the backend.
func (p *RecordPersister) Close() error {
	if err := p.records.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p.records.Name(), err)
	}
	return nil
}

// ListCards delegates to the backend.
func (p *RecordPersister) ListCards(ctx context.Context) ([]crawler.Card, error) {
	cards, err := p.records.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

// FindByName delegates to the backend.
func (p *RecordPersister) FindByName(ctx context.Context, name string) ([]crawler.Card, error) {
	cards, err := p.records.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find cards by name: %w", err)
	}
	return cards, nil
}

// MatchName filters cards to those whose trimmed name equals name, ignoring case.
func MatchName(cards []crawler.Card, name string) []crawler.Card {
	name = strings.TrimSpace(name)
	out := []crawler.Card{}
	if name == "" {
		return out
	}
	for _, c := range cards {
		if c.Name != nil && strings.EqualFold(strings.TrimSpace(*c.Name), name) {
			out = append(out, c)
		}
	}
	return out
}

// SortByURL orders cards by URL in place and returns them.
func SortByURL(cards []crawler.Card) []crawler.Card {
	sort.Slice(cards, func(i, j int) bool { return cards[i].URL < cards[j].URL })
	return cards
}

// Upsert replaces the card with the same URL in cards or appends it.
func Upsert(cards []crawler.Card, card crawler.Card) []crawler.Card {
	for i := range cards {
		if cards[i].URL == card.URL {
			cards[i] = card
			return cards
		}
	}
	return append(cards, card)
}
