// Package memory keeps cards in process memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/storage"
)

var _ storage.Records = (*Store)(nil)

// Store is a URL-keyed card map.
type Store struct {
	mu    sync.RWMutex
	cards map[string]crawler.Card
}

// NewStore returns a store seeded with cards.
func NewStore(cards ...crawler.Card) *Store {
	s := &Store{cards: make(map[string]crawler.Card, len(cards))}
	for _, c := range cards {
		s.cards[c.URL] = c
	}
	return s
}

// Name identifies the backend in logs and metrics.
func (s *Store) Name() string {
	return string(storage.KindMemory)
}

// KnownURLs returns every stored URL.
func (s *Store) KnownURLs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := make([]string, 0, len(s.cards))
	for u := range s.cards {
		urls = append(urls, u)
	}
	return urls, nil
}

// Upsert stores card under its URL.
func (s *Store) Upsert(_ context.Context, card crawler.Card) error {
	if card.URL == "" {
		return crawler.ErrMissingURL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.URL] = card
	return nil
}

// ListCards returns all cards ordered by URL.
func (s *Store) ListCards(context.Context) ([]crawler.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Card, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, c)
	}
	return storage.SortByURL(out), nil
}

// FindByName returns cards whose name matches case-insensitively.
func (s *Store) FindByName(ctx context.Context, name string) ([]crawler.Card, error) {
	cards, _ := s.ListCards(ctx)
	return storage.MatchName(cards, name), nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
