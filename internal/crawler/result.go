package crawler

import "sync"

// CrawlResult accumulates the cards scraped during one run together with the
// run counters. It is safe for concurrent use by multiple workers.
type CrawlResult struct {
	mu       sync.Mutex
	cards    []Card
	counters RunSummary
}

// NewCrawlResult returns an empty result.
func NewCrawlResult() *CrawlResult {
	return &CrawlResult{}
}

// AddCard appends a newly scraped card. failed marks a card that stands in
// for a detail page which could not be fetched.
func (r *CrawlResult) AddCard(card Card, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards = append(r.cards, card)
	if failed {
		r.counters.CardsFailed++
		return
	}
	r.counters.CardsScraped++
}

// IndexPageDone records the outcome of one index page.
func (r *CrawlResult) IndexPageDone(failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.IndexPages++
	if failed {
		r.counters.IndexPagesFailed++
	}
}

// DuplicateSkipped counts a link that was already in the seen set.
func (r *CrawlResult) DuplicateSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.DuplicatesSkipped++
}

// PersistFailed counts a card that could not be written.
func (r *CrawlResult) PersistFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.PersistFailures++
}

// Cards returns a copy of the accumulated cards.
func (r *CrawlResult) Cards() []Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Card, len(r.cards))
	copy(out, r.cards)
	return out
}

// Summary returns a snapshot of the counters.
func (r *CrawlResult) Summary() RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}
