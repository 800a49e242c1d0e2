package crawler

import (
	"time"
)

// Card is one catalog record extracted from a detail page.
// URL is the identity key; every other field is nil when extraction found nothing.
type Card struct {
	URL    string  `json:"url"`
	Name   *string `json:"name"`
	Tier   *string `json:"tier"`
	Series *string `json:"series"`
	Img    *string `json:"img"`
	Maker  *string `json:"maker"`
}

// EmptyCard returns a card carrying only its URL. It stands in for a detail
// page that could not be fetched.
func EmptyCard(url string) Card {
	return Card{URL: url}
}

// CrawlTarget is one tier plus a contiguous, inclusive page range.
type CrawlTarget struct {
	Tier  string `json:"tier"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Pages reports how many index pages the target covers.
func (t CrawlTarget) Pages() int {
	if t.End < t.Start {
		return 0
	}
	return t.End - t.Start + 1
}

// PageTask is one index page to visit.
type PageTask struct {
	Tier string
	Page int
	URL  string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL string
	// WaitSelector is the CSS selector that must be present before the
	// document counts as rendered.
	WaitSelector string
}

// Document is the raw markup returned by a Fetcher.
type Document struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// RunSummary reports what a single crawl run did.
type RunSummary struct {
	RunID             string        `json:"run_id"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	KnownAtStart      int           `json:"known_at_start"`
	IndexPages        int           `json:"index_pages"`
	IndexPagesFailed  int           `json:"index_pages_failed"`
	CardsScraped      int           `json:"cards_scraped"`
	CardsFailed       int           `json:"cards_failed"`
	DuplicatesSkipped int           `json:"duplicates_skipped"`
	PersistFailures   int           `json:"persist_failures"`
	Duration          time.Duration `json:"duration"`
}
