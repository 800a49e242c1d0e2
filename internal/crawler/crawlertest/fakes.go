// Package crawlertest provides in-memory test doubles for the crawler interfaces.
package crawlertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/card-crawler/internal/crawler"
)

// Site is a fake Fetcher serving canned pages by URL. It records every fetch
// and the highest number of fetches that were in flight at the same time.
type Site struct {
	mu       sync.Mutex
	pages    map[string]string
	errs     map[string]error
	calls    map[string]int
	inFlight int
	peak     int
	// Latency is how long each fetch holds its slot.
	Latency time.Duration
}

// NewSite returns an empty fake site.
func NewSite() *Site {
	return &Site{
		pages: make(map[string]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Page registers markup for url.
func (s *Site) Page(url, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = html
	return s
}

// Fail makes fetches of url return err.
func (s *Site) Fail(url string, err error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[url] = err
	return s
}

// Fetch implements crawler.Fetcher.
func (s *Site) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.Document, error) {
	s.enter(request.URL)
	defer s.leave()

	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return crawler.Document{}, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	html, ok := s.pages[request.URL]
	err := s.errs[request.URL]
	s.mu.Unlock()
	if err != nil {
		return crawler.Document{}, err
	}
	if !ok {
		return crawler.Document{}, &crawler.FetchError{URL: request.URL, Kind: crawler.FetchStatus, Status: 404}
	}
	return crawler.Document{URL: request.URL, StatusCode: 200, Body: []byte(html)}, nil
}

// Calls reports how many times url was fetched.
func (s *Site) Calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

// TotalCalls reports the number of fetches across all URLs.
func (s *Site) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Peak reports the maximum number of concurrent fetches observed.
func (s *Site) Peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

func (s *Site) enter(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
}

func (s *Site) leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
}

// IndexHTML renders an index page linking to the given detail paths.
func IndexHTML(paths ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="card-main">`)
	for _, p := range paths {
		fmt.Fprintf(&b, `<a href="%s">card</a>`, p)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// DetailHTML renders a detail page with the given name and tier label.
func DetailHTML(name, tier string) string {
	return fmt.Sprintf(`<html><body><ol class="breadcrumb-new">
<li><span itemprop="name">Home</span></li>
<li><span itemprop="name">Cards</span></li>
<li><span itemprop="name">%s</span></li>
<li><span itemprop="name">Series</span></li>
<li><span itemprop="name">%s</span></li>
</ol></body></html>`, tier, name)
}

// Persister is an in-memory crawler.Persister that keeps cards keyed by URL.
type Persister struct {
	mu       sync.Mutex
	cards    map[string]crawler.Card
	records  int
	flushes  int
	LoadErr  error
	WriteErr error
}

// NewPersister returns a persister seeded with cards.
func NewPersister(cards ...crawler.Card) *Persister {
	p := &Persister{cards: make(map[string]crawler.Card)}
	for _, c := range cards {
		p.cards[c.URL] = c
	}
	return p
}

// KnownURLs implements crawler.Persister.
func (p *Persister) KnownURLs(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LoadErr != nil {
		return nil, p.LoadErr
	}
	urls := make([]string, 0, len(p.cards))
	for u := range p.cards {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls, nil
}

// Record implements crawler.Persister.
func (p *Persister) Record(_ context.Context, card crawler.Card) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records++
	if p.WriteErr != nil {
		return p.WriteErr
	}
	if card.URL == "" {
		return crawler.ErrMissingURL
	}
	p.cards[card.URL] = card
	return nil
}

// Flush implements crawler.Persister.
func (p *Persister) Flush(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return p.WriteErr
}

// Close implements crawler.Persister.
func (p *Persister) Close() error {
	return nil
}

// Cards returns the stored cards sorted by URL.
func (p *Persister) Cards() []crawler.Card {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]crawler.Card, 0, len(p.cards))
	for _, c := range p.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Records reports how many Record calls were made.
func (p *Persister) Records() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records
}

// Flushes reports how many Flush calls were made.
func (p *Persister) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

// ErrUnavailable is a canned backend failure.
var ErrUnavailable = errors.New("backend unavailable")

// Clock is a fixed crawler.Clock.
type Clock struct {
	T time.Time
}

// Now implements crawler.Clock.
func (c Clock) Now() time.Time {
	return c.T
}

// IDs hands out the configured IDs in order, then "run-N".
type IDs struct {
	mu  sync.Mutex
	ids []string
	n   int
}

// NewIDs returns an IDGenerator yielding ids.
func NewIDs(ids ...string) *IDs {
	return &IDs{ids: ids}
}

// NewID implements crawler.IDGenerator.
func (g *IDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if len(g.ids) > 0 {
		id := g.ids[0]
		g.ids = g.ids[1:]
		return id, nil
	}
	return fmt.Sprintf("run-%d", g.n), nil
}
