package crawler

import (
	"sync"
	"sync/atomic"
)

// SeenSet tracks card URLs already ingested or claimed during this run.
// It only grows. Claim is an atomic insert so two workers can never both win
// the same URL.
type SeenSet struct {
	seen sync.Map
	size atomic.Int64
}

// NewSeenSet returns a set seeded with previously persisted URLs.
func NewSeenSet(known ...string) *SeenSet {
	s := &SeenSet{}
	for _, u := range known {
		s.Claim(u)
	}
	return s
}

// Claim stores the URL if it has not been seen before and returns true.
// Empty URLs are never claimable.
func (s *SeenSet) Claim(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := s.seen.LoadOrStore(url, struct{}{})
	if loaded {
		return false
	}
	s.size.Add(1)
	return true
}

// Len returns the number of URLs in the set.
func (s *SeenSet) Len() int {
	return int(s.size.Load())
}
