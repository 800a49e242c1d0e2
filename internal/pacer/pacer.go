// Package pacer spaces out requests so a worker does not overwhelm the upstream site.
package pacer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/metrics"
)

// Kind selects a pacing strategy.
type Kind string

// Supported pacing strategies.
const (
	KindFixed       Kind = "fixed"
	KindTokenBucket Kind = "token_bucket"
)

var (
	_ crawler.Pacer = (*Fixed)(nil)
	_ crawler.Pacer = (*TokenBucket)(nil)
)

// Fixed sleeps for a constant interval on every Wait.
type Fixed struct {
	interval time.Duration
	name     string
}

// NewFixed returns a pacer that always waits interval.
func NewFixed(name string, interval time.Duration) *Fixed {
	return &Fixed{interval: interval, name: name}
}

// Wait blocks for the interval or until ctx ends.
func (f *Fixed) Wait(ctx context.Context) error {
	if f.interval <= 0 {
		return nil
	}
	timer := time.NewTimer(f.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacer wait: %w", ctx.Err())
	case <-timer.C:
		metrics.ObservePacingDelay(f.name, f.interval)
		return nil
	}
}

// TokenBucket allows one request per interval, without bursting.
// Unlike Fixed it only blocks when calls arrive faster than the interval.
type TokenBucket struct {
	limiter *rate.Limiter
	name    string
}

// NewTokenBucket builds a limiter that releases one token per interval.
func NewTokenBucket(name string, interval time.Duration) *TokenBucket {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &TokenBucket{limiter: rate.NewLimiter(limit, 1), name: name}
}

// Wait blocks until a token is available, respecting the context.
func (t *TokenBucket) Wait(ctx context.Context) error {
	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePacingDelay(t.name, waited)
	}
	return nil
}

// Factory builds a fresh pacer per worker so delays are serialized per worker,
// not shared across the pool.
type Factory func(name string) crawler.Pacer

// NewFactory returns a Factory for kind with the per-name intervals.
func NewFactory(kind Kind, intervals map[string]time.Duration) (Factory, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindFixed, "":
		return func(name string) crawler.Pacer { return NewFixed(name, intervals[name]) }, nil
	case KindTokenBucket:
		return func(name string) crawler.Pacer { return NewTokenBucket(name, intervals[name]) }, nil
	default:
		return nil, fmt.Errorf("unknown pacer kind %q", kind)
	}
}
