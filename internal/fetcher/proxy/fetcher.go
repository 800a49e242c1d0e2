// Package proxy implements crawler.Fetcher on top of a rendering proxy service,
// using gocolly for the outbound request.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/card-crawler/internal/crawler"
)

var _ crawler.Fetcher = (*Fetcher)(nil)

// Config controls the proxy request.
type Config struct {
	// Endpoint is the rendering proxy URL. When empty, targets are fetched directly.
	Endpoint string
	APIKey   string
	// RenderWait is how long the proxy lets the page settle after the selector appears.
	RenderWait time.Duration
	UserAgent  string
	Timeout    time.Duration
}

// Fetcher issues one GET per document through the rendering proxy.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Every fetch clones one base collector so they all share
// a pooled transport.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch retrieves the rendered markup for request.URL. Any non-2xx reply from
// the proxy is reported as a FetchStatus error. Nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.Document, error) {
	target, err := f.RequestURL(request)
	if err != nil {
		return crawler.Document{}, &crawler.FetchError{URL: request.URL, Kind: crawler.FetchTransport, Err: err}
	}

	var (
		doc     crawler.Document
		status  int
		hookErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, request.URL, start, &doc, &status, &hookErr)

	if err := runCollector(ctx, collector, target); err != nil {
		if ctx.Err() != nil {
			return crawler.Document{}, f.classify(request.URL, 0, err, nil)
		}
		return crawler.Document{}, f.classify(request.URL, status, err, hookErr)
	}
	if hookErr != nil {
		return crawler.Document{}, f.classify(request.URL, status, hookErr, nil)
	}
	return doc, nil
}

// RequestURL builds the proxy URL for request.
func (f *Fetcher) RequestURL(request crawler.FetchRequest) (string, error) {
	if _, err := url.ParseRequestURI(request.URL); err != nil {
		return "", fmt.Errorf("invalid target url: %w", err)
	}
	if f.cfg.Endpoint == "" {
		return request.URL, nil
	}
	endpoint, err := url.Parse(f.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid proxy endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", request.URL)
	q.Set("browser", "true")
	if request.WaitSelector != "" {
		q.Set("wait_for_selector", request.WaitSelector)
	}
	if f.cfg.RenderWait > 0 {
		q.Set("wait", strconv.FormatInt(f.cfg.RenderWait.Milliseconds(), 10))
	}
	if f.cfg.APIKey != "" {
		q.Set("x-api-key", f.cfg.APIKey)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	target string,
	start time.Time,
	doc *crawler.Document,
	status *int,
	hookErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
		if r.StatusCode < 200 || r.StatusCode > 299 {
			*hookErr = fmt.Errorf("unexpected status %d", r.StatusCode)
			return
		}
		*doc = crawler.Document{
			URL:        target,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*hookErr = err
	})
}

func (f *Fetcher) classify(target string, status int, err, hookErr error) error {
	if hookErr != nil {
		err = hookErr
	}
	switch {
	case status != 0 && (status < 200 || status > 299):
		return &crawler.FetchError{URL: target, Kind: crawler.FetchStatus, Status: status, Err: err}
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return &crawler.FetchError{URL: target, Kind: crawler.FetchTimeout, Err: err}
	default:
		return &crawler.FetchError{URL: target, Kind: crawler.FetchTransport, Err: err}
	}
}

// runCollector visits target on a collector bound to ctx. Visit is synchronous,
// so the hooks have finished writing by the time it returns.
func runCollector(ctx context.Context, collector *colly.Collector, target string) error {
	collector.Context = ctx
	err := collector.Visit(target)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("proxy fetch canceled: %w", ctxErr)
	}
	if err != nil {
		return fmt.Errorf("proxy visit failed: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
