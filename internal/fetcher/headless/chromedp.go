// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/extract"
)

var (
	_ crawler.Fetcher     = (*Fetcher)(nil)
	_ crawler.CardScraper = (*Fetcher)(nil)
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath string
}

// Fetcher implements crawler.Fetcher using chromedp and headless Chrome.
// Every call opens its own tab in a shared browser, which is launched on the
// first fetch.
type Fetcher struct {
	cfg           Config
	limiter       chan struct{}
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	startOnce sync.Once
	startErr  error
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.browserCancel()
	f.allocCancel()
}

// start launches the shared browser once. A failed launch is reported to
// every later caller.
func (f *Fetcher) start() error {
	f.startOnce.Do(func() {
		if err := chromedp.Run(f.browserCtx); err != nil {
			f.startErr = fmt.Errorf("chromedp warmup: %w", err)
		}
	})
	return f.startErr
}

// Fetch navigates to the URL, waits for the selector and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.Document, error) {
	var (
		html  string
		start = time.Now()
	)
	status, err := f.withTab(ctx, request, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return crawler.Document{}, err
	}
	return crawler.Document{
		URL:        request.URL,
		StatusCode: status,
		Body:       []byte(html),
		Duration:   time.Since(start),
	}, nil
}

// ScrapeCard reads the card fields straight from the live DOM, skipping the
// serialize and parse round trip.
func (f *Fetcher) ScrapeCard(ctx context.Context, request crawler.FetchRequest) (crawler.Card, error) {
	var fields domCard
	if _, err := f.withTab(ctx, request, chromedp.Evaluate(cardScript, &fields)); err != nil {
		return crawler.Card{}, err
	}
	return crawler.Card{
		URL:    request.URL,
		Name:   fields.Name,
		Tier:   fields.Tier,
		Series: fields.Series,
		Img:    fields.Img,
		Maker:  fields.Maker,
	}, nil
}

// withTab opens a tab, navigates, waits for the request's selector and then runs
// read. The tab and its slot are released on every return path.
func (f *Fetcher) withTab(ctx context.Context, request crawler.FetchRequest, read chromedp.Action) (int, error) {
	if err := f.acquire(ctx); err != nil {
		return 0, err
	}
	defer f.release()

	if err := f.start(); err != nil {
		return 0, &crawler.FetchError{URL: request.URL, Kind: crawler.FetchNavigation, Err: err}
	}

	tabCtx, tabCancel := chromedp.NewContext(f.browserCtx)
	defer tabCancel()
	// Tie the tab to the caller so shutdown closes it promptly.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	tabCtx, cancel := context.WithTimeout(tabCtx, f.navTimeout())
	defer cancel()

	meta := &responseMeta{}
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	if err := chromedp.Run(tabCtx, f.setupAction(), chromedp.Navigate(request.URL)); err != nil {
		return 0, classify(ctx, request.URL, crawler.FetchNavigation, err)
	}
	status := meta.statusOrOK()
	if status < 200 || status > 299 {
		return status, &crawler.FetchError{URL: request.URL, Kind: crawler.FetchStatus, Status: status}
	}
	if err := chromedp.Run(tabCtx, waitAction(request.WaitSelector), read); err != nil {
		return status, classify(ctx, request.URL, crawler.FetchTimeout, err)
	}
	return status, nil
}

// classify maps a chromedp failure to a FetchError. Deadline errors are
// timeouts; anything else during stage keeps stage's kind.
func classify(parent context.Context, url string, stage crawler.FetchErrorKind, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("headless fetch canceled: %w", parent.Err())
	}
	kind := stage
	if errors.Is(err, context.DeadlineExceeded) {
		kind = crawler.FetchTimeout
	} else if stage == crawler.FetchTimeout {
		kind = crawler.FetchNavigation
	}
	return &crawler.FetchError{URL: url, Kind: kind, Err: fmt.Errorf("chromedp run: %w", err)}
}

func (f *Fetcher) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func waitAction(selector string) chromedp.Action {
	if selector == "" {
		return chromedp.WaitReady("body", chromedp.ByQuery)
	}
	return chromedp.WaitReady(selector, chromedp.ByQuery)
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

// responseMeta records the status of the main document response.
type responseMeta struct {
	mu     sync.Mutex
	status int
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == 0 {
		m.status = int(resp.Response.Status)
	}
}

func (m *responseMeta) statusOrOK() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == 0 {
		return 200
	}
	return m.status
}

type domCard struct {
	Name   *string `json:"name"`
	Tier   *string `json:"tier"`
	Series *string `json:"series"`
	Img    *string `json:"img"`
	Maker  *string `json:"maker"`
}

var cardScript = buildCardScript()

func buildCardScript() string {
	quote := func(s string) string {
		b, _ := json.Marshal(s)
		return string(b)
	}
	return fmt.Sprintf(`(() => {
  const text = (sel) => {
    const el = document.querySelector(sel);
    return el ? el.textContent : null;
  };
  const img = document.querySelector(%s);
  return {
    name: text(%s),
    tier: text(%s),
    series: text(%s),
    img: img ? img.getAttribute("src") : null,
    maker: text(%s),
  };
})()`,
		quote(extract.ImageSelector),
		quote(extract.NameSelector),
		quote(extract.TierSelector),
		quote(extract.SeriesSelector),
		quote(extract.MakerSelector),
	)
}
