// Package jsonbin stores the card collection in a remote JSON document bin.
// The whole collection is read and replaced in one request each way.
package jsonbin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/storage"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.jsonbin.io/v3"

const masterKeyHeader = "X-Master-Key"

var _ storage.Snapshot = (*Client)(nil)

// Config locates the bin.
type Config struct {
	BaseURL   string
	BinID     string
	MasterKey string
	Timeout   time.Duration
}

// Client reads and replaces one bin.
type Client struct {
	cfg  Config
	http *http.Client
}

// New validates cfg and returns a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BinID) == "" {
		return nil, fmt.Errorf("bin id is required")
	}
	if cfg.MasterKey == "" {
		return nil, fmt.Errorf("master key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// Name identifies the backend in logs and metrics.
func (c *Client) Name() string {
	return string(storage.KindJSONBin)
}

type latestResponse struct {
	Record json.RawMessage `json:"record"`
}

// Load fetches the latest bin version and returns its record array.
func (c *Client) Load(ctx context.Context) ([]crawler.Card, error) {
	url := fmt.Sprintf("%s/b/%s/latest", c.cfg.BaseURL, c.cfg.BinID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(masterKeyHeader, c.cfg.MasterKey)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var payload latestResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode bin: %w", err)
	}
	trimmed := bytes.TrimSpace(payload.Record)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []crawler.Card{}, nil
	}
	var cards []crawler.Card
	if err := json.Unmarshal(trimmed, &cards); err != nil {
		return nil, fmt.Errorf("decode bin record: %w", err)
	}
	return cards, nil
}

// Save replaces the bin contents with cards.
func (c *Client) Save(ctx context.Context, cards []crawler.Card) error {
	if cards == nil {
		cards = []crawler.Card{}
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return fmt.Errorf("encode cards: %w", err)
	}
	url := fmt.Sprintf("%s/b/%s", c.cfg.BaseURL, c.cfg.BinID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(masterKeyHeader, c.cfg.MasterKey)

	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: unexpected status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
