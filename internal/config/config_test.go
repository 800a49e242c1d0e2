package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/card-crawler/internal/crawler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  base_url: https://cards.example
  concurrency: 3
  index_delay_ms: 100
  detail_delay_ms: 50
  pacer: token_bucket
  interval: 10m
  tiers:
    S: [2, 4]
    6: 30
    2: [1, 3]
fetcher:
  strategy: headless
  headless:
    max_parallel: 3
storage:
  kind: postgres
db:
  dsn: postgres://localhost/cards
logging:
  development: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.Concurrency != 3 || cfg.Crawler.Pacer != "token_bucket" {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Crawler.Interval != 10*time.Minute {
		t.Fatalf("expected interval 10m, got %v", cfg.Crawler.Interval)
	}
	if cfg.Fetcher.Strategy != StrategyHeadless || cfg.Fetcher.Headless.MaxParallel != 3 {
		t.Fatalf("expected headless fetcher: %+v", cfg.Fetcher)
	}
	if cfg.Storage.Kind != StoragePostgres || cfg.DB.Table != "cards" {
		t.Fatalf("expected postgres storage with default table: %+v %+v", cfg.Storage, cfg.DB)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging.development override to false")
	}
	index, detail := cfg.Delays()
	if index != 100*time.Millisecond || detail != 50*time.Millisecond {
		t.Fatalf("unexpected delays %v %v", index, detail)
	}

	targets, err := cfg.Targets()
	if err != nil {
		t.Fatalf("Targets() error = %v", err)
	}
	want := []crawler.CrawlTarget{
		{Tier: "2", Start: 1, End: 3},
		{Tier: "6", Start: 1, End: 30},
		{Tier: "S", Start: 2, End: 4},
	}
	if len(targets) != len(want) {
		t.Fatalf("expected %d targets, got %+v", len(want), targets)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("target %d = %+v, want %+v", i, targets[i], want[i])
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "crawler:\n  tiers:\n    1: 790\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.BaseURL != "https://shoob.gg" {
		t.Fatalf("unexpected base url %q", cfg.Crawler.BaseURL)
	}
	if cfg.Crawler.Concurrency != 1 || cfg.Crawler.IndexDelayMs != 1500 || cfg.Crawler.DetailDelayMs != 800 {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.Fetcher.Strategy != StrategyProxy || cfg.Fetcher.Proxy.RenderWaitMs != 5000 {
		t.Fatalf("unexpected fetcher defaults: %+v", cfg.Fetcher)
	}
	if cfg.FetchTimeout() != time.Minute {
		t.Fatalf("unexpected fetch timeout %v", cfg.FetchTimeout())
	}
	if cfg.Storage.Kind != StorageLocal || cfg.Storage.MirrorPath == "" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Crawler.Interval != 0 {
		t.Fatalf("expected a single pass by default, got %v", cfg.Crawler.Interval)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no tiers":          "crawler:\n  concurrency: 2\n",
		"zero concurrency":  "crawler:\n  concurrency: 0\n  tiers:\n    1: 2\n",
		"bad range":         "crawler:\n  tiers:\n    1: [5, 2]\n",
		"three element":     "crawler:\n  tiers:\n    1: [1, 2, 3]\n",
		"zero pages":        "crawler:\n  tiers:\n    1: 0\n",
		"unknown strategy":  "crawler:\n  tiers:\n    1: 2\nfetcher:\n  strategy: carrier-pigeon\n",
		"unknown storage":   "crawler:\n  tiers:\n    1: 2\nstorage:\n  kind: floppy\n",
		"jsonbin no key":    "crawler:\n  tiers:\n    1: 2\nstorage:\n  kind: jsonbin\n  jsonbin:\n    bin_id: abc\n",
		"gcs no bucket":     "crawler:\n  tiers:\n    1: 2\nstorage:\n  kind: gcs\n",
		"postgres no dsn":   "crawler:\n  tiers:\n    1: 2\nstorage:\n  kind: postgres\n",
		"auth without key":  "crawler:\n  tiers:\n    1: 2\nauth:\n  enabled: true\n",
		"negative interval": "crawler:\n  interval: -1s\n  tiers:\n    1: 2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CARDS_CRAWLER_CONCURRENCY", "5")
	t.Setenv("CARDS_STORAGE_KIND", "memory")
	t.Setenv("CARDS_FETCHER_PROXY_API_KEY", "from-env")

	cfg, err := Load(writeConfig(t, "crawler:\n  tiers:\n    1: 2\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Concurrency != 5 {
		t.Fatalf("expected env concurrency 5, got %d", cfg.Crawler.Concurrency)
	}
	if cfg.Storage.Kind != StorageMemory {
		t.Fatalf("expected env storage kind memory, got %q", cfg.Storage.Kind)
	}
	if cfg.Fetcher.Proxy.APIKey != "from-env" {
		t.Fatalf("expected proxy api key from env, got %q", cfg.Fetcher.Proxy.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read config error, got %v", err)
	}
}

func TestTargetsAcceptsLooseValues(t *testing.T) {
	t.Parallel()

	cfg := Config{Crawler: CrawlerConfig{Tiers: map[string]any{
		"3":  float64(4),
		"1":  "2",
		"tx": []int{5, 6},
	}}}
	targets, err := cfg.Targets()
	if err != nil {
		t.Fatalf("Targets() error = %v", err)
	}
	if targets[0] != (crawler.CrawlTarget{Tier: "1", Start: 1, End: 2}) ||
		targets[1] != (crawler.CrawlTarget{Tier: "3", Start: 1, End: 4}) ||
		targets[2] != (crawler.CrawlTarget{Tier: "TX", Start: 5, End: 6}) {
		t.Fatalf("unexpected targets %+v", targets)
	}

	cfg.Crawler.Tiers = map[string]any{"1": 2.5}
	if _, err := cfg.Targets(); err == nil {
		t.Fatalf("expected fractional page count to fail")
	}
}
