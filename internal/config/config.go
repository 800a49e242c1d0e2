// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/card-crawler/internal/crawler"
)

// Fetch strategies.
const (
	StrategyProxy    = "proxy"
	StrategyHeadless = "headless"
)

// Storage backends.
const (
	StorageJSONBin  = "jsonbin"
	StoragePostgres = "postgres"
	StorageGCS      = "gcs"
	StorageLocal    = "local"
	StorageMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the keep-alive and query HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
	// RequestTimeoutSeconds bounds every API request.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the frontier, worker pool and pacing.
type CrawlerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Tiers maps a tier identifier to a page count or a [start, end] pair.
	Tiers              map[string]any `mapstructure:"tiers"`
	Concurrency        int            `mapstructure:"concurrency"`
	IndexDelayMs       int            `mapstructure:"index_delay_ms"`
	DetailDelayMs      int            `mapstructure:"detail_delay_ms"`
	Pacer              string         `mapstructure:"pacer"`
	IndexWaitSelector  string         `mapstructure:"index_wait_selector"`
	DetailWaitSelector string         `mapstructure:"detail_wait_selector"`
	Interval           time.Duration  `mapstructure:"interval"`
}

// FetcherConfig selects and tunes the document fetch strategy.
type FetcherConfig struct {
	Strategy       string         `mapstructure:"strategy"`
	UserAgent      string         `mapstructure:"user_agent"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	Proxy          ProxyConfig    `mapstructure:"proxy"`
	Headless       HeadlessConfig `mapstructure:"headless"`
}

// ProxyConfig points at the rendering proxy.
type ProxyConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	APIKey       string `mapstructure:"api_key"`
	RenderWaitMs int    `mapstructure:"render_wait_ms"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	ExecPath      string `mapstructure:"exec_path"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Kind string `mapstructure:"kind"`
	// MirrorPath is the local backup file; empty disables the mirror.
	MirrorPath string        `mapstructure:"mirror_path"`
	JSONBin    JSONBinConfig `mapstructure:"jsonbin"`
	GCS        GCSConfig     `mapstructure:"gcs"`
}

// JSONBinConfig addresses one bin on the JSON bin service.
type JSONBinConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	BinID          string `mapstructure:"bin_id"`
	MasterKey      string `mapstructure:"master_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// GCSConfig addresses the snapshot object in Cloud Storage.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	CreateTable  bool   `mapstructure:"create_table"`
}

// PubSubConfig holds metadata for new-card notifications. An empty project
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level overrides the preset minimum level (debug, info, warn, error).
	Level string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 15)
	v.SetDefault("crawler.base_url", "https://shoob.gg")
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.index_delay_ms", 1500)
	v.SetDefault("crawler.detail_delay_ms", 800)
	v.SetDefault("crawler.pacer", "fixed")
	v.SetDefault("crawler.index_wait_selector", ".card-main")
	v.SetDefault("crawler.detail_wait_selector", ".breadcrumb-new")
	v.SetDefault("crawler.interval", 0)
	v.SetDefault("fetcher.strategy", StrategyProxy)
	v.SetDefault("fetcher.user_agent", "card-crawler/0.1")
	v.SetDefault("fetcher.timeout_seconds", 60)
	v.SetDefault("fetcher.proxy.render_wait_ms", 5000)
	v.SetDefault("fetcher.headless.max_parallel", 2)
	v.SetDefault("fetcher.headless.nav_timeout_seconds", 30)
	v.SetDefault("storage.kind", StorageLocal)
	v.SetDefault("storage.mirror_path", "cards_backup.json")
	v.SetDefault("storage.jsonbin.timeout_seconds", 30)
	v.SetDefault("storage.gcs.object", "cards.json")
	v.SetDefault("db.table", "cards")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("db.create_table", true)
	v.SetDefault("pubsub.topic_name", "cards")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	// Registered so AutomaticEnv can supply them when no file sets them.
	for _, key := range []string{
		"auth.api_key",
		"fetcher.proxy.endpoint",
		"fetcher.proxy.api_key",
		"fetcher.headless.exec_path",
		"storage.jsonbin.base_url",
		"storage.jsonbin.bin_id",
		"storage.jsonbin.master_key",
		"storage.gcs.bucket",
		"db.dsn",
		"pubsub.project_id",
	} {
		v.SetDefault(key, "")
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.BaseURL == "" {
		return errors.New("crawler.base_url is required")
	}
	if c.Crawler.Concurrency <= 0 {
		return errors.New("crawler.concurrency must be > 0")
	}
	if c.Crawler.IndexDelayMs < 0 || c.Crawler.DetailDelayMs < 0 {
		return errors.New("crawler delays must be >= 0")
	}
	if c.Crawler.Interval < 0 {
		return errors.New("crawler.interval must be >= 0")
	}
	if _, err := c.Targets(); err != nil {
		return err
	}
	switch c.Fetcher.Strategy {
	case StrategyProxy:
	case StrategyHeadless:
		if c.Fetcher.Headless.MaxParallel <= 0 {
			return errors.New("fetcher.headless.max_parallel must be > 0")
		}
	default:
		return fmt.Errorf("fetcher.strategy %q is not one of proxy, headless", c.Fetcher.Strategy)
	}
	switch c.Storage.Kind {
	case StorageJSONBin:
		if c.Storage.JSONBin.BinID == "" || c.Storage.JSONBin.MasterKey == "" {
			return errors.New("storage.jsonbin.bin_id and storage.jsonbin.master_key are required")
		}
	case StoragePostgres:
		if c.DB.DSN == "" {
			return errors.New("db.dsn is required for postgres storage")
		}
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket is required for gcs storage")
		}
	case StorageLocal:
		if c.Storage.MirrorPath == "" {
			return errors.New("storage.mirror_path is required for local storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.kind %q is not supported", c.Storage.Kind)
	}
	return nil
}

// Targets expands crawler.tiers into crawl targets. Numeric tiers come first
// in ascending order, then tags in lexical order. Viper lowercases map keys,
// so tag tiers are restored to upper case.
func (c Config) Targets() ([]crawler.CrawlTarget, error) {
	if len(c.Crawler.Tiers) == 0 {
		return nil, errors.New("crawler.tiers must name at least one tier")
	}
	targets := make([]crawler.CrawlTarget, 0, len(c.Crawler.Tiers))
	for key, raw := range c.Crawler.Tiers {
		tier := strings.TrimSpace(key)
		if tier == "" {
			return nil, errors.New("crawler.tiers has an empty tier")
		}
		if _, err := strconv.Atoi(tier); err != nil {
			tier = strings.ToUpper(tier)
		}
		start, end, err := pageRange(raw)
		if err != nil {
			return nil, fmt.Errorf("crawler.tiers.%s: %w", key, err)
		}
		targets = append(targets, crawler.CrawlTarget{Tier: tier, Start: start, End: end})
	}
	sort.Slice(targets, func(i, j int) bool {
		return tierLess(targets[i].Tier, targets[j].Tier)
	})
	return targets, nil
}

// FetchTimeout returns the per-document fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// Delays returns the pacing interval per pacer name.
func (c Config) Delays() (index, detail time.Duration) {
	return time.Duration(c.Crawler.IndexDelayMs) * time.Millisecond,
		time.Duration(c.Crawler.DetailDelayMs) * time.Millisecond
}

func tierLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// pageRange accepts a page count (pages 1..n) or a two-element [start, end].
func pageRange(raw any) (int, int, error) {
	switch v := raw.(type) {
	case []any:
		if len(v) != 2 {
			return 0, 0, fmt.Errorf("range needs exactly two pages, got %d", len(v))
		}
		start, err := toInt(v[0])
		if err != nil {
			return 0, 0, err
		}
		end, err := toInt(v[1])
		if err != nil {
			return 0, 0, err
		}
		if start < 1 || end < start {
			return 0, 0, fmt.Errorf("invalid range [%d, %d]", start, end)
		}
		return start, end, nil
	case []int:
		return pageRange(toAny(v))
	default:
		count, err := toInt(raw)
		if err != nil {
			return 0, 0, err
		}
		if count < 1 {
			return 0, 0, fmt.Errorf("page count must be >= 1, got %d", count)
		}
		return 1, count, nil
	}
}

func toAny(values []int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("page %v is not a whole number", v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("page %q is not a number", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported page value %v (%T)", raw, raw)
	}
}
