// Package postgres persists cards one row per URL.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var _ storage.Records = (*Store)(nil)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// CreateTable issues CREATE TABLE IF NOT EXISTS on startup.
	CreateTable bool
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store upserts cards into a table keyed by url.
type Store struct {
	pool  pool
	table string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p, table: table}
	if cfg.CreateTable {
		if err := s.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "cards"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Name identifies the backend in logs and metrics.
func (s *Store) Name() string {
	return string(storage.KindPostgres)
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// EnsureSchema creates the cards table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url        TEXT PRIMARY KEY,
	name       TEXT,
	tier       TEXT,
	series     TEXT,
	img        TEXT,
	maker      TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// KnownURLs returns every stored url without loading the rows.
func (s *Store) KnownURLs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT url FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("select urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return urls, nil
}

// Upsert inserts card or overwrites the row with the same url.
func (s *Store) Upsert(ctx context.Context, card crawler.Card) error {
	if card.URL == "" {
		return crawler.ErrMissingURL
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, name, tier, series, img, maker)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (url) DO UPDATE SET
	name = EXCLUDED.name,
	tier = EXCLUDED.tier,
	series = EXCLUDED.series,
	img = EXCLUDED.img,
	maker = EXCLUDED.maker,
	updated_at = now()`, s.table)
	_, err := s.pool.Exec(ctx, query, card.URL, card.Name, card.Tier, card.Series, card.Img, card.Maker)
	if err != nil {
		return fmt.Errorf("upsert card: %w", err)
	}
	return nil
}

// ListCards returns every card ordered by url.
func (s *Store) ListCards(ctx context.Context) ([]crawler.Card, error) {
	return s.queryCards(ctx, fmt.Sprintf(
		`SELECT url, name, tier, series, img, maker FROM %s ORDER BY url`, s.table))
}

// FindByName returns cards whose name matches, ignoring case.
func (s *Store) FindByName(ctx context.Context, name string) ([]crawler.Card, error) {
	return s.queryCards(ctx, fmt.Sprintf(
		`SELECT url, name, tier, series, img, maker FROM %s WHERE lower(name) = lower($1) ORDER BY url`, s.table),
		name)
}

func (s *Store) queryCards(ctx context.Context, query string, args ...any) ([]crawler.Card, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select cards: %w", err)
	}
	defer rows.Close()

	cards := []crawler.Card{}
	for rows.Next() {
		var c crawler.Card
		if err := rows.Scan(&c.URL, &c.Name, &c.Tier, &c.Series, &c.Img, &c.Maker); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return cards, nil
}
