// Package local keeps the card collection in a JSON array file on disk.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/storage"
)

var (
	_ storage.Snapshot = (*Store)(nil)
	_ storage.Mirror   = (*Store)(nil)
)

// Config captures the parameters for the local file store.
type Config struct {
	// Path is the JSON file holding the card array.
	Path string `mapstructure:"path" yaml:"path"`
}

// Store reads and writes the card collection as one JSON file.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates the store, creating the parent directory when missing.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if info, err := os.Stat(cfg.Path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("path %q is a directory", cfg.Path)
	}
	return &Store{path: cfg.Path}, nil
}

// Name identifies the backend in logs and metrics.
func (s *Store) Name() string {
	return string(storage.KindLocal)
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the collection. A missing file is an empty collection.
func (s *Store) Load(context.Context) ([]crawler.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save replaces the file contents with cards.
func (s *Store) Save(_ context.Context, cards []crawler.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cards)
}

// Upsert rewrites the file with card inserted or replaced by URL.
func (s *Store) Upsert(_ context.Context, card crawler.Card) error {
	if card.URL == "" {
		return crawler.ErrMissingURL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cards, err := s.read()
	if err != nil {
		return err
	}
	return s.write(storage.Upsert(cards, card))
}

func (s *Store) read() ([]crawler.Card, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []crawler.Card{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []crawler.Card{}, nil
	}
	var cards []crawler.Card
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return cards, nil
}

// write goes through a temp file and rename so readers never see a partial file.
func (s *Store) write(cards []crawler.Card) error {
	if cards == nil {
		cards = []crawler.Card{}
	}
	data, err := json.MarshalIndent(cards, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cards: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cards-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
