// Package gcs keeps the card collection as one JSON object in Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	cardstorage "github.com/JakeFAU/card-crawler/internal/storage"
)

var _ cardstorage.Snapshot = (*Store)(nil)

// Config captures the parameters required to locate the snapshot object.
type Config struct {
	Bucket string
	Object string
}

// Store reads and writes the snapshot object.
type Store struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed snapshot store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	object := strings.TrimSpace(cfg.Object)
	if object == "" {
		object = "cards.json"
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		object: object,
	}, nil
}

// Name identifies the backend in logs and metrics.
func (s *Store) Name() string {
	return string(cardstorage.KindGCS)
}

// URI reports the gs:// location of the snapshot.
func (s *Store) URI() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// Load downloads the snapshot. A missing object is an empty collection.
func (s *Store) Load(ctx context.Context) ([]crawler.Card, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return []crawler.Card{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.URI(), err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.URI(), err)
	}
	var cards []crawler.Card
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.URI(), err)
	}
	return cards, nil
}

// Save uploads cards, replacing the previous snapshot.
func (s *Store) Save(ctx context.Context, cards []crawler.Card) error {
	if cards == nil {
		cards = []crawler.Card{}
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return fmt.Errorf("encode cards: %w", err)
	}
	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
