package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/card-crawler/internal/crawler"
)

// fakeBucket answers the object read and multipart upload calls the client makes.
type fakeBucket struct {
	mu       sync.Mutex
	object   []byte
	uploaded string
	readCode int
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.Contains(r.URL.Path, "/upload/storage/v1/b/test-bucket/o"):
		body, _ := io.ReadAll(r.Body)
		f.uploaded = string(body)
		fmt.Fprintln(w, `{"name":"cards.json","bucket":"test-bucket"}`)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/cards.json"):
		if f.readCode != 0 {
			w.WriteHeader(f.readCode)
			return
		}
		if f.object == nil {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(f.object)
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func newTestStore(t *testing.T, bucket *fakeBucket) *Store {
	t.Helper()

	server := httptest.NewServer(bucket)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket"})
	require.NoError(t, err)
	return store
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()

	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "gs://b/cards.json", store.URI())
	assert.Equal(t, "gcs", store.Name())
}

func TestLoadMissingObjectIsEmpty(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeBucket{})
	cards, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, cards)
}

func TestLoadDecodesSnapshot(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeBucket{
		object: []byte(`[{"url":"https://shoob.gg/cards/info/a","name":"Rem","tier":"6","series":null,"img":null,"maker":null}]`),
	})
	cards, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, "Rem", *cards[0].Name)
	require.Nil(t, cards[0].Series)
}

func TestLoadSurfacesBackendErrors(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeBucket{readCode: http.StatusForbidden})
	_, err := store.Load(context.Background())
	require.Error(t, err)
}

func TestSaveUploadsJSON(t *testing.T) {
	t.Parallel()

	bucket := &fakeBucket{}
	store := newTestStore(t, bucket)

	err := store.Save(context.Background(), []crawler.Card{crawler.EmptyCard("https://shoob.gg/cards/info/a")})
	require.NoError(t, err)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	assert.Contains(t, bucket.uploaded, `"url":"https://shoob.gg/cards/info/a"`)
	assert.Contains(t, bucket.uploaded, "application/json")
}
