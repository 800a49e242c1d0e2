package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/card-crawler/internal/config"
	"github.com/JakeFAU/card-crawler/internal/crawler/crawlertest"
	localstorage "github.com/JakeFAU/card-crawler/internal/storage/local"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/cards?page=1&tier=1": crawlertest.IndexHTML("/cards/info/a", "/cards/info/b"),
		"/cards?page=2&tier=1": crawlertest.IndexHTML("/cards/info/b", "/cards/info/c"),
		"/cards/info/a":        crawlertest.DetailHTML("Rem", "Tier 1"),
		"/cards/info/b":        crawlertest.DetailHTML("Ram", "Tier 1"),
		"/cards/info/c":        crawlertest.DetailHTML("Emilia", "Tier 1"),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		html, ok := pages[r.URL.RequestURI()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Crawler: config.CrawlerConfig{
			BaseURL:     baseURL,
			Tiers:       map[string]any{"1": 2},
			Concurrency: 2,
			Pacer:       "fixed",
		},
		Fetcher: config.FetcherConfig{
			Strategy:       config.StrategyProxy,
			TimeoutSeconds: 5,
		},
		Storage: config.StorageConfig{
			Kind:       config.StorageLocal,
			MirrorPath: filepath.Join(t.TempDir(), "cards.json"),
		},
	}
}

func TestRun_CrawlsIntoLocalStore(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := testConfig(t, site.URL)
	app, err := build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, app.Run(context.Background()))

	store, err := localstorage.New(localstorage.Config{Path: cfg.Storage.MirrorPath})
	require.NoError(t, err)
	cards, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 3)
	for _, card := range cards {
		require.NotNil(t, card.Tier)
		require.Equal(t, "1", *card.Tier)
	}

	last, ok := app.engine.LastRun()
	require.True(t, ok)
	require.Equal(t, 3, last.CardsScraped)
	require.Equal(t, 1, last.DuplicatesSkipped)
}

func TestRun_SecondPassFetchesNothingNew(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := testConfig(t, site.URL)

	first, err := build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))

	second, err := build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, second.Run(context.Background()))

	last, ok := second.engine.LastRun()
	require.True(t, ok)
	require.Equal(t, 3, last.KnownAtStart)
	require.Zero(t, last.CardsScraped)
}

func TestBuild_ServesQueryRoutes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://shoob.gg")
	cfg.Storage.Kind = config.StorageMemory
	app, err := build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/last", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cards", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"cards":[],"total":0}`, rec.Body.String())
}

func TestBuild_RejectsUnknownPacer(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://shoob.gg")
	cfg.Crawler.Pacer = "sundial"
	_, err := build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "pacer")
}
