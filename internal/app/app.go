// Package app builds the crawler's long-lived dependencies from configuration
// and runs the crawl loop alongside the keep-alive HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/card-crawler/internal/api"
	"github.com/JakeFAU/card-crawler/internal/clock/system"
	"github.com/JakeFAU/card-crawler/internal/config"
	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/engine"
	headlessfetcher "github.com/JakeFAU/card-crawler/internal/fetcher/headless"
	proxyfetcher "github.com/JakeFAU/card-crawler/internal/fetcher/proxy"
	"github.com/JakeFAU/card-crawler/internal/id/uuid"
	"github.com/JakeFAU/card-crawler/internal/logging"
	"github.com/JakeFAU/card-crawler/internal/pacer"
	gcppublisher "github.com/JakeFAU/card-crawler/internal/publisher/pubsub"
	cardstorage "github.com/JakeFAU/card-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/card-crawler/internal/storage/gcs"
	"github.com/JakeFAU/card-crawler/internal/storage/jsonbin"
	localstorage "github.com/JakeFAU/card-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/card-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/card-crawler/internal/storage/postgres"
)

// cardStore is what every configured backend provides: the engine's write
// path plus the reads behind the query endpoints.
type cardStore interface {
	crawler.Persister
	crawler.CardReader
}

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	engine    *engine.Engine
	apiServer *api.Server
	store     cardStore
	headless  *headlessfetcher.Fetcher
	publisher *gcppublisher.Publisher
	gcs       *storage.Client
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return build(ctx, cfg, logger)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Kind),
		zap.String("strategy", cfg.Fetcher.Strategy),
		zap.Int("concurrency", cfg.Crawler.Concurrency),
	)

	targets, err := cfg.Targets()
	if err != nil {
		return nil, err
	}
	index, detail := cfg.Delays()
	pacers, err := pacer.NewFactory(pacer.Kind(cfg.Crawler.Pacer), map[string]time.Duration{
		engine.IndexPacer:  index,
		engine.DetailPacer: detail,
	})
	if err != nil {
		return nil, fmt.Errorf("pacer init failed: %w", err)
	}

	if app.store, err = setupStorage(ctx, app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	fetcher, err := setupFetcher(app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, topic, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.engine, err = engine.New(engine.Config{
		BaseURL:            cfg.Crawler.BaseURL,
		Targets:            targets,
		Concurrency:        cfg.Crawler.Concurrency,
		Strategy:           cfg.Fetcher.Strategy,
		IndexWaitSelector:  cfg.Crawler.IndexWaitSelector,
		DetailWaitSelector: cfg.Crawler.DetailWaitSelector,
		Topic:              topic,
		Interval:           cfg.Crawler.Interval,
	}, engine.Deps{
		Fetcher:   fetcher,
		Persister: app.store,
		Publisher: publisher,
		Pacers:    pacers,
		Clock:     system.New(),
		IDs:       uuid.New(),
	}, logger)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.store, app.engine, api.Options{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
	}, logger.Named("api"))

	return app, nil
}

// Handler exposes the keep-alive and query routes.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run crawls until the crawl loop finishes or ctx is canceled. With the HTTP
// server enabled the process stays up after the last pass to keep serving.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if a.cfg.Server.Enabled {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	crawlErr := a.engine.RunEvery(ctx)
	if crawlErr != nil {
		a.logger.Error("crawl loop failed", zap.Error(crawlErr))
	}

	if srv != nil {
		if crawlErr == nil {
			<-ctx.Done()
		}
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	}

	a.Close()
	return crawlErr
}

// Close releases every client the App opened.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("card store close failed", zap.Error(err))
		}
		a.store = nil
	}
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
}

func setupStorage(ctx context.Context, app *App) (cardStore, error) {
	cfg := app.cfg
	logger := app.logger.Named("storage")

	// The local backend already writes the mirror path itself.
	var mirror cardstorage.Mirror
	if cfg.Storage.MirrorPath != "" && cfg.Storage.Kind != config.StorageLocal {
		local, err := localstorage.New(localstorage.Config{Path: cfg.Storage.MirrorPath})
		if err != nil {
			return nil, fmt.Errorf("local mirror init failed: %w", err)
		}
		mirror = local
		logger.Debug("local mirror enabled", zap.String("path", local.Path()))
	}

	switch cfg.Storage.Kind {
	case config.StorageJSONBin:
		client, err := jsonbin.New(jsonbin.Config{
			BaseURL:   cfg.Storage.JSONBin.BaseURL,
			BinID:     cfg.Storage.JSONBin.BinID,
			MasterKey: cfg.Storage.JSONBin.MasterKey,
			Timeout:   time.Duration(cfg.Storage.JSONBin.TimeoutSeconds) * time.Second,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("jsonbin store init failed: %w", err)
		}
		logger.Info("using jsonbin storage backend", zap.String("bin", cfg.Storage.JSONBin.BinID))
		return cardstorage.NewBulkPersister(client, mirror, logger), nil
	case config.StorageGCS:
		var err error
		app.gcs, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(app.gcs, gcsstorage.Config{
			Bucket: cfg.Storage.GCS.Bucket,
			Object: cfg.Storage.GCS.Object,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs store init failed: %w", err)
		}
		logger.Info("using GCS storage backend", zap.String("object", store.URI()))
		return cardstorage.NewBulkPersister(store, mirror, logger), nil
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{Path: cfg.Storage.MirrorPath})
		if err != nil {
			return nil, fmt.Errorf("local store init failed: %w", err)
		}
		logger.Info("using local storage backend", zap.String("path", store.Path()))
		return cardstorage.NewBulkPersister(store, nil, logger), nil
	case config.StoragePostgres:
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:         cfg.DB.DSN,
			Table:       cfg.DB.Table,
			MaxConns:    int32(cfg.DB.MaxOpenConns),
			MinConns:    int32(cfg.DB.MaxIdleConns),
			CreateTable: cfg.DB.CreateTable,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		logger.Info("using postgres storage backend", zap.String("table", cfg.DB.Table))
		return cardstorage.NewRecordPersister(store, mirror, logger), nil
	default:
		logger.Info("using in-memory storage backend")
		return cardstorage.NewRecordPersister(memoryStorage.NewStore(), mirror, logger), nil
	}
}

func setupFetcher(app *App) (crawler.Fetcher, error) {
	cfg := app.cfg
	if cfg.Fetcher.Strategy == config.StrategyHeadless {
		fetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Fetcher.Headless.MaxParallel,
			UserAgent:         cfg.Fetcher.UserAgent,
			NavigationTimeout: time.Duration(cfg.Fetcher.Headless.NavTimeoutSec) * time.Second,
			ExecPath:          cfg.Fetcher.Headless.ExecPath,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		app.headless = fetcher
		app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Fetcher.Headless.MaxParallel))
		return fetcher, nil
	}
	app.logger.Info("using proxy fetcher",
		zap.Bool("direct", cfg.Fetcher.Proxy.Endpoint == ""),
		zap.String("user_agent", cfg.Fetcher.UserAgent),
	)
	return proxyfetcher.New(proxyfetcher.Config{
		Endpoint:   cfg.Fetcher.Proxy.Endpoint,
		APIKey:     cfg.Fetcher.Proxy.APIKey,
		RenderWait: time.Duration(cfg.Fetcher.Proxy.RenderWaitMs) * time.Millisecond,
		UserAgent:  cfg.Fetcher.UserAgent,
		Timeout:    cfg.FetchTimeout(),
	}), nil
}

// setupPublisher returns a nil publisher and empty topic when notifications
// are not configured.
func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, string, error) {
	cfg := app.cfg.PubSub
	if cfg.ProjectID == "" || cfg.TopicName == "" {
		app.logger.Info("no Pub/Sub topic configured, new-card notifications disabled")
		return nil, "", nil
	}
	publisher, err := gcppublisher.Dial(ctx, cfg.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.publisher = publisher
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return publisher, cfg.TopicName, nil
}
