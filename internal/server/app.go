// Package server builds jobscout's dependencies from configuration and runs the HTTP
// service and scheduler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/adapter"
	"github.com/JakeFAU/jobscout/internal/api"
	rediscache "github.com/JakeFAU/jobscout/internal/cache/redis"
	"github.com/JakeFAU/jobscout/internal/clock/system"
	"github.com/JakeFAU/jobscout/internal/config"
	"github.com/JakeFAU/jobscout/internal/dateparse"
	"github.com/JakeFAU/jobscout/internal/fetcher"
	collyfetcher "github.com/JakeFAU/jobscout/internal/fetcher/colly"
	"github.com/JakeFAU/jobscout/internal/fetcher/headless"
	"github.com/JakeFAU/jobscout/internal/hash/sha256"
	"github.com/JakeFAU/jobscout/internal/id/uuid"
	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/manager"
	"github.com/JakeFAU/jobscout/internal/metrics"
	"github.com/JakeFAU/jobscout/internal/policy/politeness"
	"github.com/JakeFAU/jobscout/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/jobscout/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/jobscout/internal/publisher/pubsub"
	"github.com/JakeFAU/jobscout/internal/scheduler"
	"github.com/JakeFAU/jobscout/internal/scraper"
	gcsstorage "github.com/JakeFAU/jobscout/internal/storage/gcs"
	localstorage "github.com/JakeFAU/jobscout/internal/storage/local"
	memorystorage "github.com/JakeFAU/jobscout/internal/storage/memory"
	pgstore "github.com/JakeFAU/jobscout/internal/storage/postgres"
	"github.com/JakeFAU/jobscout/internal/telemetry"
)

type closablePublisher interface {
	scraper.Publisher
	Close()
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	manager   *manager.Manager
	apiServer *api.Server
	scheduler *scheduler.Scheduler

	store        scraper.ListingStore
	pgStore      *pgstore.ListingStore
	redis        *goredis.Client
	gcs          *storage.Client
	pubsubClient *pubsub.Client
	publisher    closablePublisher
	tracer       *sdktrace.TracerProvider
}

// Build creates the application's dependencies. The returned App must be closed.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.TracingConfig{
		ServiceName: cfg.Tracing.ServiceName,
		ProjectID:   cfg.Tracing.ProjectID,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracer = tp
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Workers),
		zap.Strings("enabled_sites", cfg.EnabledSites()),
	)

	if err := app.build(ctx); err != nil {
		closeErr := app.Close(context.Background())
		return nil, errors.Join(err, closeErr)
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	var err error
	if a.store, err = a.setupStore(ctx); err != nil {
		return err
	}
	cache, err := a.setupCache(ctx)
	if err != nil {
		return err
	}
	archive, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}
	if err = a.setupPublisher(ctx); err != nil {
		return err
	}

	settings := a.cfg.Scraping.Settings()
	a.manager = manager.New(
		a.cfg.Sites,
		settings,
		adapter.DefaultRegistry(),
		a.fetcherFactory(settings, cache, archive),
		a.store,
		manager.WithLogger(a.logger),
		manager.WithWorkers(a.cfg.Workers),
		manager.WithPublisher(a.publisher, a.cfg.PubSub.TopicName),
		manager.WithClock(system.New()),
		manager.WithIDGenerator(uuid.New()),
		manager.WithTracerProvider(a.tracer),
		manager.WithAdapterOptions(adapter.WithDateParser(dateparse.New(dateparse.WithLogger(a.logger.Named("dateparse"))))),
	)

	apiOpts := []api.Option{api.WithTracerProvider(a.tracer)}
	if a.pgStore != nil {
		apiOpts = append(apiOpts, api.WithReadinessCheck("postgres", a.pgStore.Ping))
	}
	if a.redis != nil {
		apiOpts = append(apiOpts, api.WithReadinessCheck("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}))
	}
	a.apiServer = api.NewServer(a.manager, a.logger, apiOpts...)

	if a.cfg.Schedule.Enabled {
		a.scheduler, err = scheduler.New(scheduler.Config{
			Spec:       a.cfg.Schedule.Spec,
			RunOnStart: a.cfg.Schedule.RunOnStart,
		}, scheduler.RunnerFunc(a.scrapeAllTotal), a.logger)
		if err != nil {
			return fmt.Errorf("scheduler init failed: %w", err)
		}
	}
	return nil
}

// Manager exposes the orchestration layer for one-shot CLI commands.
func (a *App) Manager() *manager.Manager { return a.manager }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

func (a *App) scrapeAllTotal(ctx context.Context) int {
	total := 0
	for _, listings := range a.manager.ScrapeAll(ctx) {
		total += len(listings)
	}
	return total
}

// Run serves HTTP (and the scheduler when enabled) until ctx is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	runErr := <-serveErr
	if err := a.Close(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return fmt.Errorf("http server: %w", runErr)
	}
	return nil
}

// Close releases every external client. It is safe to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client close: %w", err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client close: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("listing store close: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	for _, err := range errs {
		a.logger.Warn("shutdown step failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
	return errors.Join(errs...)
}

func (a *App) setupStore(ctx context.Context) (scraper.ListingStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, keeping listings in memory")
		return memorystorage.NewListingStore(), nil
	}
	store, err := pgstore.NewListingStore(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		Table:           a.cfg.Database.Table,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("listing store init failed: %w", err)
	}
	a.pgStore = store
	if a.cfg.Database.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return store, fmt.Errorf("ensure schema: %w", err)
		}
	}
	a.logger.Info("postgres listing store initialized", zap.String("table", a.cfg.Database.Table))
	return store, nil
}

func (a *App) setupCache(ctx context.Context) (scraper.PageCache, error) {
	if a.cfg.Cache.URL == "" {
		return nil, nil
	}
	rdb, err := rediscache.NewClient(ctx, a.cfg.Cache.URL)
	if err != nil {
		return nil, fmt.Errorf("redis cache init failed: %w", err)
	}
	a.redis = rdb
	a.logger.Info("redis page cache enabled", zap.Duration("ttl", a.cfg.Cache.TTL))
	return rediscache.New(rdb, a.cfg.Cache.TTL), nil
}

func (a *App) setupArchive(ctx context.Context) (scraper.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket, Prefix: a.cfg.Archive.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.logger.Info("archiving pages to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
		return store, nil
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving pages locally", zap.String("path", a.cfg.Archive.LocalDir))
		return store, nil
	case config.ArchiveMemory:
		a.logger.Info("archiving pages in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

// fetcherFactory gives each adapter its own session, browser resource, and politeness delay.
// The rate limiter, cache, and archive are shared.
func (a *App) fetcherFactory(settings scraper.Settings, cache scraper.PageCache, archive scraper.BlobStore) adapter.FetcherFactory {
	var limiter fetcher.Limiter
	if a.cfg.RateLimit.RPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{DefaultRPS: a.cfg.RateLimit.RPS, DefaultBurst: a.cfg.RateLimit.Burst})
		a.logger.Info("per-host rate limit enabled", zap.Float64("rps", a.cfg.RateLimit.RPS), zap.Int("burst", a.cfg.RateLimit.Burst))
	}
	hasher := sha256.New()
	clock := system.New()
	launcher := headless.NewChromedpLauncher(headless.Config{
		UserAgent:      settings.UserAgent,
		AcceptLanguage: a.cfg.Scraping.AcceptLanguage,
		ExecPath:       a.cfg.Headless.ExecPath,
	})

	return func(site scraper.SiteConfig) scraper.PageFetcher {
		logger := a.logger.Named("fetcher")
		return fetcher.New(fetcher.Options{
			Site:     site.Name,
			Settings: settings,
			Session: collyfetcher.New(collyfetcher.Config{
				UserAgent:      settings.UserAgent,
				AcceptLanguage: a.cfg.Scraping.AcceptLanguage,
				Timeout:        settings.FetchTimeout,
			}),
			NewBrowser: func() fetcher.BrowserResource {
				return headless.NewResource(launcher, logger.With(zap.String("site", site.Name)))
			},
			Delay:   politeness.New(settings.RequestDelay, settings.RequestJitter),
			Limiter: limiter,
			Cache:   cache,
			Archive: archive,
			Hasher:  hasher,
			Clock:   clock,
			Logger:  logger,

			TracerProvider: a.tracer,
		})
	}
}
