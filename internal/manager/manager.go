// Package manager orchestrates site adapters: it scrapes each configured site on a bounded
// pool, persists the results keyed by listing URL, and serves filtered listing queries.
//
// Every public operation returns values, never errors. Failures are logged, counted in
// metrics, and degrade to empty results for the affected site only.
package manager

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/adapter"
	"github.com/JakeFAU/jobscout/internal/clock/system"
	"github.com/JakeFAU/jobscout/internal/dispatcher"
	"github.com/JakeFAU/jobscout/internal/id/uuid"
	"github.com/JakeFAU/jobscout/internal/metrics"
	"github.com/JakeFAU/jobscout/internal/scraper"
)

// DefaultLimit is applied to listing queries when the caller passes a non-positive limit.
const DefaultLimit = 100

const tracerName = "github.com/JakeFAU/jobscout/internal/manager"

// DefaultTopic receives a SiteScraped event after each site run.
const DefaultTopic = "jobscout-site-scraped"

// Site run statuses reported to metrics and notifications.
const (
	StatusOK            = "ok"
	StatusPersistFailed = "persist_failed"
	StatusPanicked      = "panicked"
)

// SiteScraped is published after every site run.
type SiteScraped struct {
	RunID        string    `json:"run_id"`
	Site         string    `json:"site"`
	Status       string    `json:"status"`
	Scraped      int       `json:"scraped"`
	Inserted     int       `json:"inserted"`
	Updated      int       `json:"updated"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	PersistError string    `json:"persist_error,omitempty"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger. A named child is used.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPublisher enables SiteScraped notifications on topic.
func WithPublisher(p scraper.Publisher, topic string) Option {
	return func(m *Manager) {
		m.publisher = p
		if topic != "" {
			m.topic = topic
		}
	}
}

// WithClock overrides the clock used for ScrapedDate and run timing.
func WithClock(c scraper.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithIDGenerator overrides the run ID generator.
func WithIDGenerator(g scraper.IDGenerator) Option {
	return func(m *Manager) {
		if g != nil {
			m.ids = g
		}
	}
}

// WithTracerProvider sets where run, site, and persist spans go. The global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithWorkers sets the pool size for ScrapeAll.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		m.workers = n
	}
}

// WithAdapterOptions passes options to every adapter built by New.
func WithAdapterOptions(opts ...adapter.Option) Option {
	return func(m *Manager) {
		m.adapterOpts = append(m.adapterOpts, opts...)
	}
}

// Manager owns one adapter per enabled, known site.
type Manager struct {
	adapters    map[string]adapter.Adapter
	names       []string
	store       scraper.ListingStore
	publisher   scraper.Publisher
	topic       string
	clock       scraper.Clock
	ids         scraper.IDGenerator
	workers     int
	adapterOpts []adapter.Option
	logger      *zap.Logger
	tracer      trace.Tracer
}

// New builds adapters for sites from registry. Disabled sites are skipped quietly and
// sites without a registered adapter are skipped with a warning.
func New(
	sites []scraper.SiteConfig,
	settings scraper.Settings,
	registry adapter.Registry,
	newFetcher adapter.FetcherFactory,
	store scraper.ListingStore,
	opts ...Option,
) *Manager {
	m := &Manager{
		store:   store,
		topic:   DefaultTopic,
		clock:   system.New(),
		ids:     uuid.New(),
		workers: dispatcher.DefaultWorkers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("manager")
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}

	adapterOpts := append([]adapter.Option{adapter.WithLogger(m.logger.Named("adapter"))}, m.adapterOpts...)
	m.adapters = registry.Build(sites, settings.WithDefaults(), newFetcher, m.logger, adapterOpts...)
	for name := range m.adapters {
		m.names = append(m.names, name)
	}
	slices.Sort(m.names)
	m.logger.Info("adapters ready", zap.Strings("sites", m.names))
	return m
}

// Sites returns the names of the active adapters in sorted order.
func (m *Manager) Sites() []string {
	return slices.Clone(m.names)
}

// HasSite reports whether name has an active adapter.
func (m *Manager) HasSite(name string) bool {
	_, ok := m.adapters[name]
	return ok
}

// ScrapeSite runs one adapter, persists its listings, and returns them. An unknown site or
// a panicking adapter yields an empty slice.
func (m *Manager) ScrapeSite(ctx context.Context, name string) []scraper.Listing {
	runID := m.runID()
	listings, err := m.scrapeSite(ctx, runID, name)
	if err != nil {
		m.logger.Error("scrape site failed", zap.String("run_id", runID), zap.String("site", name), zap.Error(err))
		return []scraper.Listing{}
	}
	return listings
}

// ScrapeAll runs every adapter on the worker pool. Each site maps to its listings; a failed
// site maps to an empty slice and never affects the others.
func (m *Manager) ScrapeAll(ctx context.Context) map[string][]scraper.Listing {
	runID := m.runID()
	ctx, span := m.tracer.Start(ctx, "manager.ScrapeAll", trace.WithAttributes(
		attribute.String("jobscout.run_id", runID),
		attribute.Int("jobscout.sites", len(m.names)),
	))
	defer span.End()
	logger := m.logger.With(zap.String("run_id", runID))
	logger.Info("scrape run starting", zap.Int("sites", len(m.names)), zap.Int("workers", m.workers))

	tasks := make([]dispatcher.Task[[]scraper.Listing], 0, len(m.names))
	for _, name := range m.names {
		tasks = append(tasks, dispatcher.Task[[]scraper.Listing]{
			Key: name,
			Do: func(ctx context.Context) ([]scraper.Listing, error) {
				return m.scrapeSite(ctx, runID, name)
			},
		})
	}

	results := dispatcher.New[[]scraper.Listing](m.workers, logger).Run(ctx, tasks)
	out := make(map[string][]scraper.Listing, len(results))
	total := 0
	for _, res := range results {
		if !res.OK() || res.Value == nil {
			if res.Err != nil {
				logger.Error("site failed", zap.String("site", res.Key), zap.Error(res.Err))
			}
			out[res.Key] = []scraper.Listing{}
			continue
		}
		out[res.Key] = res.Value
		total += len(res.Value)
	}
	span.SetAttributes(attribute.Int("jobscout.listings", total))
	logger.Info("scrape run finished", zap.Int("sites", len(out)), zap.Int("total_listings", total))
	return out
}

func (m *Manager) scrapeSite(ctx context.Context, runID, name string) (listings []scraper.Listing, err error) {
	a, ok := m.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", scraper.ErrUnknownSite, name)
	}
	ctx, span := m.tracer.Start(ctx, "manager.ScrapeSite", trace.WithAttributes(
		attribute.String("jobscout.run_id", runID),
		attribute.String("jobscout.site", name),
	))
	defer span.End()
	logger := m.logger.With(zap.String("run_id", runID), zap.String("site", name))
	started := m.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveSiteRun(name, StatusPanicked)
			listings, err = nil, fmt.Errorf("adapter %s panicked: %v", name, r)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	logger.Info("scraping site")
	listings = a.Scrape(ctx)
	if listings == nil {
		listings = []scraper.Listing{}
	}
	metrics.ObserveScraped(name, len(listings))

	event := SiteScraped{RunID: runID, Site: name, Status: StatusOK, Scraped: len(listings), StartedAt: started}
	stats, perr := m.Persist(ctx, listings, name)
	if perr != nil {
		event.Status = StatusPersistFailed
		event.PersistError = perr.Error()
	}
	event.Inserted, event.Updated = stats.Inserted, stats.Updated
	event.FinishedAt = m.clock.Now()
	span.SetAttributes(
		attribute.String("jobscout.status", event.Status),
		attribute.Int("jobscout.scraped", event.Scraped),
	)
	metrics.ObserveSiteRun(name, event.Status)
	logger.Info("site scraped",
		zap.String("status", event.Status),
		zap.Int("scraped", event.Scraped),
		zap.Int("inserted", event.Inserted),
		zap.Int("updated", event.Updated),
		zap.Duration("duration", event.FinishedAt.Sub(started)),
	)
	m.notify(ctx, logger, event)
	return listings, nil
}

// Persist stamps SourceSite and ScrapedDate on every listing and upserts them as one batch.
// On failure nothing is written and the error wraps scraper.ErrPersistence.
func (m *Manager) Persist(ctx context.Context, listings []scraper.Listing, site string) (scraper.PersistStats, error) {
	if len(listings) == 0 {
		return scraper.PersistStats{}, nil
	}
	if m.store == nil {
		return scraper.PersistStats{}, fmt.Errorf("%w: no listing store configured", scraper.ErrPersistence)
	}
	ctx, span := m.tracer.Start(ctx, "manager.Persist", trace.WithAttributes(
		attribute.String("jobscout.site", site),
		attribute.Int("jobscout.listings", len(listings)),
	))
	defer span.End()
	now := m.clock.Now().UTC()
	for i := range listings {
		listings[i].SourceSite = site
		listings[i].ScrapedDate = now
	}
	stats, err := m.store.UpsertBatch(ctx, listings)
	if err != nil {
		metrics.ObservePersistFailure(site)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Error("persist failed, batch rolled back", zap.String("site", site), zap.Int("listings", len(listings)), zap.Error(err))
		return scraper.PersistStats{}, err
	}
	metrics.ObservePersisted(site, stats.Inserted, stats.Updated)
	span.SetAttributes(attribute.Int("jobscout.inserted", stats.Inserted), attribute.Int("jobscout.updated", stats.Updated))
	return stats, nil
}

// GetJobListings returns stored listings matching filter, most recently scraped first.
// Query failures yield an empty slice.
func (m *Manager) GetJobListings(ctx context.Context, filter scraper.Filter, limit, offset int) []scraper.Listing {
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset = max(offset, 0)
	if m.store == nil {
		return []scraper.Listing{}
	}
	listings, err := m.store.Query(ctx, filter, limit, offset)
	if err != nil {
		m.logger.Error("listing query failed", zap.Error(err))
		return []scraper.Listing{}
	}
	if listings == nil {
		return []scraper.Listing{}
	}
	return listings
}

func (m *Manager) notify(ctx context.Context, logger *zap.Logger, event SiteScraped) {
	if m.publisher == nil {
		return
	}
	id, err := m.publisher.Publish(ctx, m.topic, event)
	if err != nil {
		logger.Warn("publish site_scraped failed", zap.Error(err))
		return
	}
	logger.Debug("published site_scraped", zap.String("message_id", id))
}

func (m *Manager) runID() string {
	id, err := m.ids.NewID()
	if err != nil {
		m.logger.Warn("run id generation failed", zap.Error(err))
		return fmt.Sprintf("run-%d", m.clock.Now().UnixNano())
	}
	return id
}
