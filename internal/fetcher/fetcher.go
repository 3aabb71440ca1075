// Package fetcher implements scraper.PageFetcher on top of a colly session and a lazily
// started headless browser. Every network fetch is followed by a politeness pause.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/jobscout/internal/fetcher/colly"
	"github.com/JakeFAU/jobscout/internal/fetcher/headless"
	"github.com/JakeFAU/jobscout/internal/metrics"
	"github.com/JakeFAU/jobscout/internal/scraper"
)

// Fetch modes used in logs and metrics.
const (
	ModeSession  = "session"
	ModeHeadless = "headless"
	ModeCache    = "cache"
)

// Session performs plain HTTP fetches.
type Session interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Response, error)
}

// BrowserResource is the lifecycle-managed browser used for dynamic pages.
type BrowserResource interface {
	Acquire(ctx context.Context) (headless.Browser, error)
	Release()
}

// Limiter gates requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Delayer pauses after each fetch.
type Delayer interface {
	Wait(ctx context.Context)
}

// Options wires a PageFetcher. Session and Delay are required; the rest are optional.
type Options struct {
	Site     string
	Settings scraper.Settings
	Session  Session
	// NewBrowser arms a fresh Uninitialized browser resource. Nil disables dynamic rendering.
	NewBrowser func() BrowserResource
	Delay      Delayer
	Limiter    Limiter
	Cache      scraper.PageCache
	Archive    scraper.BlobStore
	Hasher     scraper.Hasher
	Clock      scraper.Clock
	Logger     *zap.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

const tracerName = "github.com/JakeFAU/jobscout/internal/fetcher"

// PageFetcher is owned by exactly one adapter.
type PageFetcher struct {
	opts     Options
	settings scraper.Settings
	logger   *zap.Logger
	tracer   trace.Tracer

	mu      sync.Mutex
	browser BrowserResource
}

// New builds a PageFetcher.
func New(opts Options) *PageFetcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &PageFetcher{
		opts:     opts,
		settings: opts.Settings.WithDefaults(),
		logger:   logger.With(zap.String("site", opts.Site)),
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	f.tracer = tp.Tracer(tracerName)
	if opts.NewBrowser != nil {
		f.browser = opts.NewBrowser()
	}
	return f
}

// Fetch retrieves request.URL and parses it into a document.
func (f *PageFetcher) Fetch(ctx context.Context, request scraper.FetchRequest) (*goquery.Document, error) {
	dynamic := request.RenderDynamic || f.settings.UseHeadless
	ctx, span := f.tracer.Start(ctx, "fetcher.Fetch", trace.WithAttributes(
		attribute.String("jobscout.site", f.opts.Site),
		attribute.String("url.full", request.URL),
		attribute.Bool("jobscout.dynamic", dynamic),
	))
	defer span.End()

	doc, err := f.fetch(ctx, request, dynamic)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return doc, err
}

func (f *PageFetcher) fetch(ctx context.Context, request scraper.FetchRequest, dynamic bool) (*goquery.Document, error) {
	if body, ok := f.cached(ctx, request.URL); ok {
		metrics.ObserveCacheHit(request.URL)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("jobscout.cache_hit", true))
		return parse(request.URL, body)
	}

	body, err := f.fetchRaw(ctx, request.URL, dynamic)
	if err != nil {
		return nil, err
	}
	doc, err := parse(request.URL, body)
	if err != nil {
		return nil, err
	}
	if !dynamic && looksClientRendered(doc, len(body)) {
		f.logger.Warn("static fetch returned an application shell; the site may need headless rendering",
			zap.String("url", request.URL))
	}
	f.store(ctx, request.URL, body)
	return doc, nil
}

func (f *PageFetcher) fetchRaw(ctx context.Context, url string, dynamic bool) ([]byte, error) {
	if f.opts.Delay != nil {
		defer f.opts.Delay.Wait(ctx)
	}
	if f.opts.Limiter != nil {
		if err := f.opts.Limiter.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", scraper.ErrFetch, url, err)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.settings.FetchTimeout)
	defer cancel()

	mode := ModeSession
	start := time.Now()
	var (
		body []byte
		err  error
	)
	if dynamic {
		mode = ModeHeadless
		body, err = f.render(fetchCtx, url)
	} else {
		body, err = f.session(fetchCtx, url)
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveFetch(url, mode, outcome, len(body), time.Since(start))
	if err != nil {
		f.logger.Debug("fetch failed", zap.String("url", url), zap.String("mode", mode), zap.Error(err))
		return nil, err
	}
	return body, nil
}

func (f *PageFetcher) session(ctx context.Context, url string) ([]byte, error) {
	if f.opts.Session == nil {
		return nil, fmt.Errorf("%w: no session configured", scraper.ErrFetch)
	}
	resp, err := f.opts.Session.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", scraper.ErrFetch, url, err)
	}
	return resp.Body, nil
}

func (f *PageFetcher) render(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	resource := f.browser
	f.mu.Unlock()
	if resource == nil {
		return nil, fmt.Errorf("%w: headless rendering not configured", scraper.ErrResource)
	}
	browser, err := resource.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scraper.ErrResource, err)
	}
	html, err := browser.Render(ctx, url, f.settings.SettleDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", scraper.ErrFetch, url, err)
	}
	return []byte(html), nil
}

// Release tears down the browser, if one was started, and arms a fresh resource for the next run.
func (f *PageFetcher) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return
	}
	f.browser.Release()
	f.browser = f.opts.NewBrowser()
}

func (f *PageFetcher) cached(ctx context.Context, url string) ([]byte, bool) {
	if f.opts.Cache == nil {
		return nil, false
	}
	body, ok, err := f.opts.Cache.Get(ctx, url)
	if err != nil {
		f.logger.Warn("page cache read failed", zap.String("url", url), zap.Error(err))
		return nil, false
	}
	return body, ok
}

func (f *PageFetcher) store(ctx context.Context, url string, body []byte) {
	if f.opts.Cache != nil {
		if err := f.opts.Cache.Set(ctx, url, body); err != nil {
			f.logger.Warn("page cache write failed", zap.String("url", url), zap.Error(err))
		}
	}
	if f.opts.Archive == nil || f.opts.Hasher == nil {
		return
	}
	key, err := f.archiveKey(body)
	if err != nil {
		f.logger.Warn("archive key failed", zap.String("url", url), zap.Error(err))
		return
	}
	if _, err := f.opts.Archive.PutObject(ctx, key, "text/html; charset=utf-8", bytes.NewReader(body)); err != nil {
		f.logger.Warn("archive write failed", zap.String("url", url), zap.String("key", key), zap.Error(err))
	}
}

func (f *PageFetcher) archiveKey(body []byte) (string, error) {
	digest, err := f.opts.Hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash page: %w", err)
	}
	now := time.Now().UTC()
	if f.opts.Clock != nil {
		now = f.opts.Clock.Now().UTC()
	}
	return ArchiveKey(f.opts.Site, now, digest), nil
}

// ArchiveKey builds the blob path <site>/<yyyy>/<mm>/<dd>/<digest>.html.
func ArchiveKey(site string, at time.Time, digest string) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.html", Slug(site), at.Year(), int(at.Month()), at.Day(), digest)
}

// Slug lowercases s and replaces runs of non-alphanumerics with a single dash.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func parse(url string, body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", scraper.ErrParse, url, err)
	}
	return doc, nil
}
