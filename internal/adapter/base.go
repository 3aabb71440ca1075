package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/dateparse"
	"github.com/JakeFAU/jobscout/internal/extract"
	"github.com/JakeFAU/jobscout/internal/policy/politeness"
	"github.com/JakeFAU/jobscout/internal/scraper"
)

// Adapter scrapes one site. Scrape never fails; it returns whatever it collected.
type Adapter interface {
	Name() string
	Scrape(ctx context.Context) []scraper.Listing
}

// Profile captures the per-site behavior layered on top of the shared state machine.
type Profile struct {
	IndexDynamic  bool
	DetailDynamic bool
	// MinPageSize is the container count below which a page is the last one. Zero disables
	// the heuristic. SiteConfig.MinPageSize overrides it when positive.
	MinPageSize int
	// ExcludedDomains are never reported as the company website. The site's own host and
	// common social domains are always excluded.
	ExcludedDomains []string
	// LinkAttrs are container attributes holding the detail URL, consulted when the
	// description link selector matches nothing.
	LinkAttrs []string
	// DateAttr names an attribute on the posted-date element that carries a machine-readable date.
	DateAttr                string
	PreferAbbreviatedSalary bool
}

// Option customizes a Base.
type Option func(*Base)

// WithLogger sets the parent logger; the adapter logs under a child named for its site.
func WithLogger(l *zap.Logger) Option {
	return func(b *Base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithDateParser overrides the date normalizer.
func WithDateParser(p *dateparse.Parser) Option {
	return func(b *Base) {
		if p != nil {
			b.dates = p
		}
	}
}

// WithBackoff overrides the pause between index page attempts.
func WithBackoff(fn Backoff) Option {
	return func(b *Base) {
		if fn != nil {
			b.backoff = fn
		}
	}
}

// WithSleeper overrides how retry backoff pauses are taken.
func WithSleeper(s politeness.Sleeper) Option {
	return func(b *Base) {
		if s != nil {
			b.sleeper = s
		}
	}
}

// Base implements Adapter for any site described by a SiteConfig and Profile.
type Base struct {
	site     scraper.SiteConfig
	settings scraper.Settings
	profile  Profile
	fetcher  scraper.PageFetcher
	dates    *dateparse.Parser
	logger   *zap.Logger
	backoff  Backoff
	sleeper  politeness.Sleeper
	excluded []string

	// mu serializes Scrape so the fetcher's browser is never shared.
	mu sync.Mutex
}

// NewBase binds a site, settings, and profile to the fetcher the adapter will own.
func NewBase(site scraper.SiteConfig, settings scraper.Settings, profile Profile, fetcher scraper.PageFetcher, opts ...Option) *Base {
	b := &Base{
		site:     site,
		settings: settings.WithDefaults(),
		profile:  profile,
		fetcher:  fetcher,
		logger:   zap.NewNop(),
		backoff:  DefaultBackoff,
		sleeper:  politeness.TimerSleeper{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("adapter").With(zap.String("site", site.Name))
	if b.dates == nil {
		b.dates = dateparse.New(dateparse.WithLogger(b.logger))
	}
	b.excluded = append(b.excluded, profile.ExcludedDomains...)
	if u, err := url.Parse(site.BaseURL); err == nil && u.Hostname() != "" {
		b.excluded = append(b.excluded, strings.TrimPrefix(u.Hostname(), "www."))
	}
	b.excluded = append(b.excluded, extract.SocialDomains()...)
	return b
}

// Name returns the configured site name.
func (b *Base) Name() string { return b.site.Name }

// MinPageSize returns the effective last-page threshold.
func (b *Base) MinPageSize() int {
	if b.site.MinPageSize > 0 {
		return b.site.MinPageSize
	}
	return b.profile.MinPageSize
}

// Scrape walks the index pages until a termination condition and returns the listings in
// discovery order. The fetcher's browser is released on every exit path.
func (b *Base) Scrape(ctx context.Context) []scraper.Listing {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.fetcher.Release()

	listings := make([]scraper.Listing, 0)
	minSize := b.MinPageSize()
	for page := 1; page <= b.settings.MaxPagesPerSite; page++ {
		pageURL, ok := b.pageURL(page)
		if !ok {
			break
		}
		log := b.logger.With(zap.Int("page", page), zap.String("url", pageURL))

		doc, err := b.fetchIndex(ctx, pageURL)
		if err != nil {
			log.Error("aborting scrape", zap.String("stage", "index"), zap.Int("collected", len(listings)), zap.Error(err))
			return listings
		}

		containers := doc.Find(b.site.Selectors.JobContainer)
		found := containers.Length()
		if found == 0 {
			log.Info("no listings on page, stopping")
			break
		}
		containers.Each(func(_ int, sel *goquery.Selection) {
			if listing, ok := b.processItem(ctx, sel, pageURL); ok {
				listings = append(listings, listing)
			}
		})
		log.Debug("page processed", zap.Int("containers", found), zap.Int("collected", len(listings)))

		if found < minSize {
			log.Debug("page below minimum size, treating as last page", zap.Int("min_page_size", minSize))
			break
		}
	}
	b.logger.Info("scrape finished", zap.Int("listings", len(listings)))
	return listings
}

// pageURL returns the index URL for page; pages beyond the first need pagination.
func (b *Base) pageURL(page int) (string, bool) {
	if page == 1 {
		return b.site.ListingsURL, b.site.ListingsURL != ""
	}
	return b.site.Pagination.PageURL(page)
}

func (b *Base) fetchIndex(ctx context.Context, pageURL string) (*goquery.Document, error) {
	request := scraper.FetchRequest{URL: pageURL, RenderDynamic: b.profile.IndexDynamic}
	var lastErr error
	for attempt := 1; attempt <= b.settings.PageAttempts; attempt++ {
		doc, err := b.fetcher.Fetch(ctx, request)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !retryable(ctx, err) || attempt == b.settings.PageAttempts {
			break
		}
		b.logger.Warn("index fetch failed, retrying", zap.String("url", pageURL), zap.Int("attempt", attempt), zap.Error(err))
		b.sleeper.Sleep(ctx, b.backoff(attempt))
	}
	return nil, lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, scraper.ErrResource) && !errors.Is(err, scraper.ErrParse)
}

// processItem extracts one container. Items without a title or detail link are skipped.
func (b *Base) processItem(ctx context.Context, sel *goquery.Selection, pageURL string) (listing scraper.Listing, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("item extraction panicked, skipping", zap.String("url", pageURL), zap.String("stage", "item"), zap.Any("panic", r))
			ok = false
		}
	}()

	s := b.site.Selectors
	title := findText(sel, s.JobTitle)
	link := b.findLink(sel)
	if title == "" || link == "" {
		b.logger.Debug("skipping item without title or link", zap.String("url", pageURL), zap.String("title", title))
		return scraper.Listing{}, false
	}
	listingURL, err := b.resolve(link, pageURL)
	if err != nil {
		b.logger.Debug("skipping item with bad link", zap.String("link", link), zap.Error(err))
		return scraper.Listing{}, false
	}

	company := findText(sel, s.CompanyName)
	if company == "" {
		company = scraper.UnknownCompany
	}
	listing = scraper.Listing{
		Title:       title,
		CompanyName: company,
		JobType:     findText(sel, s.JobType),
		Location:    findText(sel, s.Location),
		URL:         listingURL,
		IsActive:    true,
	}
	if raw := b.findDate(sel); raw != "" {
		listing.PostedDate = b.dates.Parse(raw, b.site.DateFormat)
	}
	b.enrich(ctx, &listing)
	return listing, true
}

// enrich fills description-derived fields from the detail page. Failures keep the
// index-only fields.
func (b *Base) enrich(ctx context.Context, listing *scraper.Listing) {
	doc, err := b.fetcher.Fetch(ctx, scraper.FetchRequest{URL: listing.URL, RenderDynamic: b.profile.DetailDynamic})
	if err != nil {
		b.logger.Warn("detail fetch failed, keeping index fields", zap.String("url", listing.URL), zap.String("stage", "detail"), zap.Error(err))
		return
	}
	if b.site.Selectors.DescriptionSelector == "" {
		return
	}
	desc := doc.Find(b.site.Selectors.DescriptionSelector).First()
	if desc.Length() == 0 {
		b.logger.Debug("description not found", zap.String("url", listing.URL), zap.String("stage", "detail"))
		return
	}
	text := strings.TrimSpace(desc.Text())
	listing.Description = text
	listing.ContactInfo = extract.ContactInfo(text)
	listing.SalaryInfo = extract.Salary(text, b.profile.PreferAbbreviatedSalary)
	listing.CompanyWebsite = extract.CompanyWebsite(text, b.excluded)
	if listing.CompanyWebsite == "" {
		listing.CompanyWebsite = extract.CompanyWebsite(strings.Join(desc.Find("a[href]").Map(func(_ int, a *goquery.Selection) string {
			href, _ := a.Attr("href")
			return href
		}), " "), b.excluded)
	}
}

func (b *Base) findLink(sel *goquery.Selection) string {
	if s := b.site.Selectors.DescriptionLink; s != "" {
		if href, ok := sel.Find(s).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href)
		}
	}
	for _, attr := range b.profile.LinkAttrs {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (b *Base) findDate(sel *goquery.Selection) string {
	if b.site.Selectors.PostedDate == "" {
		return ""
	}
	el := sel.Find(b.site.Selectors.PostedDate).First()
	if b.profile.DateAttr != "" {
		if v, ok := el.Attr(b.profile.DateAttr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return extract.Text(el.Text())
}

// resolve makes link absolute against the site's base URL, or the page URL when no base is set.
func (b *Base) resolve(link, pageURL string) (string, error) {
	baseRaw := b.site.BaseURL
	if baseRaw == "" {
		baseRaw = pageURL
	}
	base, err := url.Parse(baseRaw)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func findText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return extract.Text(sel.Find(selector).First().Text())
}
