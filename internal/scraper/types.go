package scraper

import (
	"strconv"
	"strings"
	"time"
)

// UnknownCompany is stored when a listing carries no company name.
const UnknownCompany = "Unknown Company"

// PageNumberPlaceholder is substituted with the page number in pagination patterns.
const PageNumberPlaceholder = "{page_num}"

// Listing is one job posting extracted from a source site.
type Listing struct {
	ID             int64      `json:"id,omitempty"`
	Title          string     `json:"title"`
	CompanyName    string     `json:"company_name"`
	JobType        string     `json:"job_type,omitempty"`
	Location       string     `json:"location,omitempty"`
	Description    string     `json:"description,omitempty"`
	URL            string     `json:"url"`
	ContactInfo    string     `json:"contact_info,omitempty"`
	CompanyWebsite string     `json:"company_website,omitempty"`
	SalaryInfo     string     `json:"salary_info,omitempty"`
	PostedDate     *time.Time `json:"posted_date,omitempty"`
	ScrapedDate    time.Time  `json:"scraped_date"`
	SourceSite     string     `json:"source_site"`
	IsActive       bool       `json:"is_active"`
}

// Valid reports whether the listing carries the fields required for persistence.
func (l Listing) Valid() bool {
	return strings.TrimSpace(l.Title) != "" && strings.TrimSpace(l.URL) != ""
}

// Pagination describes how to reach pages beyond the first.
type Pagination struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Pattern string `mapstructure:"pattern" json:"pattern"`
}

// PageURL substitutes page into the pattern.
func (p Pagination) PageURL(page int) (string, bool) {
	if !p.Enabled || !strings.Contains(p.Pattern, PageNumberPlaceholder) {
		return "", false
	}
	return strings.ReplaceAll(p.Pattern, PageNumberPlaceholder, strconv.Itoa(page)), true
}

// Selectors holds the CSS selectors for index and detail pages.
type Selectors struct {
	JobContainer        string `mapstructure:"job_container" json:"job_container"`
	JobTitle            string `mapstructure:"job_title" json:"job_title"`
	CompanyName         string `mapstructure:"company_name" json:"company_name"`
	JobType             string `mapstructure:"job_type" json:"job_type"`
	Location            string `mapstructure:"location" json:"location"`
	DescriptionLink     string `mapstructure:"description_link" json:"description_link"`
	DescriptionSelector string `mapstructure:"description_selector" json:"description_selector"`
	PostedDate          string `mapstructure:"posted_date" json:"posted_date"`
}

// SiteConfig describes a single job site. It is immutable once loaded.
type SiteConfig struct {
	Name        string     `mapstructure:"name" json:"name"`
	Enabled     bool       `mapstructure:"enabled" json:"enabled"`
	BaseURL     string     `mapstructure:"base_url" json:"base_url"`
	ListingsURL string     `mapstructure:"job_listings_url" json:"job_listings_url"`
	Pagination  Pagination `mapstructure:"pagination" json:"pagination"`
	Selectors   Selectors  `mapstructure:"selectors" json:"selectors"`
	// DateFormat is a Go time layout tried before the built-in formats.
	DateFormat string `mapstructure:"date_format" json:"date_format,omitempty"`
	// MinPageSize overrides the adapter's last-page threshold when > 0.
	MinPageSize int `mapstructure:"min_page_size" json:"min_page_size,omitempty"`
}

// Settings are the scraping knobs shared read-only by every adapter.
type Settings struct {
	UserAgent       string
	RequestDelay    time.Duration
	RequestJitter   time.Duration
	MaxPagesPerSite int
	UseHeadless     bool
	FetchTimeout    time.Duration
	SettleDelay     time.Duration
	PageAttempts    int
}

// Defaults for Settings fields left at their zero value.
const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultSettleDelay  = 3 * time.Second
	DefaultJitter       = time.Second
	DefaultMaxPages     = 5
	DefaultPageAttempts = 2
)

// WithDefaults fills zero values with package defaults.
func (s Settings) WithDefaults() Settings {
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = DefaultFetchTimeout
	}
	if s.SettleDelay < 0 {
		s.SettleDelay = 0
	}
	if s.RequestDelay < 0 {
		s.RequestDelay = 0
	}
	if s.RequestJitter < 0 {
		s.RequestJitter = 0
	}
	if s.MaxPagesPerSite <= 0 {
		s.MaxPagesPerSite = DefaultMaxPages
	}
	if s.PageAttempts <= 0 {
		s.PageAttempts = DefaultPageAttempts
	}
	return s
}

// FetchRequest captures everything needed to fetch one page.
type FetchRequest struct {
	URL           string
	RenderDynamic bool
}

// PersistStats summarizes one batch upsert.
type PersistStats struct {
	Inserted int
	Updated  int
}
