// Package config loads and validates jobscout configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/jobscout/internal/scraper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig         `mapstructure:"server"`
	Logging   LoggingConfig        `mapstructure:"logging"`
	Scraping  ScrapingConfig       `mapstructure:"scraping"`
	Sites     []scraper.SiteConfig `mapstructure:"sites"`
	Headless  HeadlessConfig       `mapstructure:"headless"`
	Workers   int                  `mapstructure:"workers"`
	Database  DatabaseConfig       `mapstructure:"database"`
	Cache     CacheConfig          `mapstructure:"cache"`
	RateLimit RateLimitConfig      `mapstructure:"rate_limit"`
	Archive   ArchiveConfig        `mapstructure:"archive"`
	PubSub    PubSubConfig         `mapstructure:"pubsub"`
	Schedule  ScheduleConfig       `mapstructure:"schedule"`
	Tracing   TracingConfig        `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScrapingConfig holds the knobs shared by every adapter.
type ScrapingConfig struct {
	UserAgent       string        `mapstructure:"user_agent"`
	AcceptLanguage  string        `mapstructure:"accept_language"`
	RequestDelay    time.Duration `mapstructure:"request_delay"`
	RequestJitter   time.Duration `mapstructure:"request_jitter"`
	MaxPagesPerSite int           `mapstructure:"max_pages_per_site"`
	UseHeadless     bool          `mapstructure:"use_headless"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	PageAttempts    int           `mapstructure:"page_attempts"`
}

// Settings converts the section into scraper.Settings with defaults applied.
func (s ScrapingConfig) Settings() scraper.Settings {
	return scraper.Settings{
		UserAgent:       s.UserAgent,
		RequestDelay:    s.RequestDelay,
		RequestJitter:   s.RequestJitter,
		MaxPagesPerSite: s.MaxPagesPerSite,
		UseHeadless:     s.UseHeadless,
		FetchTimeout:    s.FetchTimeout,
		SettleDelay:     s.SettleDelay,
		PageAttempts:    s.PageAttempts,
	}.WithDefaults()
}

// HeadlessConfig configures the Chrome process each adapter may start.
type HeadlessConfig struct {
	ExecPath string `mapstructure:"exec_path"`
}

// DatabaseConfig controls the listing store. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// CacheConfig enables the Redis page cache when URL is set.
type CacheConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig enables a per-host token bucket when RPS > 0.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// ArchiveConfig selects where raw pages are kept.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for site_scraped notifications. An empty ProjectID keeps
// notifications in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig controls OpenTelemetry spans. Spans are always created; ProjectID additionally
// exports them to Google Cloud Trace.
type TracingConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ScheduleConfig drives periodic scraping in serve mode.
type ScheduleConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Spec       string `mapstructure:"spec"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("logging.development", true)
	v.SetDefault("scraping.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("scraping.accept_language", "en-US,en;q=0.9")
	v.SetDefault("scraping.request_delay", "2s")
	v.SetDefault("scraping.request_jitter", scraper.DefaultJitter.String())
	v.SetDefault("scraping.max_pages_per_site", scraper.DefaultMaxPages)
	v.SetDefault("scraping.use_headless", false)
	v.SetDefault("scraping.fetch_timeout", scraper.DefaultFetchTimeout.String())
	v.SetDefault("scraping.settle_delay", scraper.DefaultSettleDelay.String())
	v.SetDefault("scraping.page_attempts", scraper.DefaultPageAttempts)
	v.SetDefault("workers", 4)
	v.SetDefault("database.table", "job_listings")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.ensure_schema", true)
	v.SetDefault("cache.ttl", "6h")
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.local_dir", "archive")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("pubsub.topic_name", "jobscout-site-scraped")
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.spec", "@every 6h")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("tracing.service_name", "jobscout")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.Scraping.MaxPagesPerSite < 0 {
		return fmt.Errorf("scraping.max_pages_per_site must be >= 0")
	}
	if c.Scraping.RequestDelay < 0 || c.Scraping.RequestJitter < 0 {
		return fmt.Errorf("scraping.request_delay and scraping.request_jitter must be >= 0")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must be >= 0")
	}
	switch c.Archive.Backend {
	case "", ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local backend")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, memory, local, gcs", c.Archive.Backend)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Schedule.Enabled && c.Schedule.Spec == "" {
		return fmt.Errorf("schedule.spec must be set when the schedule is enabled")
	}
	return c.validateSites()
}

func (c Config) validateSites() error {
	seen := make(map[string]struct{}, len(c.Sites))
	var errs []error
	for i, site := range c.Sites {
		if strings.TrimSpace(site.Name) == "" {
			errs = append(errs, fmt.Errorf("sites[%d].name is required", i))
			continue
		}
		if _, dup := seen[site.Name]; dup {
			errs = append(errs, fmt.Errorf("sites[%d].name %q is duplicated", i, site.Name))
		}
		seen[site.Name] = struct{}{}
		if !site.Enabled {
			continue
		}
		if site.ListingsURL == "" {
			errs = append(errs, fmt.Errorf("sites[%d].job_listings_url is required for enabled site %q", i, site.Name))
		}
		if site.Selectors.JobContainer == "" {
			errs = append(errs, fmt.Errorf("sites[%d].selectors.job_container is required for enabled site %q", i, site.Name))
		}
		if site.Pagination.Enabled && !strings.Contains(site.Pagination.Pattern, scraper.PageNumberPlaceholder) {
			errs = append(errs, fmt.Errorf("sites[%d].pagination.pattern must contain %s", i, scraper.PageNumberPlaceholder))
		}
	}
	return errors.Join(errs...)
}

// EnabledSites returns the names of enabled sites in configuration order.
func (c Config) EnabledSites() []string {
	names := make([]string, 0, len(c.Sites))
	for _, s := range c.Sites {
		if s.Enabled {
			names = append(names, s.Name)
		}
	}
	return names
}
