package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/jobscout/internal/scraper"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
scraping:
  user_agent: Test User Agent
  request_delay: 1s
  request_jitter: 500ms
  max_pages_per_site: 2
  use_headless: true
workers: 6
database:
  dsn: postgres://localhost/jobs
  max_conns: 3
cache:
  url: redis://localhost:6379/0
  ttl: 1h
rate_limit:
  rps: 0.5
  burst: 2
archive:
  backend: local
  local_dir: /tmp/pages
sites:
  - name: Remote.co
    enabled: true
    base_url: https://remote.co/remote-jobs/
    job_listings_url: https://remote.co/remote-jobs/online-data-entry/
    pagination:
      enabled: true
      pattern: https://remote.co/remote-jobs/online-data-entry/page/{page_num}/
    selectors:
      job_container: .job_listing
      job_title: .position h3
      company_name: .company_name
      description_link: .position h3 a
      description_selector: .job_description
      posted_date: .date
  - name: Disabled Site
    enabled: false
    base_url: https://example.com/
    job_listings_url: https://example.com/jobs/
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Workers != 6 || cfg.Database.MaxConns != 3 || cfg.Cache.TTL != time.Hour {
		t.Fatalf("expected overrides to apply: %+v", cfg)
	}
	settings := cfg.Scraping.Settings()
	if settings.RequestDelay != time.Second || settings.RequestJitter != 500*time.Millisecond {
		t.Fatalf("unexpected delay settings: %+v", settings)
	}
	if settings.MaxPagesPerSite != 2 || !settings.UseHeadless || settings.UserAgent != "Test User Agent" {
		t.Fatalf("unexpected scraping settings: %+v", settings)
	}
	if settings.FetchTimeout != 30*time.Second || settings.PageAttempts != 2 {
		t.Fatalf("expected defaults for unset settings: %+v", settings)
	}
	if len(cfg.Sites) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(cfg.Sites))
	}
	site := cfg.Sites[0]
	if site.Selectors.JobTitle != ".position h3" || !site.Pagination.Enabled {
		t.Fatalf("site not decoded: %+v", site)
	}
	if got, ok := site.Pagination.PageURL(2); !ok || got != "https://remote.co/remote-jobs/online-data-entry/page/2/" {
		t.Fatalf("unexpected page url %q", got)
	}
	if names := cfg.EnabledSites(); len(names) != 1 || names[0] != "Remote.co" {
		t.Fatalf("unexpected enabled sites %v", names)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Workers != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Archive.Backend != ArchiveNone || cfg.Schedule.Spec != "@every 6h" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Tracing.ServiceName != "jobscout" || cfg.Tracing.SampleRatio != 1 {
		t.Fatalf("unexpected tracing defaults: %+v", cfg.Tracing)
	}
	if cfg.Scraping.Settings().SettleDelay != 3*time.Second {
		t.Fatalf("unexpected settle delay %v", cfg.Scraping.Settings().SettleDelay)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	baseConfig := func() Config {
		return Config{
			Server:  ServerConfig{Port: 8080},
			Workers: 1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid workers", mutate: func(c *Config) { c.Workers = 0 }, want: "workers"},
		{name: "negative delay", mutate: func(c *Config) { c.Scraping.RequestDelay = -time.Second }, want: "request_delay"},
		{name: "negative rps", mutate: func(c *Config) { c.RateLimit.RPS = -1 }, want: "rate_limit.rps"},
		{name: "unknown archive", mutate: func(c *Config) { c.Archive.Backend = "s3" }, want: "archive.backend"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Backend = ArchiveGCS }, want: "archive.gcs_bucket"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, want: "tracing.sample_ratio"},
		{name: "schedule without spec", mutate: func(c *Config) { c.Schedule.Enabled = true }, want: "schedule.spec"},
		{
			name: "duplicate site",
			mutate: func(c *Config) {
				c.Sites = append(c.Sites,
					testSite("RemoteOK"),
					testSite("RemoteOK"),
				)
			},
			want: "duplicated",
		},
		{
			name: "enabled site without container",
			mutate: func(c *Config) {
				s := testSite("RemoteOK")
				s.Selectors.JobContainer = ""
				c.Sites = append(c.Sites, s)
			},
			want: "job_container",
		},
		{
			name: "pattern without placeholder",
			mutate: func(c *Config) {
				s := testSite("RemoteOK")
				s.Pagination.Enabled = true
				s.Pagination.Pattern = "https://remoteok.com/?page=2"
				c.Sites = append(c.Sites, s)
			},
			want: "{page_num}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.want)
			}
		})
	}

	if err := baseConfig().Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}
}

func testSite(name string) scraper.SiteConfig {
	return scraper.SiteConfig{
		Name:        name,
		Enabled:     true,
		ListingsURL: "https://remoteok.com/remote-dev-jobs",
		Selectors:   scraper.Selectors{JobContainer: "tr.job"},
	}
}
