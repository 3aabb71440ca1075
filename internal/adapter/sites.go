package adapter

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/scraper"
)

// Site names as they appear in configuration.
const (
	RemoteCo       = "Remote.co"
	WeWorkRemotely = "We Work Remotely"
	RemoteOK       = "RemoteOK"
	FlexJobs       = "FlexJobs"
)

// RemoteCoProfile describes Remote.co. Pages are static and hold 10 listings when full.
func RemoteCoProfile() Profile {
	return Profile{
		MinPageSize:     10,
		ExcludedDomains: []string{"remote.co"},
	}
}

// WeWorkRemotelyProfile describes We Work Remotely, which lists a category on one static page.
func WeWorkRemotelyProfile() Profile {
	return Profile{
		ExcludedDomains: []string{"weworkremotely.com"},
	}
}

// RemoteOKProfile describes RemoteOK. The index is rendered client side; rows carry their detail URL in data
// attributes and dates in <time datetime>.
func RemoteOKProfile() Profile {
	return Profile{
		IndexDynamic:            true,
		MinPageSize:             20,
		ExcludedDomains:         []string{"remoteok.com", "remoteok.io"},
		LinkAttrs:               []string{"data-url", "data-href"},
		DateAttr:                "datetime",
		PreferAbbreviatedSalary: true,
	}
}

// FlexJobsProfile describes FlexJobs, where both index and detail pages need a browser.
func FlexJobsProfile() Profile {
	return Profile{
		IndexDynamic:    true,
		DetailDynamic:   true,
		MinPageSize:     10,
		ExcludedDomains: []string{"flexjobs.com"},
	}
}

// Constructor builds an adapter for a configured site.
type Constructor func(site scraper.SiteConfig, settings scraper.Settings, fetcher scraper.PageFetcher, opts ...Option) Adapter

func fromProfile(profile func() Profile) Constructor {
	return func(site scraper.SiteConfig, settings scraper.Settings, fetcher scraper.PageFetcher, opts ...Option) Adapter {
		return NewBase(site, settings, profile(), fetcher, opts...)
	}
}

// Registry maps site names to constructors.
type Registry map[string]Constructor

// DefaultRegistry knows every built-in site.
func DefaultRegistry() Registry {
	return Registry{
		RemoteCo:       fromProfile(RemoteCoProfile),
		WeWorkRemotely: fromProfile(WeWorkRemotelyProfile),
		RemoteOK:       fromProfile(RemoteOKProfile),
		FlexJobs:       fromProfile(FlexJobsProfile),
	}
}

// Lookup returns the constructor registered for name.
func (r Registry) Lookup(name string) (Constructor, bool) {
	c, ok := r[name]
	return c, ok
}

// FetcherFactory builds the fetcher an adapter will own.
type FetcherFactory func(site scraper.SiteConfig) scraper.PageFetcher

// Build instantiates an adapter for every enabled site with a registered constructor.
// Unknown sites are logged and skipped.
func (r Registry) Build(sites []scraper.SiteConfig, settings scraper.Settings, newFetcher FetcherFactory, logger *zap.Logger, opts ...Option) map[string]Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	adapters := make(map[string]Adapter, len(sites))
	for _, site := range sites {
		if !site.Enabled {
			logger.Debug("site disabled, skipping", zap.String("site", site.Name))
			continue
		}
		ctor, ok := r.Lookup(site.Name)
		if !ok {
			logger.Warn("no adapter for site, skipping", zap.String("site", site.Name))
			continue
		}
		adapters[site.Name] = ctor(site, settings, newFetcher(site), opts...)
	}
	return adapters
}
