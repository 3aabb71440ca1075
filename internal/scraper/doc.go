// Package scraper defines the core listing types, site configuration shapes, error
// taxonomy, and the contracts shared by fetchers, adapters, stores, and the manager.
package scraper
