package scraper

import "errors"

// Error taxonomy. Components wrap these with context using %w; callers classify with errors.Is.
var (
	// ErrFetch covers network failures, non-2xx statuses, and timeouts.
	ErrFetch = errors.New("fetch failed")
	// ErrParse covers absent selectors and unexpected markup.
	ErrParse = errors.New("parse failed")
	// ErrResource covers a headless browser that could not be started.
	ErrResource = errors.New("browser resource unavailable")
	// ErrPersistence covers a failed batch write; the batch is rolled back.
	ErrPersistence = errors.New("persistence failed")
	// ErrUnknownSite is reported when no adapter is registered for a site name.
	ErrUnknownSite = errors.New("unknown site")
)
