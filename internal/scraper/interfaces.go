package scraper

import (
	"context"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageFetcher retrieves a page and returns the parsed document.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (*goquery.Document, error)
	// Release frees the headless browser, if one was started. It is safe to call repeatedly.
	Release()
}

// ListingStore persists listings keyed by URL.
type ListingStore interface {
	// UpsertBatch writes all listings in one transaction. Any failure rolls the whole batch back.
	UpsertBatch(ctx context.Context, listings []Listing) (PersistStats, error)
	// Query returns listings ordered by scraped date, newest first.
	Query(ctx context.Context, filter Filter, limit, offset int) ([]Listing, error)
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// PageCache stores rendered page markup between runs.
type PageCache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Set(ctx context.Context, url string, body []byte) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for archive keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}
