package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/jobscout/internal/scraper"
)

// ListingStore keeps listings keyed by URL. Batches are applied atomically under one lock.
type ListingStore struct {
	mu     sync.RWMutex
	byURL  map[string]scraper.Listing
	nextID int64
	// failNext makes the next UpsertBatch fail without writing, for exercising rollback paths.
	failNext error
}

// NewListingStore creates an empty store.
func NewListingStore() *ListingStore {
	return &ListingStore{byURL: make(map[string]scraper.Listing)}
}

// FailNextBatch makes the next UpsertBatch return err without writing anything.
func (s *ListingStore) FailNextBatch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// UpsertBatch inserts new URLs and overwrites every field of existing ones, keeping their IDs.
func (s *ListingStore) UpsertBatch(_ context.Context, listings []scraper.Listing) (scraper.PersistStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return scraper.PersistStats{}, fmt.Errorf("%w: %w", scraper.ErrPersistence, err)
	}
	for _, l := range listings {
		if !l.Valid() {
			return scraper.PersistStats{}, fmt.Errorf("%w: %w", scraper.ErrPersistence, errors.New("listing title and url are required"))
		}
	}

	var stats scraper.PersistStats
	staged := make(map[string]scraper.Listing, len(listings))
	nextID := s.nextID
	ids := make([]int64, len(listings))
	for i, l := range listings {
		existing, ok := staged[l.URL]
		if !ok {
			existing, ok = s.byURL[l.URL]
		}
		if ok {
			l.ID = existing.ID
			stats.Updated++
		} else {
			nextID++
			l.ID = nextID
			stats.Inserted++
		}
		staged[l.URL] = l
		ids[i] = l.ID
	}
	for url, l := range staged {
		s.byURL[url] = l
	}
	s.nextID = nextID
	for i := range listings {
		listings[i].ID = ids[i]
	}
	return stats, nil
}

// Query returns matching listings ordered by scraped date, newest first, then by ID descending.
func (s *ListingStore) Query(_ context.Context, filter scraper.Filter, limit, offset int) ([]scraper.Listing, error) {
	s.mu.RLock()
	matched := make([]scraper.Listing, 0, len(s.byURL))
	for _, l := range s.byURL {
		if filter.Matches(l) {
			matched = append(matched, l)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ScrapedDate.Equal(matched[j].ScrapedDate) {
			return matched[i].ScrapedDate.After(matched[j].ScrapedDate)
		}
		return matched[i].ID > matched[j].ID
	})
	if offset >= len(matched) {
		return []scraper.Listing{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count returns the number of stored listings.
func (s *ListingStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL)
}

// Close is a no-op.
func (s *ListingStore) Close() error { return nil }
