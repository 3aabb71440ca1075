package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscout/internal/scraper"
)

func sampleListings(now time.Time) []scraper.Listing {
	posted := now.Add(-48 * time.Hour)
	return []scraper.Listing{
		{
			Title:       "Data Entry Specialist",
			CompanyName: "Test Company 1",
			JobType:     "Full-time",
			URL:         "https://remote.co/job/data-entry-specialist",
			PostedDate:  &posted,
			ScrapedDate: now,
			SourceSite:  "Remote.co",
			IsActive:    true,
		},
		{
			Title:       "Virtual Assistant",
			CompanyName: "Test Company 2",
			URL:         "https://remote.co/job/virtual-assistant",
			ScrapedDate: now,
			SourceSite:  "Remote.co",
			IsActive:    true,
		},
	}
}

func TestUpsertBatchCountsInsertsAndUpdates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	listings := sampleListings(now)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO job_listings").
		WithArgs(upsertArgs(listings[0])...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(int64(41), false))
	mock.ExpectQuery("INSERT INTO job_listings").
		WithArgs(upsertArgs(listings[1])...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(int64(42), true))
	mock.ExpectCommit()

	stats, err := store.UpsertBatch(context.Background(), listings)
	require.NoError(t, err)
	require.Equal(t, scraper.PersistStats{Inserted: 1, Updated: 1}, stats)
	require.Equal(t, int64(41), listings[0].ID)
	require.Equal(t, int64(42), listings[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "job_listings")
	require.NoError(t, err)

	listings := sampleListings(time.Unix(1700000000, 0).UTC())
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO job_listings").
		WithArgs(upsertArgs(listings[0])...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(int64(1), true))
	mock.ExpectQuery("INSERT INTO job_listings").
		WithArgs(upsertArgs(listings[1])...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	stats, err := store.UpsertBatch(context.Background(), listings)
	require.ErrorIs(t, err, scraper.ErrPersistence)
	require.Zero(t, stats)
	require.Zero(t, listings[0].ID, "ids are only assigned after commit")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchBeginFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
	_, err = store.UpsertBatch(context.Background(), sampleListings(time.Now()))
	require.ErrorIs(t, err, scraper.ErrPersistence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)
	stats, err := store.UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryAppliesFilters(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	active := true
	jobType := "Contract"
	columns := []string{
		"id", "title", "company_name", "job_type", "location", "description", "url", "contact_info",
		"company_website", "salary_info", "posted_date", "scraped_date", "source_site", "is_active",
	}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE title ILIKE $1 AND source_site = $2 AND is_active = $3")).
		WithArgs("%100\\% data%", "Remote.co", true, 100, 0).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			int64(9), "100% Data Analyst", "Acme", &jobType, (*string)(nil), (*string)(nil),
			"https://remote.co/job/9", (*string)(nil), (*string)(nil), (*string)(nil),
			(*time.Time)(nil), now, "Remote.co", true,
		))

	got, err := store.Query(context.Background(), scraper.Filter{Title: "100% data", SourceSite: "Remote.co", IsActive: &active}, 100, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(9), got[0].ID)
	require.Equal(t, "Contract", got[0].JobType)
	require.Empty(t, got[0].Location)
	require.Nil(t, got[0].PostedDate)
	require.Equal(t, now, got[0].ScrapedDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryWithoutFiltersOrdersByScrapedDate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM job_listings\nORDER BY scraped_date DESC, id DESC\nLIMIT $1 OFFSET $2")).
		WithArgs(10, 20).
		WillReturnError(errors.New("relation does not exist"))

	_, err = store.Query(context.Background(), scraper.Filter{}, 10, 20)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "listings_test")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listings_test").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewListingStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewListingStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewListingStoreWithPool(mock, "listings; DROP TABLE x")
	require.Error(t, err)

	_, err = NewListingStore(context.Background(), Config{})
	require.Error(t, err)
}
