// Package postgres persists job listings in Postgres with one transaction per batch.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/jobscout/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds listings unless configured otherwise.
const DefaultTable = "job_listings"

// Config controls the Postgres connection pool used for listings.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// ListingStore implements scraper.ListingStore. The url column is UNIQUE; writes upsert on it.
type ListingStore struct {
	pool  pool
	table string
}

// NewListingStore connects a pool using cfg.
func NewListingStore(ctx context.Context, cfg Config) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewListingStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewListingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewListingStoreWithPool(p pool, table string) (*ListingStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ListingStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Ping checks connectivity for readiness probes.
func (s *ListingStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the listings table and its indexes when missing.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id              BIGSERIAL PRIMARY KEY,
	title           TEXT NOT NULL,
	company_name    TEXT NOT NULL,
	job_type        TEXT,
	location        TEXT,
	description     TEXT,
	url             TEXT NOT NULL UNIQUE,
	contact_info    TEXT,
	company_website TEXT,
	salary_info     TEXT,
	posted_date     TIMESTAMPTZ,
	scraped_date    TIMESTAMPTZ NOT NULL,
	source_site     TEXT NOT NULL,
	is_active       BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS %[1]s_scraped_date_idx ON %[1]s (scraped_date DESC);
CREATE INDEX IF NOT EXISTS %[1]s_source_site_idx ON %[1]s (source_site)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertBatch writes listings in a single transaction keyed by url. An existing row has every
// column except url overwritten. Assigned row IDs are written back into listings. Any failure
// rolls back the whole batch and wraps scraper.ErrPersistence.
func (s *ListingStore) UpsertBatch(ctx context.Context, listings []scraper.Listing) (stats scraper.PersistStats, err error) {
	if len(listings) == 0 {
		return stats, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: begin: %w", scraper.ErrPersistence, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	query := s.upsertSQL()
	ids := make([]int64, len(listings))
	for i, l := range listings {
		var inserted bool
		if scanErr := tx.QueryRow(ctx, query, upsertArgs(l)...).Scan(&ids[i], &inserted); scanErr != nil {
			return scraper.PersistStats{}, fmt.Errorf("%w: upsert %s: %w", scraper.ErrPersistence, l.URL, scanErr)
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Updated++
		}
	}
	if commitErr := tx.Commit(ctx); commitErr != nil {
		return scraper.PersistStats{}, fmt.Errorf("%w: commit: %w", scraper.ErrPersistence, commitErr)
	}
	for i := range listings {
		listings[i].ID = ids[i]
	}
	return stats, nil
}

func (s *ListingStore) upsertSQL() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	title,
	company_name,
	job_type,
	location,
	description,
	url,
	contact_info,
	company_website,
	salary_info,
	posted_date,
	scraped_date,
	source_site,
	is_active
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	company_name = EXCLUDED.company_name,
	job_type = EXCLUDED.job_type,
	location = EXCLUDED.location,
	description = EXCLUDED.description,
	contact_info = EXCLUDED.contact_info,
	company_website = EXCLUDED.company_website,
	salary_info = EXCLUDED.salary_info,
	posted_date = EXCLUDED.posted_date,
	scraped_date = EXCLUDED.scraped_date,
	source_site = EXCLUDED.source_site,
	is_active = EXCLUDED.is_active
RETURNING id, (xmax = 0) AS inserted`, s.table)
}

func upsertArgs(l scraper.Listing) []any {
	return []any{
		l.Title,
		l.CompanyName,
		nullable(l.JobType),
		nullable(l.Location),
		nullable(l.Description),
		l.URL,
		nullable(l.ContactInfo),
		nullable(l.CompanyWebsite),
		nullable(l.SalaryInfo),
		l.PostedDate,
		l.ScrapedDate,
		l.SourceSite,
		l.IsActive,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Query returns listings matching filter, most recently scraped first.
func (s *ListingStore) Query(ctx context.Context, filter scraper.Filter, limit, offset int) ([]scraper.Listing, error) {
	where, args := buildWhere(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
SELECT id, title, company_name, job_type, location, description, url, contact_info,
	company_website, salary_info, posted_date, scraped_date, source_site, is_active
FROM %s%s
ORDER BY scraped_date DESC, id DESC
LIMIT $%d OFFSET $%d`, s.table, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	listings, err := pgx.CollectRows(rows, scanListing)
	if err != nil {
		return nil, fmt.Errorf("scan listings: %w", err)
	}
	return listings, nil
}

func buildWhere(f scraper.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	like := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, "%"+escapeLike(value)+"%")
		clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
	}
	like("title", f.Title)
	like("company_name", f.Company)
	like("job_type", f.JobType)
	like("location", f.Location)
	if f.SourceSite != "" {
		args = append(args, f.SourceSite)
		clauses = append(clauses, fmt.Sprintf("source_site = $%d", len(args)))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		clauses = append(clauses, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "\nWHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanListing(row pgx.CollectableRow) (scraper.Listing, error) {
	var l scraper.Listing
	var jobType, location, description, contact, website, salary *string
	err := row.Scan(
		&l.ID,
		&l.Title,
		&l.CompanyName,
		&jobType,
		&location,
		&description,
		&l.URL,
		&contact,
		&website,
		&salary,
		&l.PostedDate,
		&l.ScrapedDate,
		&l.SourceSite,
		&l.IsActive,
	)
	if err != nil {
		return scraper.Listing{}, err
	}
	l.JobType = deref(jobType)
	l.Location = deref(location)
	l.Description = deref(description)
	l.ContactInfo = deref(contact)
	l.CompanyWebsite = deref(website)
	l.SalaryInfo = deref(salary)
	return l, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
