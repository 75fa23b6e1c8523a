// Package postgres provides the Postgres-backed persistence implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/price-crawler/internal/catalog"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements catalog.Store on Postgres.
type Store struct {
	pool db
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, job_type, domain, homepage, seeds, additional_maps, disallow_cookies,
robots_user_agent, robots_crawl_delay_ms, robots_sitemaps,
status, submitted_at, started_at, ended_at, error_text`

// UpsertJob inserts a job row or replaces its mutable fields.
func (s *Store) UpsertJob(ctx context.Context, job catalog.Job) error {
	query := `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	started_at = EXCLUDED.started_at,
	ended_at = EXCLUDED.ended_at,
	error_text = EXCLUDED.error_text`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		string(job.Type),
		job.Domain,
		job.Homepage,
		job.Seeds,
		job.AdditionalMaps,
		job.DisallowCookies,
		job.RobotRules.UserAgent,
		job.RobotRules.CrawlDelay.Milliseconds(),
		job.RobotRules.Sitemaps,
		string(job.Status),
		job.SubmittedAt,
		job.StartedAt,
		job.EndedAt,
		job.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

// GetJobByID loads one job.
func (s *Store) GetJobByID(ctx context.Context, id string) (catalog.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Job{}, catalog.ErrJobNotFound
	}
	if err != nil {
		return catalog.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// GetActiveJobByDomain finds the pending or running job holding the domain's
// slot, if any.
func (s *Store) GetActiveJobByDomain(ctx context.Context, domain string) (catalog.Job, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+jobColumns+` FROM jobs
WHERE domain = $1 AND status IN ('pending', 'running')
ORDER BY submitted_at
LIMIT 1`, domain)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Job{}, catalog.ErrNoActiveJob
	}
	if err != nil {
		return catalog.Job{}, fmt.Errorf("get active job for %s: %w", domain, err)
	}
	return job, nil
}

// ListActiveJobs returns every pending or running job.
func (s *Store) ListActiveJobs(ctx context.Context) ([]catalog.Job, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+jobColumns+` FROM jobs
WHERE status IN ('pending', 'running')
ORDER BY submitted_at`)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []catalog.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (catalog.Job, error) {
	var (
		job          catalog.Job
		jobType      string
		status       string
		crawlDelayMS int64
	)
	err := row.Scan(
		&job.ID,
		&jobType,
		&job.Domain,
		&job.Homepage,
		&job.Seeds,
		&job.AdditionalMaps,
		&job.DisallowCookies,
		&job.RobotRules.UserAgent,
		&crawlDelayMS,
		&job.RobotRules.Sitemaps,
		&status,
		&job.SubmittedAt,
		&job.StartedAt,
		&job.EndedAt,
		&job.ErrorText,
	)
	if err != nil {
		return catalog.Job{}, err
	}
	job.Type = catalog.JobType(jobType)
	job.Status = catalog.JobStatus(status)
	job.RobotRules.CrawlDelay = time.Duration(crawlDelayMS) * time.Millisecond
	return job, nil
}

// UpsertPages records discovered pages, keeping the earliest discovery time
// for a URL seen more than once.
func (s *Store) UpsertPages(ctx context.Context, pages []catalog.Page) error {
	if len(pages) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin page upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
INSERT INTO pages (url, referrer_url, page_type, discovered_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (url) DO UPDATE SET
	referrer_url = EXCLUDED.referrer_url,
	page_type = EXCLUDED.page_type,
	discovered_at = LEAST(pages.discovered_at, EXCLUDED.discovered_at)`
	for _, page := range pages {
		if _, err := tx.Exec(ctx, query, page.URL, page.ReferrerURL, string(page.Type), page.DiscoveredAt); err != nil {
			return fmt.Errorf("upsert page %s: %w", page.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit page upsert: %w", err)
	}
	return nil
}

// FindSiteByDomain loads the per-domain site record with its learned wrapper.
func (s *Store) FindSiteByDomain(ctx context.Context, domain string) (catalog.Site, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, domain, wrapper_signature, wrapper_rules, wrapper_generated_at
FROM sites WHERE domain = $1`, domain)

	var (
		site        catalog.Site
		signature   *string
		rulesJSON   []byte
		generatedAt *time.Time
	)
	err := row.Scan(&site.ID, &site.Domain, &signature, &rulesJSON, &generatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Site{}, catalog.ErrSiteNotFound
	}
	if err != nil {
		return catalog.Site{}, fmt.Errorf("find site %s: %w", domain, err)
	}
	if signature != nil {
		wrapper := &catalog.WebWrapper{Signature: *signature}
		if generatedAt != nil {
			wrapper.GeneratedAt = *generatedAt
		}
		if len(rulesJSON) > 0 {
			if err := json.Unmarshal(rulesJSON, &wrapper.Rules); err != nil {
				return catalog.Site{}, fmt.Errorf("decode wrapper rules for %s: %w", domain, err)
			}
		}
		site.Wrapper = wrapper
	}
	return site, nil
}

// SaveSite inserts or replaces the site record.
func (s *Store) SaveSite(ctx context.Context, site catalog.Site) error {
	var (
		signature   *string
		rulesJSON   []byte
		generatedAt *time.Time
		err         error
	)
	if site.Wrapper != nil {
		signature = &site.Wrapper.Signature
		generatedAt = &site.Wrapper.GeneratedAt
		rulesJSON, err = json.Marshal(site.Wrapper.Rules)
		if err != nil {
			return fmt.Errorf("encode wrapper rules for %s: %w", site.Domain, err)
		}
	}
	query := `
INSERT INTO sites (id, domain, wrapper_signature, wrapper_rules, wrapper_generated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (domain) DO UPDATE SET
	wrapper_signature = EXCLUDED.wrapper_signature,
	wrapper_rules = EXCLUDED.wrapper_rules,
	wrapper_generated_at = EXCLUDED.wrapper_generated_at`
	if _, err := s.pool.Exec(ctx, query, site.ID, site.Domain, signature, rulesJSON, generatedAt); err != nil {
		return fmt.Errorf("save site %s: %w", site.Domain, err)
	}
	return nil
}

// FindProductByISBNOrTitle matches on ISBN when one is known, otherwise on the
// normalized title. Results are ordered by id for deterministic anomaly
// handling.
func (s *Store) FindProductByISBNOrTitle(ctx context.Context, isbn, normalizedTitle string) ([]catalog.Product, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if isbn != "" {
		rows, err = s.pool.Query(ctx, `
SELECT id, title, isbn, authors, description FROM products
WHERE isbn = $1 ORDER BY id`, isbn)
	} else {
		rows, err = s.pool.Query(ctx, `
SELECT id, title, isbn, authors, description FROM products
WHERE normalized_title = $1 ORDER BY id`, normalizedTitle)
	}
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer rows.Close()

	var products []catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.ISBN, &p.Authors, &p.Description); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	for i := range products {
		points, err := s.loadPricePoints(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].PricePoints = points
	}
	return products, nil
}

func (s *Store) loadPricePoints(ctx context.Context, productID string) ([]catalog.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
SELECT nominal, currency, observed_date, site_id FROM price_points
WHERE product_id = $1 ORDER BY observed_date, id`, productID)
	if err != nil {
		return nil, fmt.Errorf("load price points for %s: %w", productID, err)
	}
	defer rows.Close()

	var points []catalog.PricePoint
	for rows.Next() {
		var (
			point   catalog.PricePoint
			nominal string
		)
		if err := rows.Scan(&nominal, &point.Currency, &point.ObservedDate, &point.SiteID); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		point.Nominal, err = decimal.NewFromString(nominal)
		if err != nil {
			return nil, fmt.Errorf("decode price %q: %w", nominal, err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load price points for %s: %w", productID, err)
	}
	return points, nil
}

// SaveProduct inserts a new product together with its price observations.
func (s *Store) SaveProduct(ctx context.Context, product catalog.Product) error {
	return s.writeProduct(ctx, product, false)
}

// MergeProduct replaces the stored record for an existing product, including
// its full price history.
func (s *Store) MergeProduct(ctx context.Context, product catalog.Product) error {
	return s.writeProduct(ctx, product, true)
}

func (s *Store) writeProduct(ctx context.Context, product catalog.Product, replace bool) error {
	if product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin product write: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
INSERT INTO products (id, title, normalized_title, isbn, authors, description)
VALUES ($1, $2, $3, $4, $5, $6)`
	if replace {
		query += `
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	normalized_title = EXCLUDED.normalized_title,
	isbn = EXCLUDED.isbn,
	authors = EXCLUDED.authors,
	description = EXCLUDED.description`
	}
	_, err = tx.Exec(ctx, query,
		product.ID,
		product.Title,
		catalog.NormalizeTitle(product.Title),
		product.ISBN,
		product.Authors,
		product.Description,
	)
	if err != nil {
		return fmt.Errorf("write product %s: %w", product.ID, err)
	}

	if replace {
		if _, err := tx.Exec(ctx, `DELETE FROM price_points WHERE product_id = $1`, product.ID); err != nil {
			return fmt.Errorf("clear price points for %s: %w", product.ID, err)
		}
	}
	for _, point := range product.PricePoints {
		_, err := tx.Exec(ctx, `
INSERT INTO price_points (product_id, nominal, currency, observed_date, site_id)
VALUES ($1, $2, $3, $4, $5)`,
			product.ID,
			point.Nominal.String(),
			point.Currency,
			point.ObservedDate,
			point.SiteID,
		)
		if err != nil {
			return fmt.Errorf("write price point for %s: %w", product.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit product write: %w", err)
	}
	return nil
}
