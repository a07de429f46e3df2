package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maturion/ingest/internal/ingest"
)

// CrawlStore implements ingest.CrawlStore on Postgres. Queue claims are a
// single conditional UPDATE over a SKIP LOCKED subselect, so concurrent
// workers cannot double-claim an entry.
type CrawlStore struct {
	pool        Pool
	maxAttempts int
}

// NewCrawlStore constructs a CrawlStore. maxAttempts bounds per-entry fetch
// retries before the entry goes terminal.
func NewCrawlStore(pool Pool, maxAttempts int) (*CrawlStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &CrawlStore{pool: pool, maxAttempts: maxAttempts}, nil
}

const enqueueSQL = `
INSERT INTO org_crawl_queue (organization_id, url, domain, priority, status, attempts, enqueued_at, updated_at)
VALUES ($1, $2, $3, $4, 'queued', 0, $5, $5)
ON CONFLICT (organization_id, url) DO NOTHING`

// Enqueue implements ingest.CrawlStore, ignoring conflicts on (org, url).
func (s *CrawlStore) Enqueue(ctx context.Context, entry ingest.CrawlQueueEntry) (bool, error) {
	enqueuedAt := entry.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, enqueueSQL,
		entry.OrganizationID, entry.URL, entry.Domain, entry.Priority, enqueuedAt)
	if err != nil {
		return false, fmt.Errorf("enqueue: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const claimNextSQL = `
UPDATE org_crawl_queue
SET status = 'fetching', updated_at = now()
WHERE id = (
	SELECT id FROM org_crawl_queue
	WHERE organization_id = $1 AND status = 'queued'
	ORDER BY priority DESC, id ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING id, organization_id, url, domain, priority, status, attempts, COALESCE(last_error, ''), enqueued_at, updated_at`

// ClaimNext implements ingest.CrawlStore atomically: the highest-priority
// queued entry flips to fetching and is returned in the same statement.
func (s *CrawlStore) ClaimNext(ctx context.Context, organizationID string) (ingest.CrawlQueueEntry, error) {
	var e ingest.CrawlQueueEntry
	err := s.pool.QueryRow(ctx, claimNextSQL, organizationID).Scan(
		&e.ID, &e.OrganizationID, &e.URL, &e.Domain, &e.Priority,
		&e.Status, &e.Attempts, &e.LastError, &e.EnqueuedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.CrawlQueueEntry{}, ingest.ErrQueueEmpty
	}
	if err != nil {
		return ingest.CrawlQueueEntry{}, fmt.Errorf("claim next: %w", err)
	}
	return e, nil
}

const markDoneSQL = `
UPDATE org_crawl_queue SET status = 'done', updated_at = now() WHERE id = $1`

// MarkDone implements ingest.CrawlStore.
func (s *CrawlStore) MarkDone(ctx context.Context, entryID int64) error {
	tag, err := s.pool.Exec(ctx, markDoneSQL, entryID)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

const markFailedSQL = `
UPDATE org_crawl_queue
SET attempts = attempts + 1,
    last_error = $2,
    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'queued' END,
    updated_at = now()
WHERE id = $1`

// MarkFailed implements ingest.CrawlStore. The entry requeues until its
// attempt count reaches the configured limit, then goes terminal.
func (s *CrawlStore) MarkFailed(ctx context.Context, entryID int64, reason string) error {
	tag, err := s.pool.Exec(ctx, markFailedSQL, entryID, reason, s.maxAttempts)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

// The pre-insert hash is read in the same snapshot as the upsert, so the
// returned boolean reports whether body content actually changed.
const upsertPageSQL = `
WITH existing AS (
	SELECT html_hash FROM org_pages WHERE organization_id = $1 AND url = $2
), upsert AS (
	INSERT INTO org_pages AS p (organization_id, url, domain, title, text, html_hash, etag, content_type, fetched_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (organization_id, url) DO UPDATE SET
		domain = EXCLUDED.domain,
		title = CASE WHEN p.html_hash = EXCLUDED.html_hash THEN p.title ELSE EXCLUDED.title END,
		text = CASE WHEN p.html_hash = EXCLUDED.html_hash THEN p.text ELSE EXCLUDED.text END,
		html_hash = EXCLUDED.html_hash,
		etag = EXCLUDED.etag,
		content_type = EXCLUDED.content_type,
		fetched_at = EXCLUDED.fetched_at
)
SELECT COALESCE((SELECT html_hash FROM existing) IS DISTINCT FROM $6, true)`

// UpsertPage implements ingest.CrawlStore. A matching html_hash refreshes
// fetched_at/etag only and reports changed=false.
func (s *CrawlStore) UpsertPage(ctx context.Context, page ingest.Page) (bool, error) {
	var changed bool
	err := s.pool.QueryRow(ctx, upsertPageSQL,
		page.OrganizationID, page.URL, page.Domain, page.Title, page.Text,
		page.HTMLHash, page.ETag, page.ContentType, page.FetchedAt).Scan(&changed)
	if err != nil {
		return false, fmt.Errorf("upsert page: %w", err)
	}
	return changed, nil
}

const getPageSQL = `
SELECT organization_id, url, domain, title, text, html_hash, COALESCE(etag, ''), content_type, fetched_at
FROM org_pages
WHERE organization_id = $1 AND url = $2`

// GetPage implements ingest.CrawlStore.
func (s *CrawlStore) GetPage(ctx context.Context, organizationID, url string) (ingest.Page, error) {
	var p ingest.Page
	err := s.pool.QueryRow(ctx, getPageSQL, organizationID, url).Scan(
		&p.OrganizationID, &p.URL, &p.Domain, &p.Title, &p.Text,
		&p.HTMLHash, &p.ETag, &p.ContentType, &p.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.Page{}, ingest.ErrNotFound
	}
	if err != nil {
		return ingest.Page{}, fmt.Errorf("get page: %w", err)
	}
	return p, nil
}

const touchPageSQL = `
UPDATE org_pages SET etag = $3, fetched_at = $4 WHERE organization_id = $1 AND url = $2`

// TouchPage implements ingest.CrawlStore.
func (s *CrawlStore) TouchPage(ctx context.Context, organizationID, url, etag string, fetchedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, touchPageSQL, organizationID, url, etag, fetchedAt)
	if err != nil {
		return fmt.Errorf("touch page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

const searchPagesSQL = `
SELECT organization_id, url, domain, title, text, html_hash, COALESCE(etag, ''), content_type, fetched_at
FROM org_pages
WHERE organization_id = $1 AND text ILIKE ANY($2)
ORDER BY fetched_at DESC
LIMIT $3`

// SearchPages implements ingest.CrawlStore via ILIKE ANY over the keywords.
func (s *CrawlStore) SearchPages(ctx context.Context, organizationID string, keywords []string, limit int) ([]ingest.Page, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	patterns := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		patterns = append(patterns, "%"+kw+"%")
	}

	rows, err := s.pool.Query(ctx, searchPagesSQL, organizationID, patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()

	var out []ingest.Page
	for rows.Next() {
		var p ingest.Page
		if err := rows.Scan(&p.OrganizationID, &p.URL, &p.Domain, &p.Title, &p.Text,
			&p.HTMLHash, &p.ETag, &p.ContentType, &p.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search pages rows: %w", err)
	}
	return out, nil
}

const queueStatsSQL = `
SELECT status, COUNT(*) FROM org_crawl_queue WHERE organization_id = $1 GROUP BY status`

// QueueStats implements ingest.CrawlStore.
func (s *CrawlStore) QueueStats(ctx context.Context, organizationID string) (map[ingest.QueueStatus]int, error) {
	rows, err := s.pool.Query(ctx, queueStatsSQL, organizationID)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	out := make(map[ingest.QueueStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		out[ingest.QueueStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue stats rows: %w", err)
	}
	return out, nil
}
