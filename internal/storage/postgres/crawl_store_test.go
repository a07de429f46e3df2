package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/maturion/ingest/internal/ingest"
)

func newMockCrawlStore(t *testing.T) (*CrawlStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewCrawlStore(mock, 3)
	require.NoError(t, err)
	return store, mock
}

func TestCrawlStore_Enqueue(t *testing.T) {
	t.Parallel()

	store, mock := newMockCrawlStore(t)

	mock.ExpectExec("INSERT INTO org_crawl_queue").
		WithArgs("org-1", "https://example.com/", "example.com", 100, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := store.Enqueue(context.Background(), ingest.CrawlQueueEntry{
		OrganizationID: "org-1",
		URL:            "https://example.com/",
		Domain:         "example.com",
		Priority:       100,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	// Conflict on (org, url): zero rows affected, no error.
	mock.ExpectExec("INSERT INTO org_crawl_queue").
		WithArgs("org-1", "https://example.com/", "example.com", 50, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err = store.Enqueue(context.Background(), ingest.CrawlQueueEntry{
		OrganizationID: "org-1",
		URL:            "https://example.com/",
		Domain:         "example.com",
		Priority:       50,
	})
	require.NoError(t, err)
	require.False(t, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlStore_ClaimNext(t *testing.T) {
	t.Parallel()

	store, mock := newMockCrawlStore(t)
	now := time.Unix(1700000000, 0).UTC()

	cols := []string{"id", "organization_id", "url", "domain", "priority", "status", "attempts", "last_error", "enqueued_at", "updated_at"}
	mock.ExpectQuery("UPDATE org_crawl_queue").
		WithArgs("org-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(7), "org-1", "https://example.com/", "example.com", 100, "fetching", 0, "", now, now))

	entry, err := store.ClaimNext(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, int64(7), entry.ID)
	require.Equal(t, ingest.QueueStatusFetching, entry.Status)
	require.Equal(t, 100, entry.Priority)

	mock.ExpectQuery("UPDATE org_crawl_queue").
		WithArgs("org-1").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.ClaimNext(context.Background(), "org-1")
	require.ErrorIs(t, err, ingest.ErrQueueEmpty)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlStore_MarkFailedCarriesAttemptLimit(t *testing.T) {
	t.Parallel()

	store, mock := newMockCrawlStore(t)

	mock.ExpectExec("UPDATE org_crawl_queue").
		WithArgs(int64(7), "connect refused", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkFailed(context.Background(), 7, "connect refused"))

	mock.ExpectExec("UPDATE org_crawl_queue").
		WithArgs(int64(8), "x", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.ErrorIs(t, store.MarkFailed(context.Background(), 8, "x"), ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlStore_MarkDone(t *testing.T) {
	t.Parallel()

	store, mock := newMockCrawlStore(t)

	mock.ExpectExec("UPDATE org_crawl_queue").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkDone(context.Background(), 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlStore_UpsertPageReportsChanged(t *testing.T) {
	t.Parallel()

	store, mock := newMockCrawlStore(t)
	now := time.Unix(1700000000, 0).UTC()

	page := ingest.Page{
		OrganizationID: "org-1",
		URL:            "https://example.com/",
		Domain:         "example.com",
		Title:          "Home",
		Text:           "body text",
		HTMLHash:       "hash-1",
		ETag:           `"v1"`,
		ContentType:    "text/html",
		FetchedAt:      now,
	}

	mock.ExpectQuery("WITH existing AS").
		WithArgs("org-1", "https://example.com/", "example.com", "Home", "body text", "hash-1", `"v1"`, "text/html", now).
		WillReturnRows(pgxmock.NewRows([]string{"changed"}).AddRow(true))

	changed, err := store.UpsertPage(context.Background(), page)
	require.NoError(t, err)
	require.True(t, changed)

	mock.ExpectQuery("WITH existing AS").
		WithArgs("org-1", "https://example.com/", "example.com", "Home", "body text", "hash-1", `"v1"`, "text/html", now).
		WillReturnRows(pgxmock.NewRows([]string{"changed"}).AddRow(false))

	changed, err = store.UpsertPage(context.Background(), page)
	require.NoError(t, err)
	require.False(t, changed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlStore_GetPageNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockCrawlStore(t)

	mock.ExpectQuery("SELECT (.+) FROM org_pages").
		WithArgs("org-1", "https://example.com/missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetPage(context.Background(), "org-1", "https://example.com/missing")
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlStore_QueueStats(t *testing.T) {
	t.Parallel()

	store, mock := newMockCrawlStore(t)

	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs("org-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("queued", 4).
			AddRow("done", 10).
			AddRow("failed", 1))

	stats, err := store.QueueStats(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, map[ingest.QueueStatus]int{
		ingest.QueueStatusQueued: 4,
		ingest.QueueStatusDone:   10,
		ingest.QueueStatusFailed: 1,
	}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}
