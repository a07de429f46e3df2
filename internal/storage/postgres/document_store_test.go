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

func newMockDocumentStore(t *testing.T) (*DocumentStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewDocumentStore(mock)
	require.NoError(t, err)
	return store, mock
}

func TestDocumentStore_GetDocument(t *testing.T) {
	t.Parallel()

	store, mock := newMockDocumentStore(t)

	cols := []string{"id", "organization_id", "file_path", "content_type", "processing_status", "total_chunks", "processed_at", "error_text", "deleted_at"}
	mock.ExpectQuery("SELECT (.+) FROM ai_documents").
		WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("doc-1", "org-1", "docs/report.txt", "text/plain", "pending", 0, nil, "", nil))

	doc, err := store.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, ingest.DocumentStatusPending, doc.Status)
	require.Equal(t, "docs/report.txt", doc.FilePath)

	mock.ExpectQuery("SELECT (.+) FROM ai_documents").
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetDocument(context.Background(), "gone")
	require.ErrorIs(t, err, ingest.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStore_SetDocumentStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockDocumentStore(t)

	mock.ExpectExec("UPDATE ai_documents").
		WithArgs("doc-1", "processing", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetDocumentStatus(context.Background(), "doc-1", ingest.DocumentStatusProcessing, ""))

	mock.ExpectExec("UPDATE ai_documents").
		WithArgs("gone", "pending", "chunk: boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.SetDocumentStatus(context.Background(), "gone", ingest.DocumentStatusPending, "chunk: boom")
	require.ErrorIs(t, err, ingest.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStore_ReplaceChunks(t *testing.T) {
	t.Parallel()

	store, mock := newMockDocumentStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM ai_document_chunks").
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO ai_document_chunks").
		WithArgs("doc-1", []int{0, 1}, []string{"alpha", "beta"}, []string{"h0", "h1"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := store.ReplaceChunks(context.Background(), "doc-1", []ingest.DocumentChunk{
		{DocumentID: "doc-1", Index: 0, Content: "alpha", ContentHash: "h0"},
		{DocumentID: "doc-1", Index: 1, Content: "beta", ContentHash: "h1"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStore_ReplaceChunksEmptySkipsInsert(t *testing.T) {
	t.Parallel()

	store, mock := newMockDocumentStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM ai_document_chunks").
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	require.NoError(t, store.ReplaceChunks(context.Background(), "doc-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStore_FinalizeDocument(t *testing.T) {
	t.Parallel()

	store, mock := newMockDocumentStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE ai_documents").
		WithArgs("doc-1", 4, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.FinalizeDocument(context.Background(), "doc-1", 4, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStore_LogAndListStages(t *testing.T) {
	t.Parallel()

	store, mock := newMockDocumentStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO processing_pipeline_status").
		WithArgs("doc-1", "extraction", "completed", "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.LogStage(context.Background(), ingest.StageEvent{
		DocumentID: "doc-1",
		Stage:      ingest.StageExtraction,
		Status:     ingest.StageStatusCompleted,
		At:         now,
	})
	require.NoError(t, err)

	cols := []string{"document_id", "stage", "status", "detail", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM processing_pipeline_status").
		WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("doc-1", "extraction", "started", "", now).
			AddRow("doc-1", "extraction", "completed", "", now))

	events, err := store.ListStages(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, ingest.StageStatusStarted, events[0].Status)
	require.Equal(t, ingest.StageStatusCompleted, events[1].Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStore_SearchChunks(t *testing.T) {
	t.Parallel()

	store, mock := newMockDocumentStore(t)

	cols := []string{"document_id", "chunk_index", "content", "content_hash"}
	mock.ExpectQuery("SELECT (.+) FROM ai_document_chunks").
		WithArgs("org-1", []string{"%safety%", "%training%"}, 5).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("doc-1", 0, "safety training schedule", "h0"))

	chunks, err := store.SearchChunks(context.Background(), "org-1", []string{"safety", "training"}, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "safety training schedule", chunks[0].Content)

	// No keywords, no query.
	chunks, err = store.SearchChunks(context.Background(), "org-1", nil, 5)
	require.NoError(t, err)
	require.Empty(t, chunks)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStore_OrganizationProfile(t *testing.T) {
	t.Parallel()

	store, mock := newMockDocumentStore(t)

	mock.ExpectQuery("SELECT (.+) FROM org_profiles").
		WithArgs("org-1").
		WillReturnRows(pgxmock.NewRows([]string{"profile_text"}).AddRow("Mining services contractor."))

	profile, err := store.OrganizationProfile(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, "Mining services contractor.", profile)

	mock.ExpectQuery("SELECT (.+) FROM org_profiles").
		WithArgs("org-2").
		WillReturnRows(pgxmock.NewRows([]string{"profile_text"}).AddRow(""))

	_, err = store.OrganizationProfile(context.Background(), "org-2")
	require.ErrorIs(t, err, ingest.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
