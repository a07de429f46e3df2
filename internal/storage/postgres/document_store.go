package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maturion/ingest/internal/ingest"
)

// DocumentStore implements ingest.DocumentStore on Postgres.
type DocumentStore struct {
	pool Pool
}

// NewDocumentStore constructs a DocumentStore.
func NewDocumentStore(pool Pool) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DocumentStore{pool: pool}, nil
}

const getDocumentSQL = `
SELECT id, organization_id, file_path, content_type, processing_status, total_chunks, processed_at, COALESCE(error_text, ''), deleted_at
FROM ai_documents
WHERE id = $1 AND deleted_at IS NULL`

// GetDocument implements ingest.DocumentStore. Soft-deleted documents read
// as not found.
func (s *DocumentStore) GetDocument(ctx context.Context, documentID string) (ingest.Document, error) {
	var doc ingest.Document
	var status string
	err := s.pool.QueryRow(ctx, getDocumentSQL, documentID).Scan(
		&doc.ID, &doc.OrganizationID, &doc.FilePath, &doc.ContentType,
		&status, &doc.TotalChunks, &doc.ProcessedAt, &doc.ErrorText, &doc.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.Document{}, ingest.ErrNotFound
	}
	if err != nil {
		return ingest.Document{}, fmt.Errorf("get document: %w", err)
	}
	doc.Status = ingest.DocumentStatus(status)
	return doc, nil
}

const setDocumentStatusSQL = `
UPDATE ai_documents SET processing_status = $2, error_text = $3 WHERE id = $1`

// SetDocumentStatus implements ingest.DocumentStore.
func (s *DocumentStore) SetDocumentStatus(ctx context.Context, documentID string, status ingest.DocumentStatus, errText string) error {
	tag, err := s.pool.Exec(ctx, setDocumentStatusSQL, documentID, string(status), errText)
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

const deleteChunksSQL = `DELETE FROM ai_document_chunks WHERE document_id = $1`

const insertChunksSQL = `
INSERT INTO ai_document_chunks (document_id, chunk_index, content, content_hash)
SELECT $1, unnest($2::int[]), unnest($3::text[]), unnest($4::text[])`

// ReplaceChunks implements ingest.DocumentStore: delete plus bulk insert in
// one transaction.
func (s *DocumentStore) ReplaceChunks(ctx context.Context, documentID string, chunks []ingest.DocumentChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteChunksSQL, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	if len(chunks) > 0 {
		indexes := make([]int, 0, len(chunks))
		contents := make([]string, 0, len(chunks))
		hashes := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			indexes = append(indexes, chunk.Index)
			contents = append(contents, chunk.Content)
			hashes = append(hashes, chunk.ContentHash)
		}
		if _, err := tx.Exec(ctx, insertChunksSQL, documentID, indexes, contents, hashes); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const finalizeDocumentSQL = `
UPDATE ai_documents
SET processing_status = 'completed', total_chunks = $2, processed_at = $3, error_text = ''
WHERE id = $1`

// FinalizeDocument implements ingest.DocumentStore.
func (s *DocumentStore) FinalizeDocument(ctx context.Context, documentID string, totalChunks int, processedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, finalizeDocumentSQL, documentID, totalChunks, processedAt)
	if err != nil {
		return fmt.Errorf("finalize document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

const logStageSQL = `
INSERT INTO processing_pipeline_status (document_id, stage, status, detail, created_at)
VALUES ($1, $2, $3, $4, $5)`

// LogStage implements ingest.DocumentStore.
func (s *DocumentStore) LogStage(ctx context.Context, event ingest.StageEvent) error {
	if _, err := s.pool.Exec(ctx, logStageSQL,
		event.DocumentID, string(event.Stage), string(event.Status), event.Detail, event.At); err != nil {
		return fmt.Errorf("log stage: %w", err)
	}
	return nil
}

const listStagesSQL = `
SELECT document_id, stage, status, COALESCE(detail, ''), created_at
FROM processing_pipeline_status
WHERE document_id = $1
ORDER BY created_at ASC, id ASC`

// ListStages implements ingest.DocumentStore.
func (s *DocumentStore) ListStages(ctx context.Context, documentID string) ([]ingest.StageEvent, error) {
	rows, err := s.pool.Query(ctx, listStagesSQL, documentID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var out []ingest.StageEvent
	for rows.Next() {
		var ev ingest.StageEvent
		var stage, status string
		if err := rows.Scan(&ev.DocumentID, &stage, &status, &ev.Detail, &ev.At); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		ev.Stage = ingest.PipelineStage(stage)
		ev.Status = ingest.StageStatus(status)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stages rows: %w", err)
	}
	return out, nil
}

const searchChunksSQL = `
SELECT c.document_id, c.chunk_index, c.content, c.content_hash
FROM ai_document_chunks c
JOIN ai_documents d ON d.id = c.document_id
WHERE d.organization_id = $1 AND d.deleted_at IS NULL AND c.content ILIKE ANY($2)
ORDER BY c.document_id, c.chunk_index
LIMIT $3`

// SearchChunks implements ingest.DocumentStore via ILIKE ANY over the
// keywords, scoped to non-deleted documents of the organization.
func (s *DocumentStore) SearchChunks(ctx context.Context, organizationID string, keywords []string, limit int) ([]ingest.DocumentChunk, error) {
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

	rows, err := s.pool.Query(ctx, searchChunksSQL, organizationID, patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []ingest.DocumentChunk
	for rows.Next() {
		var chunk ingest.DocumentChunk
		if err := rows.Scan(&chunk.DocumentID, &chunk.Index, &chunk.Content, &chunk.ContentHash); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search chunks rows: %w", err)
	}
	return out, nil
}

const organizationProfileSQL = `
SELECT COALESCE(profile_text, '') FROM org_profiles WHERE organization_id = $1`

// OrganizationProfile implements ingest.DocumentStore.
func (s *DocumentStore) OrganizationProfile(ctx context.Context, organizationID string) (string, error) {
	var profile string
	err := s.pool.QueryRow(ctx, organizationProfileSQL, organizationID).Scan(&profile)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ingest.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("organization profile: %w", err)
	}
	if profile == "" {
		return "", ingest.ErrNotFound
	}
	return profile, nil
}
