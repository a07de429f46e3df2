package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/maturion/ingest/internal/ingest"
)

// FeedbackStore implements ingest.FeedbackStore on Postgres.
type FeedbackStore struct {
	pool Pool
}

// NewFeedbackStore constructs a FeedbackStore.
func NewFeedbackStore(pool Pool) (*FeedbackStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &FeedbackStore{pool: pool}, nil
}

const saveFeedbackSQL = `
INSERT INTO ai_feedback (organization_id, text, accepted, created_at)
VALUES ($1, $2, $3, $4)`

// SaveFeedback implements ingest.FeedbackStore.
func (s *FeedbackStore) SaveFeedback(ctx context.Context, fb ingest.Feedback) error {
	createdAt := fb.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, saveFeedbackSQL,
		fb.OrganizationID, fb.Text, fb.Accepted, createdAt); err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

const listRejectedSQL = `
SELECT organization_id, text, accepted, created_at
FROM ai_feedback
WHERE organization_id = $1 AND accepted = false
ORDER BY created_at DESC
LIMIT $2`

// ListRejected implements ingest.FeedbackStore, newest first.
func (s *FeedbackStore) ListRejected(ctx context.Context, organizationID string, limit int) ([]ingest.Feedback, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, listRejectedSQL, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rejected: %w", err)
	}
	defer rows.Close()

	var out []ingest.Feedback
	for rows.Next() {
		var fb ingest.Feedback
		if err := rows.Scan(&fb.OrganizationID, &fb.Text, &fb.Accepted, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rejected rows: %w", err)
	}
	return out, nil
}
