package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/maturion/ingest/internal/ingest"
)

// JobStore implements ingest.JobStore on Postgres.
type JobStore struct {
	pool Pool
}

// NewJobStore constructs a JobStore.
func NewJobStore(pool Pool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

const createJobSQL = `
INSERT INTO org_ingest_jobs (id, organization_id, domain, status, stats)
VALUES ($1, $2, $3, $4, $5)`

// CreateJob implements ingest.JobStore.
func (s *JobStore) CreateJob(ctx context.Context, job ingest.IngestJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	stats, err := json.Marshal(job.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if _, err := s.pool.Exec(ctx, createJobSQL,
		job.ID, job.OrganizationID, job.Domain, string(job.Status), stats); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

const updateJobStatusSQL = `
UPDATE org_ingest_jobs
SET status = $2,
    error_text = $3,
    stats = $4,
    started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
    finished_at = CASE WHEN $2 IN ('succeeded', 'failed', 'canceled') THEN now() ELSE finished_at END
WHERE id = $1`

// UpdateJobStatus implements ingest.JobStore. Started and finished
// timestamps are set server-side on the running and terminal transitions.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, status ingest.JobStatus, errText string, stats ingest.CrawlStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	tag, err := s.pool.Exec(ctx, updateJobStatusSQL, jobID, string(status), errText, payload)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

const getJobSQL = `
SELECT id, organization_id, domain, status, started_at, finished_at, COALESCE(error_text, ''), stats
FROM org_ingest_jobs
WHERE id = $1`

// GetJob implements ingest.JobStore.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (ingest.IngestJob, error) {
	var job ingest.IngestJob
	var status string
	var stats []byte
	err := s.pool.QueryRow(ctx, getJobSQL, jobID).Scan(
		&job.ID, &job.OrganizationID, &job.Domain, &status,
		&job.StartedAt, &job.FinishedAt, &job.ErrorText, &stats)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.IngestJob{}, ingest.ErrNotFound
	}
	if err != nil {
		return ingest.IngestJob{}, fmt.Errorf("get job: %w", err)
	}
	job.Status = ingest.JobStatus(status)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &job.Stats); err != nil {
			return ingest.IngestJob{}, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	return job, nil
}
