package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maturion/ingest/internal/ingest"
)

// JobStore is an in-memory implementation of ingest.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]ingest.IngestJob
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]ingest.IngestJob)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job ingest.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates status, error text, and stats for a job. Started
// and finished timestamps are set on the running and terminal transitions.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status ingest.JobStatus, errText string, stats ingest.CrawlStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ingest.ErrNotFound
	}
	job.Status = status
	job.ErrorText = errText
	job.Stats = stats
	now := time.Now().UTC()
	if status == ingest.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = pointerTime(now)
	}
	if isTerminal(status) {
		job.FinishedAt = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (ingest.IngestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ingest.IngestJob{}, ingest.ErrNotFound
	}
	return job, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status ingest.JobStatus) bool {
	switch status {
	case ingest.JobStatusSucceeded, ingest.JobStatusFailed, ingest.JobStatusCanceled:
		return true
	default:
		return false
	}
}
