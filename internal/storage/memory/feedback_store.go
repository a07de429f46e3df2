package memory

import (
	"context"
	"sync"

	"github.com/maturion/ingest/internal/ingest"
)

// FeedbackStore is an in-memory implementation of ingest.FeedbackStore.
type FeedbackStore struct {
	mu       sync.RWMutex
	feedback []ingest.Feedback
}

// NewFeedbackStore constructs a FeedbackStore.
func NewFeedbackStore() *FeedbackStore {
	return &FeedbackStore{}
}

// SaveFeedback implements ingest.FeedbackStore.
func (s *FeedbackStore) SaveFeedback(_ context.Context, fb ingest.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, fb)
	return nil
}

// ListRejected implements ingest.FeedbackStore, newest first.
func (s *FeedbackStore) ListRejected(_ context.Context, organizationID string, limit int) ([]ingest.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ingest.Feedback
	for i := len(s.feedback) - 1; i >= 0; i-- {
		fb := s.feedback[i]
		if fb.OrganizationID != organizationID || fb.Accepted {
			continue
		}
		out = append(out, fb)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
