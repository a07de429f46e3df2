package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maturion/ingest/internal/ingest"
)

// DocumentStore is an in-memory implementation of ingest.DocumentStore.
type DocumentStore struct {
	mu       sync.RWMutex
	docs     map[string]ingest.Document
	chunks   map[string][]ingest.DocumentChunk
	stages   []ingest.StageEvent
	profiles map[string]string
}

// NewDocumentStore constructs a DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:     make(map[string]ingest.Document),
		chunks:   make(map[string][]ingest.DocumentChunk),
		profiles: make(map[string]string),
	}
}

// AddDocument seeds a document row. Uploads happen outside this service, so
// this is the development/test entry point for document rows.
func (s *DocumentStore) AddDocument(doc ingest.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Status == "" {
		doc.Status = ingest.DocumentStatusPending
	}
	s.docs[doc.ID] = doc
}

// SetOrganizationProfile seeds the free-text profile for an organization.
func (s *DocumentStore) SetOrganizationProfile(organizationID, profile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[organizationID] = profile
}

// GetDocument implements ingest.DocumentStore.
func (s *DocumentStore) GetDocument(_ context.Context, documentID string) (ingest.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok || doc.DeletedAt != nil {
		return ingest.Document{}, ingest.ErrNotFound
	}
	return doc, nil
}

// SetDocumentStatus implements ingest.DocumentStore.
func (s *DocumentStore) SetDocumentStatus(_ context.Context, documentID string, status ingest.DocumentStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return ingest.ErrNotFound
	}
	doc.Status = status
	doc.ErrorText = errText
	s.docs[documentID] = doc
	return nil
}

// ReplaceChunks implements ingest.DocumentStore.
func (s *DocumentStore) ReplaceChunks(_ context.Context, documentID string, chunks []ingest.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return ingest.ErrNotFound
	}
	s.chunks[documentID] = append([]ingest.DocumentChunk(nil), chunks...)
	return nil
}

// FinalizeDocument implements ingest.DocumentStore.
func (s *DocumentStore) FinalizeDocument(_ context.Context, documentID string, totalChunks int, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return ingest.ErrNotFound
	}
	doc.Status = ingest.DocumentStatusCompleted
	doc.TotalChunks = totalChunks
	doc.ProcessedAt = pointerTime(processedAt)
	doc.ErrorText = ""
	s.docs[documentID] = doc
	return nil
}

// LogStage implements ingest.DocumentStore.
func (s *DocumentStore) LogStage(_ context.Context, event ingest.StageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, event)
	return nil
}

// ListStages implements ingest.DocumentStore, in append order.
func (s *DocumentStore) ListStages(_ context.Context, documentID string) ([]ingest.StageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.StageEvent
	for _, ev := range s.stages {
		if ev.DocumentID == documentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// SearchChunks implements ingest.DocumentStore with case-insensitive
// substring matching, most keyword hits first.
func (s *DocumentStore) SearchChunks(_ context.Context, organizationID string, keywords []string, limit int) ([]ingest.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk ingest.DocumentChunk
		hits  int
	}
	var matches []scored
	for docID, chunks := range s.chunks {
		doc, ok := s.docs[docID]
		if !ok || doc.OrganizationID != organizationID || doc.DeletedAt != nil {
			continue
		}
		for _, chunk := range chunks {
			content := strings.ToLower(chunk.Content)
			hits := 0
			for _, kw := range keywords {
				if strings.Contains(content, strings.ToLower(kw)) {
					hits++
				}
			}
			if hits > 0 {
				matches = append(matches, scored{chunk: chunk, hits: hits})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].hits != matches[j].hits {
			return matches[i].hits > matches[j].hits
		}
		if matches[i].chunk.DocumentID != matches[j].chunk.DocumentID {
			return matches[i].chunk.DocumentID < matches[j].chunk.DocumentID
		}
		return matches[i].chunk.Index < matches[j].chunk.Index
	})

	out := make([]ingest.DocumentChunk, 0, len(matches))
	for _, m := range matches {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.chunk)
	}
	return out, nil
}

// OrganizationProfile implements ingest.DocumentStore.
func (s *DocumentStore) OrganizationProfile(_ context.Context, organizationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[organizationID]
	if !ok || profile == "" {
		return "", ingest.ErrNotFound
	}
	return profile, nil
}
