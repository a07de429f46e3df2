// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maturion/ingest/internal/ingest"
)

// CrawlStore is an in-memory implementation of ingest.CrawlStore. The claim
// path mirrors the Postgres store's atomic claim under a single mutex.
type CrawlStore struct {
	mu          sync.Mutex
	maxAttempts int
	nextID      int64
	entries     map[int64]*ingest.CrawlQueueEntry
	byURL       map[string]int64
	pages       map[string]ingest.Page
}

// NewCrawlStore constructs a CrawlStore. maxAttempts bounds per-entry fetch
// retries before the entry goes terminal.
func NewCrawlStore(maxAttempts int) *CrawlStore {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &CrawlStore{
		maxAttempts: maxAttempts,
		entries:     make(map[int64]*ingest.CrawlQueueEntry),
		byURL:       make(map[string]int64),
		pages:       make(map[string]ingest.Page),
	}
}

func queueKey(organizationID, url string) string {
	return organizationID + "|" + url
}

// Enqueue implements ingest.CrawlStore, ignoring conflicts on (org, url).
func (s *CrawlStore) Enqueue(_ context.Context, entry ingest.CrawlQueueEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := queueKey(entry.OrganizationID, entry.URL)
	if _, exists := s.byURL[key]; exists {
		return false, nil
	}
	s.nextID++
	entry.ID = s.nextID
	entry.Status = ingest.QueueStatusQueued
	s.entries[entry.ID] = &entry
	s.byURL[key] = entry.ID
	return true, nil
}

// ClaimNext implements ingest.CrawlStore. The highest-priority queued entry
// (oldest ID on ties) transitions to fetching and is returned.
func (s *CrawlStore) ClaimNext(_ context.Context, organizationID string) (ingest.CrawlQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *ingest.CrawlQueueEntry
	for _, e := range s.entries {
		if e.OrganizationID != organizationID || e.Status != ingest.QueueStatusQueued {
			continue
		}
		if best == nil || e.Priority > best.Priority || (e.Priority == best.Priority && e.ID < best.ID) {
			best = e
		}
	}
	if best == nil {
		return ingest.CrawlQueueEntry{}, ingest.ErrQueueEmpty
	}
	best.Status = ingest.QueueStatusFetching
	best.UpdatedAt = time.Now().UTC()
	return *best, nil
}

// MarkDone implements ingest.CrawlStore.
func (s *CrawlStore) MarkDone(_ context.Context, entryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return ingest.ErrNotFound
	}
	e.Status = ingest.QueueStatusDone
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed implements ingest.CrawlStore. The entry requeues until its
// attempt count reaches the store's limit, then goes terminal.
func (s *CrawlStore) MarkFailed(_ context.Context, entryID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return ingest.ErrNotFound
	}
	e.Attempts++
	e.LastError = reason
	if e.Attempts >= s.maxAttempts {
		e.Status = ingest.QueueStatusFailed
	} else {
		e.Status = ingest.QueueStatusQueued
	}
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// UpsertPage implements ingest.CrawlStore. A matching html_hash refreshes
// fetched_at/etag only and reports changed=false.
func (s *CrawlStore) UpsertPage(_ context.Context, page ingest.Page) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := queueKey(page.OrganizationID, page.URL)
	if prior, ok := s.pages[key]; ok && prior.HTMLHash == page.HTMLHash {
		prior.FetchedAt = page.FetchedAt
		prior.ETag = page.ETag
		s.pages[key] = prior
		return false, nil
	}
	s.pages[key] = page
	return true, nil
}

// GetPage implements ingest.CrawlStore.
func (s *CrawlStore) GetPage(_ context.Context, organizationID, url string) (ingest.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[queueKey(organizationID, url)]
	if !ok {
		return ingest.Page{}, ingest.ErrNotFound
	}
	return page, nil
}

// TouchPage implements ingest.CrawlStore.
func (s *CrawlStore) TouchPage(_ context.Context, organizationID, url, etag string, fetchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := queueKey(organizationID, url)
	page, ok := s.pages[key]
	if !ok {
		return ingest.ErrNotFound
	}
	page.ETag = etag
	page.FetchedAt = fetchedAt
	s.pages[key] = page
	return nil
}

// SearchPages implements ingest.CrawlStore with case-insensitive substring
// matching, most keyword hits first.
func (s *CrawlStore) SearchPages(_ context.Context, organizationID string, keywords []string, limit int) ([]ingest.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		page ingest.Page
		hits int
	}
	var matches []scored
	for _, page := range s.pages {
		if page.OrganizationID != organizationID {
			continue
		}
		text := strings.ToLower(page.Text)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > 0 {
			matches = append(matches, scored{page: page, hits: hits})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].hits != matches[j].hits {
			return matches[i].hits > matches[j].hits
		}
		return matches[i].page.URL < matches[j].page.URL
	})

	out := make([]ingest.Page, 0, len(matches))
	for _, m := range matches {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.page)
	}
	return out, nil
}

// QueueStats implements ingest.CrawlStore.
func (s *CrawlStore) QueueStats(_ context.Context, organizationID string) (map[ingest.QueueStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[ingest.QueueStatus]int)
	for _, e := range s.entries {
		if e.OrganizationID == organizationID {
			out[e.Status]++
		}
	}
	return out, nil
}
