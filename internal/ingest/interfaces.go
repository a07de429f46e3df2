package ingest

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResult, error)
}

// HeadlessDetector decides whether a headless render is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResult) bool
}

// CrawlStore persists the crawl queue and page rows.
type CrawlStore interface {
	// Enqueue inserts a queue entry, ignoring the conflict on
	// (organization_id, url). It reports whether a row was inserted.
	Enqueue(ctx context.Context, entry CrawlQueueEntry) (bool, error)

	// ClaimNext atomically transitions the highest-priority queued entry for
	// the organization to fetching and returns it. ErrQueueEmpty when no
	// entry is claimable.
	ClaimNext(ctx context.Context, organizationID string) (CrawlQueueEntry, error)

	MarkDone(ctx context.Context, entryID int64) error
	// MarkFailed records the failure reason and increments attempts.
	MarkFailed(ctx context.Context, entryID int64, reason string) error

	// UpsertPage writes the page keyed by (organization_id, url). When the
	// stored html_hash matches, only fetched_at and etag are refreshed and
	// changed is false.
	UpsertPage(ctx context.Context, page Page) (changed bool, err error)
	GetPage(ctx context.Context, organizationID, url string) (Page, error)
	// TouchPage refreshes fetched_at/etag after a 304 without rewriting content.
	TouchPage(ctx context.Context, organizationID, url, etag string, fetchedAt time.Time) error

	// SearchPages returns pages for the organization whose text matches any
	// of the keywords.
	SearchPages(ctx context.Context, organizationID string, keywords []string, limit int) ([]Page, error)

	QueueStats(ctx context.Context, organizationID string) (map[QueueStatus]int, error)
}

// JobStore persists ingest job rows.
type JobStore interface {
	CreateJob(ctx context.Context, job IngestJob) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, stats CrawlStats) error
	GetJob(ctx context.Context, jobID string) (IngestJob, error)
}

// DocumentStore persists documents, their chunks, and the stage log.
type DocumentStore interface {
	GetDocument(ctx context.Context, documentID string) (Document, error)
	SetDocumentStatus(ctx context.Context, documentID string, status DocumentStatus, errText string) error
	// ReplaceChunks deletes any existing chunks for the document and bulk
	// inserts the provided batch.
	ReplaceChunks(ctx context.Context, documentID string, chunks []DocumentChunk) error
	// FinalizeDocument flips the document to completed and records the chunk
	// count and completion time.
	FinalizeDocument(ctx context.Context, documentID string, totalChunks int, processedAt time.Time) error

	LogStage(ctx context.Context, event StageEvent) error
	ListStages(ctx context.Context, documentID string) ([]StageEvent, error)

	// SearchChunks returns chunks for the organization whose content matches
	// any of the keywords, best matches first.
	SearchChunks(ctx context.Context, organizationID string, keywords []string, limit int) ([]DocumentChunk, error)
	// OrganizationProfile returns the free-text profile for the organization,
	// or ErrNotFound.
	OrganizationProfile(ctx context.Context, organizationID string) (string, error)
}

// FeedbackStore persists accept/reject feedback for the pattern learner.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb Feedback) error
	ListRejected(ctx context.Context, organizationID string, limit int) ([]Feedback, error)
}

// AuditLog appends entries to the audit trail.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// BlobStore reads and writes raw artifacts addressed by path.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher pushes completion events to a topic (webhook, Pub/Sub, or memory).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for ingest runs.
type Queue interface {
	Enqueue(ctx context.Context, run RunRequest) error
	Dequeue(ctx context.Context) (RunRequest, error)
}

// Limiter throttles outbound fetches per domain.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// RobotsPolicy answers whether a URL may be fetched under robots.txt.
type RobotsPolicy interface {
	Allowed(ctx context.Context, url string) bool
}

// Hasher computes digests for change detection and dedup.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Scorer rates a candidate phrase against learned rejection patterns. It is
// an interface so the frequency heuristic can later be swapped for a real
// model without touching callers.
type Scorer interface {
	Score(candidate string) float64
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and document IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
