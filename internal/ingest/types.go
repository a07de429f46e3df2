// Package ingest defines core types shared across subsystems.
package ingest

import (
	"net/http"
	"time"
)

// QueueStatus represents the lifecycle state of a crawl queue entry.
type QueueStatus string

// Queue entry states persisted in the crawl store. Terminal states are
// retained for audit and are never hard-deleted.
const (
	QueueStatusQueued   QueueStatus = "queued"
	QueueStatusFetching QueueStatus = "fetching"
	QueueStatusDone     QueueStatus = "done"
	QueueStatusFailed   QueueStatus = "failed"
)

// CrawlQueueEntry is a persisted unit of crawl work, unique per
// (organization, URL).
type CrawlQueueEntry struct {
	ID             int64       `json:"id"`
	OrganizationID string      `json:"organization_id"`
	URL            string      `json:"url"`
	Domain         string      `json:"domain"`
	Priority       int         `json:"priority"`
	Status         QueueStatus `json:"status"`
	Attempts       int         `json:"attempts"`
	LastError      string      `json:"last_error,omitempty"`
	EnqueuedAt     time.Time   `json:"enqueued_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Page is the extracted content persisted for a fetched URL. The body columns
// are replaced only when HTMLHash changes; an unchanged hash refreshes just
// FetchedAt and ETag.
type Page struct {
	OrganizationID string    `json:"organization_id"`
	URL            string    `json:"url"`
	Domain         string    `json:"domain"`
	Title          string    `json:"title"`
	Text           string    `json:"text"`
	HTMLHash       string    `json:"html_hash"`
	ETag           string    `json:"etag,omitempty"`
	ContentType    string    `json:"content_type"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// JobStatus represents the lifecycle state of an ingest job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// CrawlStats tracks per-run counters recorded on the ingest job.
type CrawlStats struct {
	Seeded          int `json:"seeded"`
	PagesFetched    int `json:"pages_fetched"`
	PagesUnchanged  int `json:"pages_unchanged"`
	PagesFailed     int `json:"pages_failed"`
	LinksDiscovered int `json:"links_discovered"`
}

// IngestJob records one crawl invocation for observability. Rows are
// append-only except for the terminal update.
type IngestJob struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Domain         string     `json:"domain"`
	Status         JobStatus  `json:"status"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	ErrorText      string     `json:"error_text,omitempty"`
	Stats          CrawlStats `json:"stats"`
}

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus string

// Document processing states.
const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is the metadata row for an uploaded file.
type Document struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	FilePath       string         `json:"file_path"`
	ContentType    string         `json:"content_type"`
	Status         DocumentStatus `json:"processing_status"`
	TotalChunks    int            `json:"total_chunks"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
	ErrorText      string         `json:"error_text,omitempty"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// DocumentChunk is a bounded-length substring of a document's extracted text.
// Indexes are contiguous starting at 0 within a document.
type DocumentChunk struct {
	DocumentID  string `json:"document_id"`
	Index       int    `json:"chunk_index"`
	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`
}

// PipelineStage names one step of the document processing pipeline.
type PipelineStage string

// Pipeline stages, in execution order.
const (
	StageValidation   PipelineStage = "validation"
	StageExtraction   PipelineStage = "extraction"
	StageChunking     PipelineStage = "chunking"
	StagePersistence  PipelineStage = "persistence"
	StageFinalization PipelineStage = "finalization"
)

// StageStatus is the outcome recorded for a pipeline stage.
type StageStatus string

// Stage outcomes appended to the pipeline status log.
const (
	StageStatusStarted   StageStatus = "started"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// StageEvent is one append-only row in the pipeline status log.
type StageEvent struct {
	DocumentID string        `json:"document_id"`
	Stage      PipelineStage `json:"stage"`
	Status     StageStatus   `json:"status"`
	Detail     string        `json:"detail,omitempty"`
	At         time.Time     `json:"created_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	OrganizationID string
	URL            string
	ETag           string
	Headers        http.Header
	UseHeadless    bool
}

// FetchResult is returned by a Fetcher implementation. NotModified is set
// when the server answered 304 to a conditional request; in that case no
// body or extraction fields are populated.
type FetchResult struct {
	URL          string
	StatusCode   int
	ContentType  string
	ETag         string
	Headers      http.Header
	Body         []byte
	NotModified  bool
	Duration     time.Duration
	UsedHeadless bool
}

// RunKind distinguishes the two ingest run types handled by workers.
type RunKind string

// Run kinds.
const (
	RunKindCrawl    RunKind = "crawl"
	RunKindDocument RunKind = "document"
)

// RunRequest wraps a unit of work ready for a worker.
type RunRequest struct {
	JobID          string
	Kind           RunKind
	OrganizationID string
	Domain         string
	Priority       int
	DocumentID     string
	Submitted      int64
}

// Feedback is one recorded accept/reject decision on generated text.
type Feedback struct {
	OrganizationID string    `json:"organization_id"`
	Text           string    `json:"text"`
	Accepted       bool      `json:"accepted"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditEntry is one append-only row in the audit trail.
type AuditEntry struct {
	OrganizationID string    `json:"organization_id"`
	Actor          string    `json:"actor"`
	Action         string    `json:"action"`
	Detail         string    `json:"detail,omitempty"`
	At             time.Time `json:"created_at"`
}
