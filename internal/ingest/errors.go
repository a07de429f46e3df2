package ingest

import "errors"

// Sentinel errors shared by store implementations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrQueueEmpty indicates no claimable crawl queue entry.
	ErrQueueEmpty = errors.New("crawl queue empty")
	// ErrQueueClosed indicates the run queue has shut down.
	ErrQueueClosed = errors.New("queue closed")
	// ErrUnsupportedContent indicates a content type the pipeline rejects.
	ErrUnsupportedContent = errors.New("unsupported content type")
)
