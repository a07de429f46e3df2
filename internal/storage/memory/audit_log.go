package memory

import (
	"context"
	"sync"

	"github.com/maturion/ingest/internal/ingest"
)

// AuditLog is an in-memory, append-only implementation of ingest.AuditLog.
type AuditLog struct {
	mu      sync.RWMutex
	entries []ingest.AuditEntry
}

// NewAuditLog constructs an AuditLog.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Record implements ingest.AuditLog.
func (l *AuditLog) Record(_ context.Context, entry ingest.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries, in append order.
func (l *AuditLog) Entries() []ingest.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ingest.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
