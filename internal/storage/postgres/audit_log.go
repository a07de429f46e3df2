package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/maturion/ingest/internal/ingest"
)

// AuditLog implements ingest.AuditLog on the append-only audit_trail table.
type AuditLog struct {
	pool Pool
}

// NewAuditLog constructs an AuditLog.
func NewAuditLog(pool Pool) (*AuditLog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &AuditLog{pool: pool}, nil
}

const recordAuditSQL = `
INSERT INTO audit_trail (organization_id, actor, action, detail, created_at)
VALUES ($1, $2, $3, $4, $5)`

// Record implements ingest.AuditLog.
func (l *AuditLog) Record(ctx context.Context, entry ingest.AuditEntry) error {
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := l.pool.Exec(ctx, recordAuditSQL,
		entry.OrganizationID, entry.Actor, entry.Action, entry.Detail, at); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}
