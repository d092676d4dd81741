package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs. ActorID is nil for
// system-originated actions such as gateway callbacks.
type AuditLog struct {
	ActorID  *int64
	Action   string
	Entity   string
	EntityID *int64
	Details  string
	IP       string
	At       time.Time
}

// AuditLogger appends records to audit_logs. The table is append-only; no
// update or delete path exists anywhere in the codebase.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry. Callers must propagate a failure instead of
// proceeding as if the action had been audited.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" {
		return errors.New("audit log requires action and entity")
	}
	at := log.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_logs (user_id, action, entity, entity_id, details, ip_address, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ActorID, log.Action, log.Entity, log.EntityID, log.Details, log.IP, at)
	return err
}
