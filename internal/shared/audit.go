package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ID          string
	ActorID     string
	ActorName   string
	Action      string
	Entity      string
	EntityID    string
	Meta        map[string]any
	Fingerprint string
	At          time.Time
}

// AuditLogger writes records into audit_logs. Rows are append-only.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry. Replaying an entry with a known id is a no-op.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.ID == "" || log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires id/action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (id, actor_id, actor_name, action, entity, entity_id, meta, fingerprint, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
ON CONFLICT (id) DO NOTHING`,
		log.ID, log.ActorID, log.ActorName, log.Action, log.Entity, log.EntityID, metaJSON, log.Fingerprint, at)
	return err
}
