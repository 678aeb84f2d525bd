package production

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
	"github.com/odyssey-erp/floorflow/internal/shared"
)

// AuditAction enumerates the mutation kinds recorded for an article.
type AuditAction string

const (
	ActionArticleCreated    AuditAction = "article_created"
	ActionCompletedRecorded AuditAction = "completed_recorded"
	ActionTransferred       AuditAction = "transferred"
	ActionBackfilled        AuditAction = "backfill_transferred"
	ActionQualityUpdated    AuditAction = "quality_updated"
	ActionGradeShifted      AuditAction = "m2_shifted"
	ActionQualityConfirmed  AuditAction = "quality_confirmed"
	ActionQualityReopened   AuditAction = "quality_reopened"
)

// AuditRecord is one immutable entry describing a committed mutation.
type AuditRecord struct {
	ID          string         `json:"id"`
	ArticleID   string         `json:"articleId"`
	OrderID     string         `json:"orderId"`
	Action      AuditAction    `json:"action"`
	Floor       floors.Floor   `json:"floor"`
	ToFloor     floors.Floor   `json:"toFloor,omitempty"`
	Delta       int            `json:"delta"`
	Previous    map[string]any `json:"previous,omitempty"`
	Current     map[string]any `json:"current,omitempty"`
	Remarks     string         `json:"remarks,omitempty"`
	ActorID     string         `json:"actorId"`
	ActorName   string         `json:"actorName,omitempty"`
	At          time.Time      `json:"at"`
	Fingerprint string         `json:"fingerprint"`
}

// Seal computes the content fingerprint so tampering with a stored entry is detectable.
func (r *AuditRecord) Seal() error {
	r.Fingerprint = ""
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	sum := blake2b.Sum256(raw)
	r.Fingerprint = hex.EncodeToString(sum[:])
	return nil
}

// Verify reports whether the fingerprint still matches the content.
func (r AuditRecord) Verify() bool {
	want := r.Fingerprint
	if want == "" {
		return false
	}
	if err := r.Seal(); err != nil {
		return false
	}
	return r.Fingerprint == want
}

// AuditSink appends audit records. Implementations are best-effort from the
// caller's perspective.
type AuditSink interface {
	Append(ctx context.Context, record AuditRecord) error
}

// AuditOutcome reports how the audit request of a committed mutation went.
// A failed outcome never invalidates the mutation.
type AuditOutcome struct {
	Recorded int    `json:"recorded"`
	Failed   int    `json:"failed"`
	Reason   string `json:"reason,omitempty"`
}

// OK reports whether every record was accepted by the sink.
func (o AuditOutcome) OK() bool {
	return o.Failed == 0
}

func ledgerSnapshot(l FloorLedger) map[string]any {
	snap := map[string]any{
		"received":    l.Received,
		"completed":   l.Completed,
		"remaining":   l.Remaining,
		"transferred": l.Transferred,
	}
	if l.Quality != nil {
		snap["m1"] = l.Quality.M1
		snap["m2"] = l.Quality.M2
		snap["m3"] = l.Quality.M3
		snap["m4"] = l.Quality.M4
		snap["repairStatus"] = string(l.Quality.RepairStatus)
	}
	return snap
}

// AuditPort abstracts the append-only audit log writer.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LogSink stores audit records through the shared audit log writer.
type LogSink struct {
	writer AuditPort
}

// NewLogSink builds a LogSink.
func NewLogSink(writer AuditPort) *LogSink {
	return &LogSink{writer: writer}
}

// Append implements AuditSink.
func (s *LogSink) Append(ctx context.Context, record AuditRecord) error {
	if s == nil || s.writer == nil {
		return errors.New("production: audit writer not configured")
	}
	meta := map[string]any{
		"order_id": record.OrderID,
		"floor":    string(record.Floor),
		"delta":    record.Delta,
	}
	if record.ToFloor != "" {
		meta["to_floor"] = string(record.ToFloor)
	}
	if record.Previous != nil {
		meta["previous"] = record.Previous
	}
	if record.Current != nil {
		meta["current"] = record.Current
	}
	if record.Remarks != "" {
		meta["remarks"] = record.Remarks
	}
	return s.writer.Record(ctx, shared.AuditLog{
		ID:          record.ID,
		ActorID:     record.ActorID,
		ActorName:   record.ActorName,
		Action:      fmt.Sprintf("production:%s", record.Action),
		Entity:      "production_article",
		EntityID:    record.ArticleID,
		Meta:        meta,
		Fingerprint: record.Fingerprint,
		At:          record.At,
	})
}
