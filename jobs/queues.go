package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/floorflow/internal/production"
)

// Enqueuer is the subset of the Asynq client used by the queue adapters.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditQueue implements production.AuditSink by handing records to the worker.
type AuditQueue struct {
	enqueuer Enqueuer
}

// NewAuditQueue constructs AuditQueue.
func NewAuditQueue(enqueuer Enqueuer) *AuditQueue {
	return &AuditQueue{enqueuer: enqueuer}
}

// Append enqueues the record. A record already queued counts as accepted.
func (q *AuditQueue) Append(ctx context.Context, record production.AuditRecord) error {
	if q == nil || q.enqueuer == nil {
		return errors.New("jobs: audit queue not configured")
	}
	task, err := NewAuditAppendTask(record)
	if err != nil {
		return err
	}
	if _, err := q.enqueuer.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	return nil
}

// FloorSyncQueue implements production.FloorAdvanceHook asynchronously.
type FloorSyncQueue struct {
	enqueuer Enqueuer
}

// NewFloorSyncQueue constructs FloorSyncQueue.
func NewFloorSyncQueue(enqueuer Enqueuer) *FloorSyncQueue {
	return &FloorSyncQueue{enqueuer: enqueuer}
}

// OnFloorAdvanced enqueues the order floor update.
func (q *FloorSyncQueue) OnFloorAdvanced(ctx context.Context, evt production.FloorAdvancedEvent) error {
	if q == nil || q.enqueuer == nil {
		return errors.New("jobs: floor sync queue not configured")
	}
	task, err := NewOrderFloorSyncTask(evt)
	if err != nil {
		return err
	}
	_, err = q.enqueuer.EnqueueContext(ctx, task)
	return err
}

// AuditAppendJob stores queued audit records through a synchronous sink.
type AuditAppendJob struct {
	Sink   production.AuditSink
	Logger *slog.Logger
}

// Handle processes TaskAuditAppend tasks.
func (j *AuditAppendJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sink == nil {
		return errors.New("audit append: handler not configured")
	}
	var record production.AuditRecord
	if err := json.Unmarshal(t.Payload(), &record); err != nil {
		return asynq.SkipRetry
	}
	if !record.Verify() {
		logger(j.Logger, TaskAuditAppend).Error("audit record fingerprint mismatch",
			slog.String("record_id", record.ID),
			slog.String("article_id", record.ArticleID))
		return asynq.SkipRetry
	}
	return j.Sink.Append(ctx, record)
}

// OrderFloorSyncJob applies queued floor advances to the order read model.
type OrderFloorSyncJob struct {
	Hook   production.FloorAdvanceHook
	Logger *slog.Logger
}

// Handle processes TaskOrderFloorSync tasks.
func (j *OrderFloorSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Hook == nil {
		return errors.New("order floor sync: handler not configured")
	}
	var evt production.FloorAdvancedEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	if evt.OrderID == "" || evt.ArticleID == "" {
		logger(j.Logger, TaskOrderFloorSync).Warn("floor event without order or article", slog.String("article_id", evt.ArticleID))
		return asynq.SkipRetry
	}
	return j.Hook.OnFloorAdvanced(ctx, evt)
}

func logger(base *slog.Logger, job string) *slog.Logger {
	if base != nil {
		return base.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}
