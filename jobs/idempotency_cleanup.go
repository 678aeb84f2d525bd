package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/floorflow/internal/jobs"
)

const defaultIdempotencyRetention = 7 * 24 * time.Hour

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob purges expired article creation keys.
type IdempotencyCleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = defaultIdempotencyRetention
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	if err := j.Store.Cleanup(ctx, payload.Retention); err != nil {
		logger(j.Logger, TaskIdempotencyCleanup).Error("cleanup idempotency keys", slog.Any("error", err))
		return err
	}
	return nil
}
