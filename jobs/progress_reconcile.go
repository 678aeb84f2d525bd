package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/floorflow/internal/jobs"
	"github.com/odyssey-erp/floorflow/internal/production"
	"github.com/odyssey-erp/floorflow/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	defaultReconcileBatch       = 200
	defaultReconcileConcurrency = 4
)

// ProgressReconciler is the part of production.Service the reconcile job drives.
type ProgressReconciler interface {
	ListActive(ctx context.Context, afterID string, limit int) ([]production.Article, error)
	RecomputeProgress(ctx context.Context, id string) (bool, error)
}

// ProgressReconcileJob rewrites cached article progress that drifted from the ledgers.
type ProgressReconcileJob struct {
	Service     ProgressReconciler
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewProgressReconcileJob wires dependencies for the reconcile handler.
func NewProgressReconcileJob(svc ProgressReconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProgressReconcileJob {
	return &ProgressReconcileJob{Service: svc, Logger: logger, Metrics: metrics, Concurrency: defaultReconcileConcurrency}
}

// ReconcileStats summarises one run.
type ReconcileStats struct {
	Scanned   int
	Corrected int
	Skipped   int
	Failed    int
}

// Handle processes TaskProgressReconcile tasks.
func (j *ProgressReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("progress reconcile: handler not configured")
	}
	var payload ProgressReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.BatchSize)
	return err
}

// Run walks every active article once.
func (j *ProgressReconcileJob) Run(ctx context.Context, batchSize int) (stats ReconcileStats, err error) {
	if batchSize <= 0 {
		batchSize = defaultReconcileBatch
	}
	tracker := j.metrics().Track(TaskProgressReconcile)
	defer func() {
		err = tracker.End(err)
	}()

	log := logger(j.Logger, TaskProgressReconcile)
	start := time.Now()
	after := ""
	for {
		page, err := j.Service.ListActive(ctx, after, batchSize)
		if err != nil {
			log.Error("list active articles", slog.Any("error", err))
			return stats, err
		}
		if len(page) == 0 {
			break
		}
		pageStats := j.reconcilePage(ctx, page)
		stats.Scanned += len(page)
		stats.Corrected += pageStats.Corrected
		stats.Skipped += pageStats.Skipped
		stats.Failed += pageStats.Failed
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if len(page) < batchSize {
			break
		}
		after = page[len(page)-1].ID
	}

	j.metrics().AddCorrections(TaskProgressReconcile, stats.Corrected)
	log.Info("progress reconcile finished",
		slog.Int("scanned", stats.Scanned),
		slog.Int("corrected", stats.Corrected),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", time.Since(start)))
	if stats.Failed > 0 {
		return stats, fmt.Errorf("progress reconcile: %d of %d articles failed", stats.Failed, stats.Scanned)
	}
	return stats, nil
}

func (j *ProgressReconcileJob) reconcilePage(ctx context.Context, page []production.Article) ReconcileStats {
	var corrected, skipped, failed atomic.Int64
	limit := j.Concurrency
	if limit <= 0 {
		limit = defaultReconcileConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, a := range page {
		id := a.ID
		g.Go(func() error {
			changed, err := j.Service.RecomputeProgress(gctx, id)
			switch {
			case errors.Is(err, shared.ErrLocked), errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrNotFound):
				// A writer is active or the article went away; the next run picks it up.
				skipped.Add(1)
			case err != nil:
				failed.Add(1)
				logger(j.Logger, TaskProgressReconcile).Warn("progress reconcile failed", slog.String("article_id", id), slog.Any("error", err))
			case changed:
				corrected.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return ReconcileStats{Corrected: int(corrected.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
}

func (j *ProgressReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
