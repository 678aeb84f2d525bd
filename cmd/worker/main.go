package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/floorflow/internal/app"
	jobmetrics "github.com/odyssey-erp/floorflow/internal/jobs"
	"github.com/odyssey-erp/floorflow/internal/platform/cache"
	"github.com/odyssey-erp/floorflow/internal/platform/db"
	"github.com/odyssey-erp/floorflow/internal/production"
	"github.com/odyssey-erp/floorflow/internal/shared"
	"github.com/odyssey-erp/floorflow/jobs"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.TestMode {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	// Reconcile writes go through the same locked service path as the API.
	service := production.NewService(production.ServiceDeps{
		Repository: production.NewRepository(pool),
		Engine:     production.NewEngine(production.EngineConfig{MaxPlannedQuantity: cfg.MaxPlannedQuantity}),
		Locker: shared.NewLocker(redisClient, shared.LockerConfig{
			TTL:           cfg.LockTTL,
			RetryAttempts: cfg.LockRetry,
		}),
		Idempotency: idempotencyStore,
		Logger:      logger,
	})

	auditJob := &jobs.AuditAppendJob{Sink: production.NewLogSink(shared.NewAuditLogger(pool)), Logger: logger}
	floorSyncJob := &jobs.OrderFloorSyncJob{Hook: production.NewOrderFloorSync(pool), Logger: logger}
	reconcileJob := jobs.NewProgressReconcileJob(service, logger, metrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{Store: idempotencyStore, Logger: logger, Metrics: metrics}

	reconcileTask, err := jobs.NewProgressReconcileTask(200)
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cache.AsynqOpts(cfg.RedisAddr),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditAppend, Handler: auditJob.Handle},
			{Type: jobs.TaskOrderFloorSync, Handler: floorSyncJob.Handle},
			{Type: jobs.TaskProgressReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
