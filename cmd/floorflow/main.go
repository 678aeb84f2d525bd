package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/floorflow/internal/app"
	"github.com/odyssey-erp/floorflow/internal/observability"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	jobClient, err := jobs.NewClient(cache.AsynqOpts(cfg.RedisAddr))
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var auditSink production.AuditSink = production.NewLogSink(shared.NewAuditLogger(dbpool))
	if cfg.AuditMode == app.AuditModeQueue {
		auditSink = jobs.NewAuditQueue(jobClient)
	}
	var floorHook production.FloorAdvanceHook
	if cfg.OrderSyncEnabled {
		floorHook = jobs.NewFloorSyncQueue(jobClient)
	}

	service := production.NewService(production.ServiceDeps{
		Repository: production.NewRepository(dbpool),
		Engine:     production.NewEngine(production.EngineConfig{MaxPlannedQuantity: cfg.MaxPlannedQuantity}),
		Locker: shared.NewLocker(redisClient, shared.LockerConfig{
			TTL:           cfg.LockTTL,
			RetryAttempts: cfg.LockRetry,
		}),
		Audit:       auditSink,
		FloorHook:   floorHook,
		Idempotency: shared.NewIdempotencyStore(dbpool),
		Metrics:     metrics,
		Logger:      logger,
	})

	inspector := asynq.NewInspector(cache.AsynqOpts(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		ArticleHandler: production.NewHandler(logger, service),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": db.Check(dbpool),
			"redis":    cache.Check(redisClient),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("audit_mode", cfg.AuditMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
