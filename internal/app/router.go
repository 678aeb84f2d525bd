package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/floorflow/internal/observability"
	"github.com/odyssey-erp/floorflow/internal/platform/httpx"
	"github.com/odyssey-erp/floorflow/internal/production"
	"github.com/odyssey-erp/floorflow/jobs"
)

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	ArticleHandler *production.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	HealthChecks   map[string]HealthCheck
}

// NewRouter constructs the chi.Router with floorflow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.Logger, params.HealthChecks))

	if params.ArticleHandler != nil {
		r.Route("/articles", params.ArticleHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func healthHandler(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				if logger != nil {
					logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
				}
				report[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httpx.JSON(w, status, map[string]any{"status": overall, "dependencies": report})
	}
}
