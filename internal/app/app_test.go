package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/floorflow/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, AuditModeSync, cfg.AuditMode)
	require.Equal(t, 10*time.Second, cfg.LockTTL)
	require.Equal(t, 1_000_000, cfg.MaxPlannedQuantity)
	require.True(t, cfg.OrderSyncEnabled)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsUnknownAuditMode(t *testing.T) {
	t.Setenv("AUDIT_MODE", "carrier-pigeon")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "audit mode")

	t.Setenv("AUDIT_MODE", AuditModeQueue)
	t.Setenv("MAX_PLANNED_QUANTITY", "0")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "max planned quantity")
}

func TestActorMiddleware(t *testing.T) {
	var gotID, gotName string
	h := ActorMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotName = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/articles", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/articles", nil)
	req.Header.Set(HeaderActorID, "op-3")
	req.Header.Set(HeaderActorName, "Rina")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "op-3", gotID)
	require.Equal(t, "Rina", gotName)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles/x", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthzReportsDependencies(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/healthz", healthHandler(nil, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"degraded","dependencies":{"postgres":"ok","redis":"down"}}`, rec.Body.String())
}

func TestConfigTestModeFlag(t *testing.T) {
	t.Setenv("FLOORFLOW_TEST_MODE", "1")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.TestMode)

	t.Setenv("FLOORFLOW_TEST_MODE", "0")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	require.False(t, cfg.TestMode)
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn", AppEnv: "staging"})
	logger.Info("dropped")
	logger.Warn("kept", slog.String("article_id", "a-1"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["msg"])
	require.Equal(t, "floorflow", line["app"])
	require.Equal(t, "staging", line["env"])
	require.Equal(t, "a-1", line["article_id"])
}
