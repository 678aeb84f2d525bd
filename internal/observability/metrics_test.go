package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("progress_reconcile").End(nil)
	_ = metrics.Jobs().Track("progress_reconcile").End(errors.New("boom"))

	body := scrape(t, metrics)
	if !strings.Contains(body, `floorflow_jobs_total{job="progress_reconcile",status="success"} 1`) {
		t.Fatalf("expected body to contain floorflow_jobs_total, got: %s", body)
	}
	if !strings.Contains(body, `floorflow_jobs_failures_total{job="progress_reconcile"} 1`) {
		t.Fatalf("expected failure counter, got: %s", body)
	}
}

func TestMetricsRecordsArticleEvents(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveMutation("transfer", "ok")
	metrics.ObserveMutation("transfer", "ok")
	metrics.ObserveMutation("transfer", "insufficient_quantity")
	metrics.ObserveAuditFailure("transferred")
	metrics.ObserveFloorAdvance("Linking")

	body := scrape(t, metrics)
	for _, want := range []string{
		`floorflow_article_mutations_total{operation="transfer",result="ok"} 2`,
		`floorflow_article_mutations_total{operation="transfer",result="insufficient_quantity"} 1`,
		`floorflow_audit_failures_total{action="transferred"} 1`,
		`floorflow_floor_advances_total{floor="Linking"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveMutation("create", "ok")
	metrics.ObserveAuditFailure("article_created")
	metrics.ObserveFloorAdvance("Checking")
	if metrics.Jobs() != nil {
		t.Fatal("expected nil job metrics")
	}
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}
