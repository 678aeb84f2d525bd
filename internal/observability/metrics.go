package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/odyssey-erp/floorflow/internal/jobs"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
	floorAdvances   *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry, metrik HTTP, metrik produksi, dan metrik job.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "floorflow_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "floorflow_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "floorflow_article_mutations_total",
		Help: "Jumlah operasi artikel berdasarkan operasi dan hasil.",
	}, []string{"operation", "result"})
	auditFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "floorflow_audit_failures_total",
		Help: "Catatan audit yang gagal ditulis setelah mutasi tersimpan.",
	}, []string{"action"})
	advances := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "floorflow_floor_advances_total",
		Help: "Perpindahan artikel ke lantai berikutnya per lantai tujuan.",
	}, []string{"floor"})
	registry.MustRegister(requests, duration, mutations, auditFailures, advances)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		mutations:       mutations,
		auditFailures:   auditFailures,
		floorAdvances:   advances,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveMutation mencatat hasil satu operasi artikel.
func (m *Metrics) ObserveMutation(operation, result string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(operation, result).Inc()
}

// ObserveAuditFailure mencatat catatan audit yang gagal.
func (m *Metrics) ObserveAuditFailure(action string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(action).Inc()
}

// ObserveFloorAdvance mencatat artikel yang pindah ke lantai berikutnya.
func (m *Metrics) ObserveFloorAdvance(floor string) {
	if m == nil {
		return
	}
	m.floorAdvances.WithLabelValues(floor).Inc()
}

// Jobs mengembalikan metrik job yang terdaftar di registry yang sama.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
