package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Gatekeeper pipeline outcomes, labelled by the stage that rejected.
	gateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_rejections_total",
			Help: "Requests rejected by the admission pipeline, by stage.",
		},
		[]string{"stage"},
	)

	idempotencyReplaysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_replays_total",
		Help: "Mutations answered from the idempotency cache.",
	})

	rateLimitFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_fallbacks_total",
		Help: "Rate-limit decisions taken by the local fallback because the distributed store was unreachable.",
	})

	tenantStatusUnknownTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenant_status_unknown_total",
		Help: "Requests admitted in degraded mode because the tenant status could not be determined.",
	})
)

// Init registers metrics in the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		gateRejectionsTotal,
		idempotencyReplaysTotal,
		rateLimitFallbacksTotal,
		tenantStatusUnknownTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GateRejection records a pipeline rejection for the given stage
// (rate_limit, csrf, lifecycle, role).
func GateRejection(stage string) {
	gateRejectionsTotal.WithLabelValues(stage).Inc()
}

// IdempotencyReplay records a cached-response replay.
func IdempotencyReplay() {
	idempotencyReplaysTotal.Inc()
}

// RateLimitFallback records a fall back to the in-process limiter.
func RateLimitFallback() {
	rateLimitFallbacksTotal.Inc()
}

// TenantStatusUnknown records a degraded-mode admission.
func TenantStatusUnknown() {
	tenantStatusUnknownTotal.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	switch {
	case strings.HasPrefix(path, "/api/purchase-orders/"):
		rest := strings.TrimPrefix(path, "/api/purchase-orders/")
		if strings.HasSuffix(rest, "/mark-paid") {
			return "/api/purchase-orders/:id/mark-paid"
		}
		if rest != "" && !strings.Contains(rest, "/") {
			return "/api/purchase-orders/:id"
		}
	case strings.HasPrefix(path, "/api/invoices/"):
		rest := strings.TrimPrefix(path, "/api/invoices/")
		if strings.HasSuffix(rest, "/mark-paid") {
			return "/api/invoices/:id/mark-paid"
		}
		if rest != "" && !strings.Contains(rest, "/") {
			return "/api/invoices/:id"
		}
	case strings.HasPrefix(path, "/api/admin/tenants/"):
		rest := strings.TrimPrefix(path, "/api/admin/tenants/")
		if strings.HasSuffix(rest, "/status") {
			return "/api/admin/tenants/:id/status"
		}
		if rest != "" && !strings.Contains(rest, "/") {
			return "/api/admin/tenants/:id"
		}
	}
	return path
}

// statusWriter captures the response code written downstream.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
