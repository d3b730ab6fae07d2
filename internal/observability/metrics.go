package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the admin controller.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Screen flow metrics
	ScreenFlowsTotal       *prometheus.CounterVec
	ScreenFlowDuration     *prometheus.HistogramVec
	ScreenLockRejectsTotal *prometheus.CounterVec
	ScreenSessionsActive   prometheus.Gauge
	ScreenSessionsExpired  prometheus.Counter

	// Backend metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState *prometheus.GaugeVec
	BackendRetriesTotal        *prometheus.CounterVec

	// System metrics
	DefinitionReloadTotal    *prometheus.CounterVec
	DefinitionsLoaded        prometheus.Gauge
	OpenAPIOperationsIndexed *prometheus.GaugeVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tshop_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tshop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tshop_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tshop_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Screens
		ScreenFlowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tshop_screen_flows_total",
			Help: "Total number of screen flows by outcome.",
		}, []string{"screen_id", "flow", "outcome"}),
		ScreenFlowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tshop_screen_flow_duration_seconds",
			Help:    "Time a screen flow held the screen lock, in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"screen_id", "flow"}),
		ScreenLockRejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tshop_screen_lock_rejects_total",
			Help: "Total number of flows rejected because the screen was busy.",
		}, []string{"screen_id"}),
		ScreenSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tshop_screen_sessions_active",
			Help: "Number of live screen sessions.",
		}),
		ScreenSessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tshop_screen_sessions_expired_total",
			Help: "Total number of screen sessions removed by the sweeper.",
		}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tshop_backend_requests_total",
			Help: "Total number of backend service requests.",
		}, []string{"service_id", "operation", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tshop_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"service_id"}),
		BackendCircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tshop_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"service_id"}),
		BackendRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tshop_backend_retries_total",
			Help: "Total number of backend request retries.",
		}, []string{"service_id"}),

		// System
		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tshop_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tshop_definitions_loaded",
			Help: "Number of loaded screen definitions.",
		}),
		OpenAPIOperationsIndexed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tshop_openapi_operations_indexed",
			Help: "Number of indexed OpenAPI operations.",
		}, []string{"service_id"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Screens
		m.ScreenFlowsTotal,
		m.ScreenFlowDuration,
		m.ScreenLockRejectsTotal,
		m.ScreenSessionsActive,
		m.ScreenSessionsExpired,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		// System
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
		m.OpenAPIOperationsIndexed,
	)

	return m
}

// --- Recording helpers ---
//
// Every helper is safe to call on a nil *Metrics so callers built without a
// registry need no guards.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordScreenFlow records a finished screen flow. Outcome is one of "ok",
// "failed", "declined" or "invalid".
func (m *Metrics) RecordScreenFlow(screenID, flow, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ScreenFlowsTotal.WithLabelValues(screenID, flow, outcome).Inc()
	if duration > 0 {
		m.ScreenFlowDuration.WithLabelValues(screenID, flow).Observe(duration.Seconds())
	}
}

// RecordScreenLockReject records a flow turned away by a busy screen.
func (m *Metrics) RecordScreenLockReject(screenID string) {
	if m == nil {
		return
	}
	m.ScreenLockRejectsTotal.WithLabelValues(screenID).Inc()
}

// SetScreenSessionsActive sets the number of live screen sessions.
func (m *Metrics) SetScreenSessionsActive(count int) {
	if m == nil {
		return
	}
	m.ScreenSessionsActive.Set(float64(count))
}

// RecordScreenSessionsExpired adds n sessions removed by the sweeper.
func (m *Metrics) RecordScreenSessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ScreenSessionsExpired.Add(float64(n))
}

// RecordBackendRequest records a backend service request.
func (m *Metrics) RecordBackendRequest(serviceID, operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(serviceID, operation, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(serviceID).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(serviceID string, state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.WithLabelValues(serviceID).Set(state)
}

// RecordBackendRetry records a backend request retry.
func (m *Metrics) RecordBackendRetry(serviceID string) {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.WithLabelValues(serviceID).Inc()
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	if m == nil {
		return
	}
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded screen definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(count)
}

// SetOpenAPIOperationsIndexed sets the number of indexed OpenAPI operations.
func (m *Metrics) SetOpenAPIOperationsIndexed(serviceID string, count float64) {
	if m == nil {
		return
	}
	m.OpenAPIOperationsIndexed.WithLabelValues(serviceID).Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern is the chi route that matched r, with mount wildcards
// folded, or the raw path when nothing matched.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.ReplaceAll(strings.Join(rctx.RoutePatterns, ""), "/*/", "/")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}
