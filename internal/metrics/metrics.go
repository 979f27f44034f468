package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolveRuns counts solve outcomes by terminal state
	SolveRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solve_runs_total", Help: "Optimization runs by terminal state."},
		[]string{"state"},
	)
	// SolveDuration tracks end-to-end solve wall time in seconds
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Solve wall time in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}},
	)
	// SolveScans tracks local search scans per solve
	SolveScans = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solve_search_scans", Help: "Local search scans per solve.", Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000}},
	)
	// SolveImprovement tracks the relative distance reduction of local search
	SolveImprovement = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solve_improvement_ratio", Help: "Fraction of initial distance removed by local search.", Buckets: []float64{0, 0.01, 0.05, 0.1, 0.2, 0.3, 0.5}},
	)

	// MatrixCacheHits counts matrix cache lookups by outcome
	MatrixCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "matrix_cache_lookups_total", Help: "Matrix cache lookups by outcome."},
		[]string{"outcome"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// ObserveHTTP records one finished HTTP request.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	s := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(method, path, s).Inc()
	HTTPDuration.WithLabelValues(method, path, s).Observe(elapsed.Seconds())
}

// ObserveSolve records one finished optimization run.
func ObserveSolve(state string, scans int, initialDist, finalDist float64, elapsed time.Duration) {
	SolveRuns.WithLabelValues(state).Inc()
	SolveDuration.Observe(elapsed.Seconds())
	SolveScans.Observe(float64(scans))
	if initialDist > 0 {
		SolveImprovement.Observe((initialDist - finalDist) / initialDist)
	}
}

// ObserveWebhookDelivery records one webhook attempt.
func ObserveWebhookDelivery(eventType string, success bool, elapsed time.Duration) {
	status := "failed"
	if success {
		status = "delivered"
	}
	WebhookDeliveries.WithLabelValues(eventType, status).Inc()
	WebhookLatency.WithLabelValues(eventType, status).Observe(float64(elapsed.Milliseconds()))
}

// RegisterDefault registers collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SolveRuns)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(SolveScans)
		Registry.MustRegister(SolveImprovement)
		Registry.MustRegister(MatrixCacheHits)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
