package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cvrpsolver/internal/opt"
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

	// SolverRuns counts finished runs by construction method and final status
	SolverRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_runs_total", Help: "Finished solver runs."},
		[]string{"method", "status"},
	)
	SolverRunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "solver_runs_in_flight", Help: "Runs currently solving."},
	)
	SolverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solver_run_duration_seconds", Help: "Wall time of a solve.", Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 600}},
		[]string{"method"},
	)
	SolverIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solver_iterations", Help: "VNS iterations per run.", Buckets: prometheus.ExponentialBuckets(10, 4, 7)},
		[]string{"method"},
	)
	// SolverImprovement is the relative cost reduction of the search over the constructed solution.
	SolverImprovement = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solver_improvement_ratio", Help: "1 - best/initial cost.", Buckets: prometheus.LinearBuckets(0, 0.05, 10)},
		[]string{"method"},
	)
	SolverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_stops_total", Help: "Search terminations by reason."},
		[]string{"reason"},
	)
)

// ObserveRun records a successful solve.
func ObserveRun(method string, m opt.Metrics) {
	SolverRuns.WithLabelValues(method, "succeeded").Inc()
	SolverDuration.WithLabelValues(method).Observe(m.Duration.Seconds())
	SolverIterations.WithLabelValues(method).Observe(float64(m.Iterations))
	if m.InitialCost > 0 {
		SolverImprovement.WithLabelValues(method).Observe(1 - m.BestCost/m.InitialCost)
	}
	SolverStops.WithLabelValues(m.StopReason).Inc()
}

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		Registry.MustRegister(SolverRuns, SolverRunsInFlight, SolverDuration, SolverIterations, SolverImprovement, SolverStops)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
