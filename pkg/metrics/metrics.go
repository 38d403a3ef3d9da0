// Package metrics exposes the controller's internal counters and
// histograms as Prometheus series, following the package-level var plus
// init()-registration idiom used throughout this repository.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciler metrics
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controller_reconciliations_total",
			Help: "Total number of job reconciliations by action taken and outcome",
		},
		[]string{"action", "success"},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "controller_reconciliation_duration_seconds",
			Help:    "Time taken to reconcile a single job",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveReconciliations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controller_active_reconciliations",
			Help: "Number of reconciliations currently in flight",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controller_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
	)

	// Scheduler metrics
	SchedulerExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controller_scheduler_executions_total",
			Help: "Total number of scheduled-job executions by resulting status",
		},
		[]string{"status"},
	)

	SchedulerExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "controller_scheduler_execution_duration_seconds",
			Help:    "Time taken for a single scheduled-job execution",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Tracker metrics
	ChangesDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controller_changes_detected_total",
			Help: "Total number of desired-spec changes detected by kind",
		},
		[]string{"kind"},
	)

	// Cluster client metrics
	ClusterAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controller_cluster_api_requests_total",
			Help: "Total number of requests to the cluster's REST API by method and status",
		},
		[]string{"method", "status"},
	)

	ClusterAPIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controller_cluster_api_request_duration_seconds",
			Help:    "Cluster API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	ClusterClientCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controller_cluster_client_cache_total",
			Help: "Total number of cached GetJob lookups by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(ReconciliationsTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ActiveReconciliations)
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(SchedulerExecutionsTotal)
	prometheus.MustRegister(SchedulerExecutionDuration)
	prometheus.MustRegister(ChangesDetectedTotal)
	prometheus.MustRegister(ClusterAPIRequestsTotal)
	prometheus.MustRegister(ClusterAPIRequestDuration)
	prometheus.MustRegister(ClusterClientCacheTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and observing the elapsed
// duration into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec
// with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// BreakerStateValue maps a breaker state name to the gauge value
// CircuitBreakerState expects.
func BreakerStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
