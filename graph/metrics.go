package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus-compatible execution metrics.
//
// Metrics exposed (namespace "agents4j"):
//
//	steps_total (counter, labels: workflow_id)
//	node_duration_ms (histogram, labels: node_id, status)
//	active_branches (gauge)
//	suspensions_total (counter, labels: workflow_id)
//	errors_total (counter, labels: code)
//
// Register against a dedicated registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe for concurrent use; a nil *Metrics is a valid no-op
// receiver so callers never need nil checks.
type Metrics struct {
	steps          *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	activeBranches prometheus.Gauge
	suspensions    *prometheus.CounterVec
	errors         *prometheus.CounterVec
}

// NewMetrics creates and registers all workflow metrics with the registry
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agents4j",
			Name:      "steps_total",
			Help:      "Interpreter steps executed, by workflow.",
		}, []string{"workflow_id"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agents4j",
			Name:      "node_duration_ms",
			Help:      "Node processing duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node_id", "status"}),
		activeBranches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agents4j",
			Name:      "active_branches",
			Help:      "Fork branches currently executing.",
		}),
		suspensions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agents4j",
			Name:      "suspensions_total",
			Help:      "Workflow suspensions, by workflow.",
		}, []string{"workflow_id"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agents4j",
			Name:      "errors_total",
			Help:      "Workflow errors, by error code.",
		}, []string{"code"}),
	}
}

func (m *Metrics) recordStep(id WorkflowID) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(id)).Inc()
}

func (m *Metrics) recordNodeDuration(id NodeID, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	status := "success"
	if failed {
		status = "error"
	}
	m.nodeDuration.WithLabelValues(string(id), status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) branchStarted() {
	if m == nil {
		return
	}
	m.activeBranches.Inc()
}

func (m *Metrics) branchFinished() {
	if m == nil {
		return
	}
	m.activeBranches.Dec()
}

func (m *Metrics) recordSuspension(id WorkflowID) {
	if m == nil {
		return
	}
	m.suspensions.WithLabelValues(string(id)).Inc()
}

func (m *Metrics) recordError(code ErrorCode) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(string(code)).Inc()
}
