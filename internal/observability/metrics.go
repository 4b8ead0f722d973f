// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	CountiesBySource  *prometheus.GaugeVec
	ClampedEntries    *prometheus.CounterVec
	SnapshotsLoaded   *prometheus.GaugeVec
	RunsPersisted     prometheus.Counter

	// Margin metrics
	MarginLow   *prometheus.GaugeVec
	MarginHigh  *prometheus.GaugeVec
	CurrentDiff *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Stream metrics
	StreamClients    prometheus.Gauge
	StreamBroadcasts prometheus.Counter
	StreamDropped    prometheus.Counter

	// Health metrics
	LastSuccessfulPipeline *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance registered with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a new Metrics instance registered with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "mci"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Pipeline metrics
		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of estimation runs by region and status",
		}, []string{"region", "status"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Estimation run duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"region"}),
		CountiesBySource: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "counties",
			Help:      "Counties estimated in the latest run by source tier",
		}, []string{"region", "source"}),
		ClampedEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "clamped_entries_total",
			Help:      "Differential entries clamped to zero after downward revisions",
		}, []string{"region"}),
		SnapshotsLoaded: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "snapshots",
			Help:      "Snapshots held in the history for a region",
		}, []string{"region"}),
		RunsPersisted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_persisted_total",
			Help:      "Total number of runs written to the run store",
		}),

		// Margin metrics
		MarginLow: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "margin",
			Name:      "low",
			Help:      "Lower bound of the projected final margin",
		}, []string{"region"}),
		MarginHigh: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "margin",
			Name:      "high",
			Help:      "Upper bound of the projected final margin",
		}, []string{"region"}),
		CurrentDiff: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "margin",
			Name:      "current_diff",
			Help:      "Counted vote difference over estimated counties",
		}, []string{"region"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Stream metrics
		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
		StreamBroadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "broadcasts_total",
			Help:      "Total number of margin updates broadcast",
		}),
		StreamDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_total",
			Help:      "Messages dropped for slow clients",
		}),

		// Health metrics
		LastSuccessfulPipeline: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful estimation run",
		}, []string{"region"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPipelineRun records an estimation run.
func (m *Metrics) RecordPipelineRun(region, status string, durationSeconds float64) {
	m.PipelineRunsTotal.WithLabelValues(region, status).Inc()
	m.PipelineDuration.WithLabelValues(region).Observe(durationSeconds)
}

// RecordMargin updates the margin gauges and the success timestamp.
func (m *Metrics) RecordMargin(region string, low, high float64, currentDiff int64, unixSeconds float64) {
	m.MarginLow.WithLabelValues(region).Set(low)
	m.MarginHigh.WithLabelValues(region).Set(high)
	m.CurrentDiff.WithLabelValues(region).Set(float64(currentDiff))
	m.LastSuccessfulPipeline.WithLabelValues(region).Set(unixSeconds)
}

// RecordCounties sets per-source county gauges and adds clamped entries.
func (m *Metrics) RecordCounties(region string, bySource map[string]int, clamped int) {
	for source, n := range bySource {
		m.CountiesBySource.WithLabelValues(region, source).Set(float64(n))
	}
	if clamped > 0 {
		m.ClampedEntries.WithLabelValues(region).Add(float64(clamped))
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records an estimation run on DefaultMetrics.
func RecordPipelineRun(region, status string, durationSeconds float64) {
	DefaultMetrics.RecordPipelineRun(region, status, durationSeconds)
}

// RecordDBQuery records database query metrics on DefaultMetrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.RecordDBQuery(database, operation, seconds, err)
}
