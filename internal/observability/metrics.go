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
	// Engine metrics
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	VenuesClassified *prometheus.GaugeVec
	SwapsAttributed  prometheus.Counter
	VaultsObserved   prometheus.Counter
	VaultsSkipped    prometheus.Counter
	PipelineErrors   *prometheus.CounterVec

	// Transport metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCCallErrors   *prometheus.CounterVec
	LogsFetched     prometheus.Counter
	BatchCallsTotal prometheus.Counter

	// Persistence metrics
	RunsStored       prometheus.Counter
	MetricRowsStored prometheus.Counter
	DBQueryErrors    *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "defi_revenue_lab"
	}

	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of attribution runs by protocol and status",
		}, []string{"protocol", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Attribution run duration by protocol",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"protocol"}),
		VenuesClassified: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "venues_classified",
			Help:      "Venues classified in the most recent run by protocol",
		}, []string{"protocol"}),
		SwapsAttributed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "swaps_attributed_total",
			Help:      "Total number of swap events attributed",
		}),
		VaultsObserved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "vaults_observed_total",
			Help:      "Total number of vaults observed across runs",
		}),
		VaultsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "vaults_skipped_total",
			Help:      "Total number of vaults skipped for missing reads",
		}),
		PipelineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "pipeline_errors_total",
			Help:      "Localized pipeline failures by stage",
		}, []string{"stage"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "rpc_call_errors_total",
			Help:      "JSON-RPC call errors by method",
		}, []string{"method"}),
		LogsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "logs_fetched_total",
			Help:      "Total number of event logs fetched",
		}),
		BatchCallsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "batch_calls_total",
			Help:      "Total number of batched contract calls issued",
		}),

		RunsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "runs_stored_total",
			Help:      "Total number of attribution runs persisted",
		}),
		MetricRowsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "metric_rows_stored_total",
			Help:      "Total number of metric rows persisted",
		}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "db_query_errors_total",
			Help:      "Database query errors by backend",
		}, []string{"backend"}),

		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last successful attribution run",
		}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
