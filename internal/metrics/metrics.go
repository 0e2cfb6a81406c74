// Package metrics defines the Prometheus instrumentation for the
// classification API: request volume, prediction outcomes and serving
// latency, exposed on the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the serving layer.
type Metrics struct {
	PredictionsTotal    prometheus.Counter     // Total single predictions served
	PredictionsAccepted prometheus.Counter     // Predictions passing the abstention policy
	BatchRowsTotal      prometheus.Counter     // Rows scored through batch requests
	AuditFailures       prometheus.Counter     // Swallowed audit write failures
	HTTPRequests        *prometheus.CounterVec // Requests by handler and status
	PredictLatency      prometheus.Histogram   // Single-prediction latency in seconds
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics against a custom registry, which
// keeps tests isolated from the global state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of single predictions served",
		}),
		PredictionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_accepted_total",
			Help: "Number of predictions that passed the confidence and margin checks",
		}),
		BatchRowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_rows_total",
			Help: "Total number of rows scored via batch prediction",
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_failures_total",
			Help: "Number of audit log writes that failed and were skipped",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by handler and status code",
		}, []string{"handler", "status"}),
		PredictLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "predict_latency_seconds",
			Help:    "Latency of single-prediction requests in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
