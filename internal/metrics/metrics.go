package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     prometheus.CounterVec
	HTTPRequestDuration   prometheus.HistogramVec
	HTTPActiveConnections prometheus.GaugeVec

	// Broker metrics
	BrokerOperationsTotal   prometheus.CounterVec
	BrokerOperationDuration prometheus.HistogramVec

	// Pipeline metrics
	JobsTotal             prometheus.CounterVec
	PipelineStageDuration prometheus.HistogramVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			BrokerOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "broker_operations_total",
					Help: "Total number of broker operations",
				},
				[]string{"operation", "status"},
			),
			BrokerOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "broker_operation_duration_seconds",
					Help:    "Broker operation latency in seconds",
					Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
				},
				[]string{"operation"},
			),

			JobsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "translation_jobs_total",
					Help: "Total number of translation jobs by outcome",
				},
				[]string{"outcome"},
			),
			PipelineStageDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "pipeline_stage_duration_seconds",
					Help:    "Pipeline stage latency in seconds",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
				},
				[]string{"stage"},
			),

			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by component",
				},
				[]string{"component", "kind"},
			),
		}
	})
	return instance
}

// Get returns the metrics instance, initializing it if needed
func Get() *Metrics {
	return Initialize()
}
