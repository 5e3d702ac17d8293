// Package observability provides Prometheus metrics, health checks, and logging.
//
// Uses github.com/prometheus/client_golang - the official Prometheus client.
// Chosen for its maturity, wide adoption, and seamless integration with
// the Prometheus ecosystem (Grafana, Alertmanager, etc.).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the reliability engine.
// Metrics are automatically registered via promauto.
//
// Key metrics for monitoring:
//   - attempts_recorded_total: attempt ingestion rate by outcome
//   - retries_scheduled_total: retry pressure
//   - attempts_failed_total: terminal failures (alerts)
//   - delivery_response_time_ms: reported latency distribution
type Metrics struct {
	AttemptsRecorded  *prometheus.CounterVec
	RetriesScheduled  prometheus.Counter
	RetriesCancelled  prometheus.Counter
	AttemptsFailed    prometheus.Counter
	ReplaysTotal      *prometheus.CounterVec
	SubscriberPanics  prometheus.Counter
	ResponseTime      prometheus.Histogram
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
// The namespace prefixes all metric names (e.g., "relay_attempts_recorded_total").
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		AttemptsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_recorded_total",
			Help:      "Total number of delivery attempts recorded, by resulting status",
		}, []string{"status"}),
		RetriesScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Total number of retries armed by the scheduler",
		}),
		RetriesCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_cancelled_total",
			Help:      "Total number of retry cancellations requested",
		}),
		AttemptsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_failed_total",
			Help:      "Total number of attempts that failed with no retries remaining",
		}),
		ReplaysTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Total number of replays, by final status",
		}, []string{"status"}),
		SubscriberPanics: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_subscriber_panics_total",
			Help:      "Total number of monitor subscriber callbacks that panicked",
		}),
		ResponseTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_response_time_ms",
			Help:      "Reported delivery response times in milliseconds",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method and path",
		}, []string{"method", "path", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
