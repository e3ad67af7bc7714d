package utils

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	requestCount atomic.Uint64
	errorCount   atomic.Uint64

	registry   *prometheus.Registry
	requests   prometheus.Counter
	errors     prometheus.Counter
	operations *prometheus.HistogramVec

	systemStartTime time.Time
}

// MetricsSnapshot is the point-in-time view reported by the health endpoint.
type MetricsSnapshot struct {
	Requests uint64        `json:"requests"`
	Errors   uint64        `json:"errors"`
	Uptime   time.Duration `json:"uptime"`
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freshhub",
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests served.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freshhub",
			Name:      "http_errors_total",
			Help:      "Number of HTTP requests answered with a 5xx status.",
		}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "freshhub",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		systemStartTime: time.Now(),
	}
	mc.registry.MustRegister(mc.requests, mc.errors, mc.operations)
	return mc
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.requestCount.Add(1)
	mc.requests.Inc()
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.errorCount.Add(1)
	mc.errors.Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operations.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests: mc.requestCount.Load(),
		Errors:   mc.errorCount.Load(),
		Uptime:   time.Since(mc.systemStartTime),
	}
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
