package transport

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the transport with Prometheus collectors. A nil
// *Metrics disables instrumentation; every method is nil-safe.
type Metrics struct {
	namespace string
	buckets   []float64
	registry  prometheus.Registerer

	requests *prometheus.CounterVec
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the metric namespace, default "timegpt".
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry registers the collectors somewhere other than the
// default registerer.
func WithRegistry(reg prometheus.Registerer) MetricsOption {
	return func(m *Metrics) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// WithDurationBuckets overrides the request duration histogram buckets.
func WithDurationBuckets(buckets []float64) MetricsOption {
	return func(m *Metrics) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// NewMetrics builds and registers the transport's collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace: "timegpt",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	factory := promauto.With(m.registry)
	m.requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "transport",
		Name:      "requests_total",
		Help:      "API requests by endpoint and status code.",
	}, []string{"endpoint", "status"})
	m.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "transport",
		Name:      "retries_total",
		Help:      "Retried request attempts by endpoint.",
	}, []string{"endpoint"})
	m.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "transport",
		Name:      "request_duration_seconds",
		Help:      "API request latency by endpoint.",
		Buckets:   m.buckets,
	}, []string{"endpoint"})
	return m
}

func (m *Metrics) observeRequest(endpoint string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(endpoint).Observe(dur.Seconds())
}

func (m *Metrics) incRetry(endpoint string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(endpoint).Inc()
}
