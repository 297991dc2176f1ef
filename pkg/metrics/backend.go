package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics tracks calls made to the remote storefront API.
type BackendMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewBackendMetrics registers the backend call metrics on the provided registerer.
func NewBackendMetrics(reg prometheus.Registerer) *BackendMetrics {
	if reg == nil {
		return &BackendMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_backend_request_duration_seconds",
		Help:    "Latency of storefront backend calls by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_backend_requests_total",
		Help: "Storefront backend calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(duration, outcomes)
	return &BackendMetrics{duration: duration, outcomes: outcomes}
}

// Observe records one completed call.
func (b *BackendMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if b == nil {
		return
	}
	if b.duration != nil {
		b.duration.WithLabelValues(normalizeLabel(operation)).Observe(elapsed.Seconds())
	}
	if b.outcomes != nil {
		b.outcomes.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	}
}
