package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records outbox publisher throughput and failures.
type OutboxMetrics struct {
	duration   *prometheus.HistogramVec
	published  *prometheus.CounterVec
	failed     *prometheus.CounterVec
	deadLetter *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_duration_seconds",
		Help:    "Duration of broker publish calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events published to the broker.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed and will be retried.",
	}, []string{"event_type"})
	deadLetter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_lettered_total",
		Help: "Outbox events moved to the DLQ by reason.",
	}, []string{"reason"})
	reg.MustRegister(duration, published, failed, deadLetter)
	return &OutboxMetrics{
		duration:   duration,
		published:  published,
		failed:     failed,
		deadLetter: deadLetter,
	}
}

// ObservePublish records a successful publish and its duration.
func (o *OutboxMetrics) ObservePublish(eventType string, duration time.Duration) {
	if o == nil || o.duration == nil {
		return
	}
	label := normalizeLabel(eventType)
	o.duration.WithLabelValues(label).Observe(duration.Seconds())
	o.published.WithLabelValues(label).Inc()
}

// IncFailure increments the retryable failure counter.
func (o *OutboxMetrics) IncFailure(eventType string) {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDeadLetter increments the DLQ counter for the given reason.
func (o *OutboxMetrics) IncDeadLetter(reason string) {
	if o == nil || o.deadLetter == nil {
		return
	}
	o.deadLetter.WithLabelValues(normalizeLabel(reason)).Inc()
}
