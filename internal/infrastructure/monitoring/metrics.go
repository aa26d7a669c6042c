package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	SecretCacheEvents    *prometheus.CounterVec
	UnlockQueueDepth     prometheus.Gauge
	UnlockPrompts        *prometheus.CounterVec
	KeyOperations        *prometheus.CounterVec
	KeyOperationLatency  *prometheus.HistogramVec
	KeyServerRequests    *prometheus.CounterVec
	NotificationsDropped *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	HTTPLatency          *prometheus.HistogramVec
	HTTPInFlight         prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SecretCacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvault_secret_cache_events_total",
				Help: "Secret cache hits, misses, puts, invalidations and expirations.",
			},
			[]string{"event"},
		),
		UnlockQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "keyvault_unlock_queue_depth",
				Help: "Unlock requests waiting or in progress.",
			},
		),
		UnlockPrompts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvault_unlock_prompts_total",
				Help: "Password prompts by result.",
			},
			[]string{"result"},
		),
		KeyOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvault_key_operations_total",
				Help: "Key lifecycle operations by terminal phase.",
			},
			[]string{"operation", "result"},
		),
		KeyOperationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyvault_key_operation_duration_seconds",
				Help:    "Latency of key lifecycle operations, prompt time included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		KeyServerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvault_keyserver_requests_total",
				Help: "Key server requests by operation and result.",
			},
			[]string{"operation", "result"},
		),
		NotificationsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvault_notifications_dropped_total",
				Help: "Keys-changed notifications dropped because a subscriber was full or a publish failed.",
			},
			[]string{"sink"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvault_http_requests_total",
				Help: "HTTP requests by handler and status.",
			},
			[]string{"handler", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyvault_http_request_duration_seconds",
				Help:    "HTTP request latency by handler.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
		HTTPInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "keyvault_http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
	}
}

// RecordCacheEvent counts a secret cache event.
func (m *Metrics) RecordCacheEvent(event string) {
	if m == nil {
		return
	}
	m.SecretCacheEvents.WithLabelValues(event).Inc()
}

// SetQueueDepth reports the unlock queue depth.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.UnlockQueueDepth.Set(float64(depth))
}

// RecordPrompt counts a prompt outcome.
func (m *Metrics) RecordPrompt(result string) {
	if m == nil {
		return
	}
	m.UnlockPrompts.WithLabelValues(result).Inc()
}

// RecordKeyOperation records metrics for a finished lifecycle operation.
func (m *Metrics) RecordKeyOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.KeyOperations.WithLabelValues(operation, result).Inc()
	m.KeyOperationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordKeyServerRequest counts a key server call.
func (m *Metrics) RecordKeyServerRequest(operation, result string) {
	if m == nil {
		return
	}
	m.KeyServerRequests.WithLabelValues(operation, result).Inc()
}

// RecordNotificationDropped counts a dropped notification.
func (m *Metrics) RecordNotificationDropped(sink string) {
	if m == nil {
		return
	}
	m.NotificationsDropped.WithLabelValues(sink).Inc()
}

//Personal.AI order the ending
