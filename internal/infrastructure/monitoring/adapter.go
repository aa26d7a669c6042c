// Package monitoring provides adapters to connect the HTTP layer's metrics interface with Prometheus.
package monitoring

import (
	"context"
	"strconv"
	"time"
)

// HTTPMetricsAdapter implements handlers.HTTPMetrics on top of Metrics.
// HTTPMetricsAdapter 基于 Metrics 实现 handlers.HTTPMetrics 接口。
type HTTPMetricsAdapter struct {
	metrics *Metrics
}

// NewHTTPMetricsAdapter wraps a Prometheus Metrics object.
// NewHTTPMetricsAdapter 包装一个 Prometheus Metrics 对象。
func NewHTTPMetricsAdapter(metrics *Metrics) *HTTPMetricsAdapter {
	return &HTTPMetricsAdapter{metrics: metrics}
}

// RecordRequestStart increments the in-flight gauge.
func (a *HTTPMetricsAdapter) RecordRequestStart(ctx context.Context, handler string) {
	a.metrics.HTTPInFlight.Inc()
}

// RecordRequestDuration decrements the in-flight gauge and records status and latency.
func (a *HTTPMetricsAdapter) RecordRequestDuration(ctx context.Context, handler string, status int, duration time.Duration) {
	a.metrics.HTTPInFlight.Dec()
	a.metrics.HTTPRequests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	a.metrics.HTTPLatency.WithLabelValues(handler).Observe(duration.Seconds())
}
