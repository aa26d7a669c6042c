package handlers

import (
	"context"
	"time"

	"github.com/turtacn/keyvault/internal/infrastructure/monitoring"
)

// HTTPMetrics is what MetricsMiddleware reports to.
type HTTPMetrics interface {
	RecordRequestStart(ctx context.Context, route string)
	RecordRequestDuration(ctx context.Context, route string, status int, d time.Duration)
}

var _ HTTPMetrics = (*monitoring.HTTPMetricsAdapter)(nil)

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequestStart(context.Context, string) {}

func (noopHTTPMetrics) RecordRequestDuration(context.Context, string, int, time.Duration) {}

// NoopHTTPMetrics discards request metrics.
func NoopHTTPMetrics() HTTPMetrics { return noopHTTPMetrics{} }
