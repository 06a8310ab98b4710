package ratelimit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	rateLimitBlocksTotal metric.Int64Counter
	metricsOnce          sync.Once
	metricsMutex         sync.Mutex
)

// InitMetrics registers the blocked-request counter on meter.
func InitMetrics(meter metric.Meter) error {
	if meter == nil {
		return nil
	}
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	var err error
	metricsOnce.Do(func() {
		rateLimitBlocksTotal, err = meter.Int64Counter(
			"gnoskos_rate_limit_blocks_total",
			metric.WithDescription("Total number of requests blocked by rate limiting"),
			metric.WithUnit("1"),
		)
	})
	return err
}

func ResetMetricsForTesting() {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	rateLimitBlocksTotal = nil
	metricsOnce = sync.Once{}
}

func incrementBlockedRequests(ctx context.Context, route string) {
	metricsMutex.Lock()
	counter := rateLimitBlocksTotal
	metricsMutex.Unlock()
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}
