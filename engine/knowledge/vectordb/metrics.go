package vectordb

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	vectorMetricsOnce   sync.Once
	vectorMetricsErr    error
	vectorSearchLatency metric.Float64Histogram
	vectorResultsCount  metric.Int64Histogram
	vectorErrorsTotal   metric.Int64Counter
)

func ensureVectorMetrics() error {
	vectorMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gnoskos.knowledge.vector")
		var err error
		vectorSearchLatency, err = meter.Float64Histogram(
			"gnoskos_vectordb_similarity_search_seconds",
			metric.WithDescription("Vector similarity search latency"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5),
		)
		if err != nil {
			vectorMetricsErr = err
			return
		}
		vectorResultsCount, err = meter.Int64Histogram(
			"gnoskos_vectordb_results_count",
			metric.WithDescription("Number of records returned by a similarity search"),
			metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 10, 20, 50),
		)
		if err != nil {
			vectorMetricsErr = err
			return
		}
		vectorErrorsTotal, err = meter.Int64Counter(
			"gnoskos_vectordb_errors_total",
			metric.WithDescription("Vector store search failures"),
		)
		vectorMetricsErr = err
	})
	return vectorMetricsErr
}

func recordSearch(ctx context.Context, provider string, d time.Duration, results int, err error) {
	if ensureVectorMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	if err != nil {
		vectorErrorsTotal.Add(ctx, 1, attrs)
		return
	}
	vectorSearchLatency.Record(ctx, d.Seconds(), attrs)
	vectorResultsCount.Record(ctx, int64(results), attrs)
}
