package knowledge

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "gnoskos.knowledge"

var (
	metricsOnce        sync.Once
	metricsMu          sync.Mutex
	metricsInitErr     error
	ingestDurationHist metric.Float64Histogram
	chunkCounter       metric.Int64Counter
	queryLatencyHist   metric.Float64Histogram
	retrievalEmpty     metric.Int64Counter
)

func RecordIngestDuration(ctx context.Context, d time.Duration) {
	if err := ensureMetrics(); err != nil || ingestDurationHist == nil {
		return
	}
	ingestDurationHist.Record(ctx, d.Seconds())
}

// RecordIngestChunks counts chunks by outcome ("stored" or "failed").
func RecordIngestChunks(ctx context.Context, outcome string, chunks int) {
	if chunks <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil || chunkCounter == nil {
		return
	}
	chunkCounter.Add(ctx, int64(chunks), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordQueryLatency(ctx context.Context, outcome string, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRetrievalEmpty(ctx context.Context) {
	if err := ensureMetrics(); err != nil || retrievalEmpty == nil {
		return
	}
	retrievalEmpty.Add(ctx, 1)
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	ingestDurationHist = nil
	chunkCounter = nil
	queryLatencyHist = nil
	retrievalEmpty = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		metricsInitErr = initMetrics(otel.GetMeterProvider().Meter(meterName))
	})
	return metricsInitErr
}

func initMetrics(meter metric.Meter) error {
	var err error
	ingestDurationHist, err = meter.Float64Histogram(
		"gnoskos_knowledge_ingest_duration_seconds",
		metric.WithDescription("Latency of corpus ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600),
	)
	if err != nil {
		return err
	}
	chunkCounter, err = meter.Int64Counter(
		"gnoskos_knowledge_chunks_total",
		metric.WithDescription("Number of chunks processed by ingestion, by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	queryLatencyHist, err = meter.Float64Histogram(
		"gnoskos_knowledge_query_latency_seconds",
		metric.WithDescription("Latency of answered questions"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return err
	}
	retrievalEmpty, err = meter.Int64Counter(
		"gnoskos_knowledge_retrieval_empty_total",
		metric.WithDescription("Number of questions whose search returned no chunks"),
		metric.WithUnit("1"),
	)
	return err
}
