// Package observe provides application-wide observability primitives for
// Manyfold: OpenTelemetry metrics, tracing helpers, and structured logging
// enrichment.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [Init] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Manyfold metrics.
const meterName = "github.com/manyfold-ai/manyfold"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// CompletionDuration tracks full chat-completion latency.
	CompletionDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding request latency.
	EmbeddingDuration metric.Float64Histogram

	// RetrievalDuration tracks end-to-end semantic retrieval latency.
	RetrievalDuration metric.Float64Histogram

	// BackendRequests counts backend API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("op", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// BackendErrors counts backend failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("op", ...)
	BackendErrors metric.Int64Counter

	// CacheLookups counts embedding cache lookups at chunk granularity.
	// Use with attribute: attribute.String("result", "hit"|"miss").
	CacheLookups metric.Int64Counter

	// EmbeddingBatchSize tracks how many texts each backend embed call carried.
	EmbeddingBatchSize metric.Int64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// network round trips to inference backends.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CompletionDuration, err = m.Float64Histogram("manyfold.completion.duration",
		metric.WithDescription("Latency of chat completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("manyfold.embedding.duration",
		metric.WithDescription("Latency of embedding requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("manyfold.retrieval.duration",
		metric.WithDescription("End-to-end semantic retrieval latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.BackendRequests, err = m.Int64Counter("manyfold.backend.requests",
		metric.WithDescription("Total backend API requests by provider, operation, and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("manyfold.backend.errors",
		metric.WithDescription("Total backend errors by provider and operation."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("manyfold.cache.lookups",
		metric.WithDescription("Embedding cache lookups by result (hit/miss), at chunk granularity."),
	); err != nil {
		return nil, err
	}

	if met.EmbeddingBatchSize, err = m.Int64Histogram("manyfold.embedding.batch_size",
		metric.WithDescription("Number of texts per backend embed call."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordBackendRequest records one backend call with the standard attribute
// set. status is "ok", "error", or "cancelled".
func (m *Metrics) RecordBackendRequest(ctx context.Context, provider, op, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
	if status == "error" {
		m.BackendErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("provider", provider),
				attribute.String("op", op),
			),
		)
	}
}

// RecordCacheLookups records hit and miss counts from one cache partition.
func (m *Metrics) RecordCacheLookups(ctx context.Context, hits, misses int) {
	if hits > 0 {
		m.CacheLookups.Add(ctx, int64(hits),
			metric.WithAttributes(attribute.String("result", "hit")))
	}
	if misses > 0 {
		m.CacheLookups.Add(ctx, int64(misses),
			metric.WithAttributes(attribute.String("result", "miss")))
	}
}
