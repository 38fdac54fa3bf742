package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"manyfold.completion.duration", m.CompletionDuration},
		{"manyfold.embedding.duration", m.EmbeddingDuration},
		{"manyfold.retrieval.duration", m.RetrievalDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("metric %q count: got %d, want 2", tc.name, got)
			}
		})
	}
}

func TestRecordBackendRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBackendRequest(ctx, "prov-1", "complete", "ok")
	m.RecordBackendRequest(ctx, "prov-1", "complete", "error")
	m.RecordBackendRequest(ctx, "prov-1", "embed", "cancelled")

	rm := collect(t, reader)

	reqs := findMetric(rm, "manyfold.backend.requests")
	if reqs == nil {
		t.Fatal("manyfold.backend.requests not found")
	}
	sum, ok := reqs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("manyfold.backend.requests is not a sum")
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("request total: got %d, want 3", total)
	}

	// Only the "error" status increments the error counter.
	errs := findMetric(rm, "manyfold.backend.errors")
	if errs == nil {
		t.Fatal("manyfold.backend.errors not found")
	}
	errSum, ok := errs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("manyfold.backend.errors is not a sum")
	}
	var errTotal int64
	for _, dp := range errSum.DataPoints {
		errTotal += dp.Value
	}
	if errTotal != 1 {
		t.Errorf("error total: got %d, want 1", errTotal)
	}
}

func TestRecordCacheLookups(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookups(ctx, 3, 2)
	m.RecordCacheLookups(ctx, 0, 0) // zero counts must not emit data points

	rm := collect(t, reader)
	met := findMetric(rm, "manyfold.cache.lookups")
	if met == nil {
		t.Fatal("manyfold.cache.lookups not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("manyfold.cache.lookups is not a sum")
	}

	byResult := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(attribute.Key("result")); found {
			byResult[v.AsString()] += dp.Value
		}
	}
	if byResult["hit"] != 3 {
		t.Errorf("hits: got %d, want 3", byResult["hit"])
	}
	if byResult["miss"] != 2 {
		t.Errorf("misses: got %d, want 2", byResult["miss"])
	}
}

func TestEmbeddingBatchSize(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.EmbeddingBatchSize.Record(ctx, 32)
	m.EmbeddingBatchSize.Record(ctx, 7)

	rm := collect(t, reader)
	met := findMetric(rm, "manyfold.embedding.batch_size")
	if met == nil {
		t.Fatal("manyfold.embedding.batch_size not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatal("manyfold.embedding.batch_size is not a histogram")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("count: got %d, want 2", got)
	}
	if got := hist.DataPoints[0].Sum; got != 39 {
		t.Errorf("sum: got %d, want 39", got)
	}
}

func TestDefaultMetricsIsSingleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
