package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/vivecare/clinstream/eventlog/oteladapters"
)

func Test_NewMetricsCollector_Construction(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("clinstream")

	collector := oteladapters.NewMetricsCollector(meter)

	assert.NotNil(t, collector, "NewMetricsCollector should return non-nil collector")
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("clinstream")

	collector := oteladapters.NewMetricsCollector(meter)

	labels := map[string]string{
		"operation": "append",
		"status":    "success",
	}

	collector.RecordDuration("eventlog_append_duration_seconds", 150*time.Millisecond, labels)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	histogram := findHistogramMetric(t, resourceMetrics, "eventlog_append_duration_seconds")
	require.Len(t, histogram.DataPoints, 1, "Expected exactly one data point")

	dataPoint := histogram.DataPoints[0]

	// 150ms recorded as 0.15 seconds
	assert.Equal(t, uint64(1), dataPoint.Count, "Histogram count should be 1")
	assert.InDelta(t, 0.15, dataPoint.Sum, 0.001, "Histogram sum should be 0.15 seconds")

	expectedAttrs := attribute.NewSet(
		attribute.String("operation", "append"),
		attribute.String("status", "success"),
	)
	assert.True(t, dataPoint.Attributes.Equals(&expectedAttrs), "Attributes should match")
}

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("clinstream")

	collector := oteladapters.NewMetricsCollector(meter)

	labels := map[string]string{"projector_id": "adherence"}

	collector.IncrementCounter("pipeline_batches_applied_total", labels)
	collector.IncrementCounter("pipeline_batches_applied_total", labels)
	collector.IncrementCounter("pipeline_batches_applied_total", labels)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	sum := findCounterMetric(t, resourceMetrics, "pipeline_batches_applied_total")
	require.Len(t, sum.DataPoints, 1, "Expected exactly one data point")

	assert.Equal(t, int64(3), sum.DataPoints[0].Value, "Counter should have accumulated all increments")
}

func Test_MetricsCollector_RecordValue(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("clinstream")

	collector := oteladapters.NewMetricsCollector(meter)

	collector.RecordValue("pipeline_projection_lag_events", 12,
		map[string]string{"projector_id": "quality"})

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	gauge := findGaugeMetric(t, resourceMetrics, "pipeline_projection_lag_events")
	require.Len(t, gauge.DataPoints, 1, "Expected exactly one data point")

	assert.InDelta(t, 12.0, gauge.DataPoints[0].Value, 0.001, "Gauge should hold the recorded value")
}

func Test_MetricsCollector_ContextVariants(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("clinstream")

	collector := oteladapters.NewMetricsCollector(meter)
	ctx := context.Background()

	collector.RecordDurationContext(ctx, "eventlog_read_duration_seconds", 20*time.Millisecond, nil)
	collector.IncrementCounterContext(ctx, "eventlog_conflicts_total", nil)
	collector.RecordValueContext(ctx, "pipeline_queue_depth", 4, nil)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	findHistogramMetric(t, resourceMetrics, "eventlog_read_duration_seconds")
	findCounterMetric(t, resourceMetrics, "eventlog_conflicts_total")
	findGaugeMetric(t, resourceMetrics, "pipeline_queue_depth")
}

func Test_MetricsCollector_ReusesInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("clinstream")

	collector := oteladapters.NewMetricsCollector(meter)

	// Recording the same metric name twice must reuse one instrument,
	// not register a duplicate.
	collector.IncrementCounter("pipeline_dead_letters_total", map[string]string{"projector_id": "workqueue"})
	collector.IncrementCounter("pipeline_dead_letters_total", map[string]string{"projector_id": "workqueue"})

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	sum := findCounterMetric(t, resourceMetrics, "pipeline_dead_letters_total")
	require.Len(t, sum.DataPoints, 1, "Expected one data point, not one per call")
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func findHistogramMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Histogram[float64] {
	t.Helper()

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}

			histogram, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok, "Metric %s should be a float64 histogram", name)

			return histogram
		}
	}

	t.Fatalf("Histogram metric %s not found", name)
	return metricdata.Histogram[float64]{}
}

func findCounterMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "Metric %s should be an int64 sum", name)

			return sum
		}
	}

	t.Fatalf("Counter metric %s not found", name)
	return metricdata.Sum[int64]{}
}

func findGaugeMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Gauge[float64] {
	t.Helper()

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}

			gauge, ok := m.Data.(metricdata.Gauge[float64])
			require.True(t, ok, "Metric %s should be a float64 gauge", name)

			return gauge
		}
	}

	t.Fatalf("Gauge metric %s not found", name)
	return metricdata.Gauge[float64]{}
}
