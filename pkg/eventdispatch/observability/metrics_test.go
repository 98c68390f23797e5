package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a test meter provider and returns a reader to
// collect from.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	originalProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}

	return reader, cleanup
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValue totals the datapoints of an int64 sum metric that carry the given
// attribute value.
func sumValue(t *testing.T, m *metricdata.Metrics, attrKey, attrVal string) int64 {
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64] data")

	var total int64
	for _, dp := range sum.DataPoints {
		for _, attr := range dp.Attributes.ToSlice() {
			if string(attr.Key) == attrKey && attr.Value.AsString() == attrVal {
				total += dp.Value
			}
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordEventPosted(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEventPosted(ctx, "", "playback.started")
	m.RecordEventPosted(ctx, "", "playback.started")

	rm := collectMetrics(t, reader)
	posted := findMetric(rm, "eventdispatch.events.posted")
	require.NotNil(t, posted)

	assert.Equal(t, int64(2), sumValue(t, posted, "event", "playback.started"))
}

func TestRecordDelivery(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records delivery count and latency", func(t *testing.T) {
		m.RecordDelivery(ctx, "", "test.event", 25*time.Millisecond, nil)

		rm := collectMetrics(t, reader)

		deliveries := findMetric(rm, "eventdispatch.deliveries")
		require.NotNil(t, deliveries)
		assert.GreaterOrEqual(t, sumValue(t, deliveries, "event", "test.event"), int64(1))

		latency := findMetric(rm, "eventdispatch.delivery.latency_ms")
		require.NotNil(t, latency)

		hist, ok := latency.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "expected Histogram[float64] data")
		require.NotEmpty(t, hist.DataPoints)

		// No errors recorded for a successful delivery
		errs := findMetric(rm, "eventdispatch.delivery.errors")
		if errs != nil {
			assert.Equal(t, int64(0), sumValue(t, errs, "event", "test.event"))
		}
	})

	t.Run("records delivery errors", func(t *testing.T) {
		m.RecordDelivery(ctx, "", "test.event", 10*time.Millisecond, errors.New("handler failure"))

		rm := collectMetrics(t, reader)
		errs := findMetric(rm, "eventdispatch.delivery.errors")
		require.NotNil(t, errs)
		assert.Equal(t, int64(1), sumValue(t, errs, "event", "test.event"))
	})
}

func TestRecordQueueDepth(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordQueueDepth(context.Background(), "audio", 7)

	rm := collectMetrics(t, reader)
	depth := findMetric(rm, "eventdispatch.queue.depth")
	require.NotNil(t, depth)

	gauge, ok := depth.Data.(metricdata.Gauge[int64])
	require.True(t, ok, "expected Gauge[int64] data")
	require.NotEmpty(t, gauge.DataPoints)
	assert.Equal(t, int64(7), gauge.DataPoints[0].Value)
}

func TestRecordActiveMaps(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordActiveMaps(context.Background(), "", 3)

	rm := collectMetrics(t, reader)
	active := findMetric(rm, "eventdispatch.maps.active")
	require.NotNil(t, active)

	gauge, ok := active.Data.(metricdata.Gauge[int64])
	require.True(t, ok, "expected Gauge[int64] data")
	require.NotEmpty(t, gauge.DataPoints)
	assert.Equal(t, int64(3), gauge.DataPoints[0].Value)
}
