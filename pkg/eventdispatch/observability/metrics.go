package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records eventdispatch metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventPosted records a posted event on a channel.
	RecordEventPosted(ctx context.Context, channel, name string)

	// RecordDelivery records a single handler delivery with its duration and
	// error status.
	RecordDelivery(ctx context.Context, channel, name string, duration time.Duration, err error)

	// RecordQueueDepth records the pending-delivery queue depth of a channel.
	// The queue is unbounded, so this is the primary backpressure signal.
	RecordQueueDepth(ctx context.Context, channel string, depth int)

	// RecordActiveMaps records the number of live event maps on a channel.
	RecordActiveMaps(ctx context.Context, channel string, count int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventsPosted    metric.Int64Counter
	deliveries      metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	deliveryErrors  metric.Int64Counter
	queueDepth      metric.Int64Gauge
	activeMaps      metric.Int64Gauge
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventdispatch")

	eventsPosted, err := meter.Int64Counter("eventdispatch.events.posted",
		metric.WithDescription("Number of events posted"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("eventdispatch.deliveries",
		metric.WithDescription("Number of handler deliveries"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("eventdispatch.delivery.latency_ms",
		metric.WithDescription("Handler delivery latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	deliveryErrors, err := meter.Int64Counter("eventdispatch.delivery.errors",
		metric.WithDescription("Number of handler delivery errors"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Gauge("eventdispatch.queue.depth",
		metric.WithDescription("Pending-delivery queue depth"),
	)
	if err != nil {
		return nil, err
	}

	activeMaps, err := meter.Int64Gauge("eventdispatch.maps.active",
		metric.WithDescription("Number of live event maps"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventsPosted:    eventsPosted,
		deliveries:      deliveries,
		deliveryLatency: deliveryLatency,
		deliveryErrors:  deliveryErrors,
		queueDepth:      queueDepth,
		activeMaps:      activeMaps,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEventPosted records a posted event.
func (m *otelMetrics) RecordEventPosted(ctx context.Context, channel, name string) {
	m.eventsPosted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("event", name),
	))
}

// RecordDelivery records a handler delivery.
func (m *otelMetrics) RecordDelivery(ctx context.Context, channel, name string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("channel", channel),
		attribute.String("event", name),
	}

	m.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.deliveryLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.deliveryErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordQueueDepth records the pending-delivery queue depth.
func (m *otelMetrics) RecordQueueDepth(ctx context.Context, channel string, depth int) {
	m.queueDepth.Record(ctx, int64(depth), metric.WithAttributes(
		attribute.String("channel", channel),
	))
}

// RecordActiveMaps records the number of live event maps.
func (m *otelMetrics) RecordActiveMaps(ctx context.Context, channel string, count int) {
	m.activeMaps.Record(ctx, int64(count), metric.WithAttributes(
		attribute.String("channel", channel),
	))
}
