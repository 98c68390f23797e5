package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the eventdispatch tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("eventdispatch")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPostSpan starts a span covering handler resolution and enqueueing
	// for a single post.
	StartPostSpan(ctx context.Context, channel, eventName string) (context.Context, trace.Span)

	// StartDeliverySpan starts a span for one handler delivery.
	StartDeliverySpan(ctx context.Context, channel, eventName, registrationID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartPostSpan starts a span for a post.
func (m *otelSpanManager) StartPostSpan(ctx context.Context, channel, eventName string) (context.Context, trace.Span) {
	return StartPostSpan(ctx, channel, eventName)
}

// StartDeliverySpan starts a span for a handler delivery.
func (m *otelSpanManager) StartDeliverySpan(ctx context.Context, channel, eventName, registrationID string) (context.Context, trace.Span) {
	return StartDeliverySpan(ctx, channel, eventName, registrationID)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// Convenience functions that operate on the global tracer.
// These are useful for simple cases where you don't need the interface.

// StartPostSpan starts a span for a post.
// Uses the global OTel tracer.
func StartPostSpan(ctx context.Context, channel, eventName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventdispatch.post",
		trace.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("event", eventName),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartDeliverySpan starts a span for one handler delivery.
// Uses the global OTel tracer.
func StartDeliverySpan(ctx context.Context, channel, eventName, registrationID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventdispatch.deliver",
		trace.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("event", eventName),
			attribute.String("registration_id", registrationID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
