// Package observability provides production-grade observability features
// for eventdispatch: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds dispatch context to a logger.
// Returns a new logger with a channel field.
//
// Example:
//
//	enriched := EnrichLogger(logger, "telemetry")
//	enriched.Info("posting") // includes channel
func EnrichLogger(logger *slog.Logger, channel string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("channel", channel),
	)
}

// LogEventPosted logs a posted event along with the resulting queue depth.
func LogEventPosted(logger *slog.Logger, channel, name string, id int64, queueDepth int) {
	if logger == nil {
		return
	}
	logger.Debug("event posted",
		slog.String("channel", channel),
		slog.String("event", name),
		slog.Int64("event_id", id),
		slog.Int("queue_depth", queueDepth),
	)
}

// LogNoHandlers logs an event that was not propagated because nothing is
// registered for it.
func LogNoHandlers(logger *slog.Logger, channel, name string) {
	if logger == nil {
		return
	}
	logger.Debug("not propagating event, no handlers",
		slog.String("channel", channel),
		slog.String("event", name),
	)
}

// LogDelivered logs a completed delivery.
func LogDelivered(logger *slog.Logger, channel, name, registrationID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event delivered",
		slog.String("channel", channel),
		slog.String("event", name),
		slog.String("registration_id", registrationID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDeliveryError logs a handler failure. Delivery errors never propagate to
// the poster, so the log record is the only trace of them.
func LogDeliveryError(logger *slog.Logger, channel, name, registrationID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler failed",
		slog.String("channel", channel),
		slog.String("event", name),
		slog.String("registration_id", registrationID),
		slog.String("error", err.Error()),
	)
}

// LogRegistered logs a net registration change.
func LogRegistered(logger *slog.Logger, channel, registrationID string, names []string) {
	if logger == nil {
		return
	}
	logger.Debug("handler registered",
		slog.String("channel", channel),
		slog.String("registration_id", registrationID),
		slog.Any("events", names),
	)
}

// LogUnregistered logs a net unregistration change.
func LogUnregistered(logger *slog.Logger, channel, registrationID string, names []string) {
	if logger == nil {
		return
	}
	logger.Debug("handler unregistered",
		slog.String("channel", channel),
		slog.String("registration_id", registrationID),
		slog.Any("events", names),
	)
}

// LogMappingCreated logs a new event map.
func LogMappingCreated(logger *slog.Logger, channel, key string, watched []string) {
	if logger == nil {
		return
	}
	logger.Debug("event mapping created",
		slog.String("channel", channel),
		slog.String("key", key),
		slog.Any("watched", watched),
	)
}

// LogMappingIgnored logs a mapping request skipped because the key already exists.
func LogMappingIgnored(logger *slog.Logger, channel, key string) {
	if logger == nil {
		return
	}
	logger.Debug("ignoring event mapping request, mapping already exists",
		slog.String("channel", channel),
		slog.String("key", key),
	)
}

// LogMappingTriggered logs a satisfied event map.
func LogMappingTriggered(logger *slog.Logger, channel, key string) {
	if logger == nil {
		return
	}
	logger.Debug("event mapping triggered",
		slog.String("channel", channel),
		slog.String("key", key),
	)
}

// LogMappingRemoved logs removal of an event map.
func LogMappingRemoved(logger *slog.Logger, channel, key string) {
	if logger == nil {
		return
	}
	logger.Debug("event mapping removed",
		slog.String("channel", channel),
		slog.String("key", key),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
