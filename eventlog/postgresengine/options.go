package postgresengine

import (
	"github.com/vivecare/clinstream/eventlog"
)

// Logger interface for SQL query logging, operational messages, warnings, and error reporting.
type Logger = eventlog.Logger

// MetricsCollector interface for collecting EventStore performance and operational metrics.
type MetricsCollector = eventlog.MetricsCollector

// ContextualMetricsCollector extends MetricsCollector with context-aware variants
// that can correlate metrics with active traces.
type ContextualMetricsCollector = eventlog.ContextualMetricsCollector

// SpanContext represents an active tracing span that can be finished and updated with attributes.
type SpanContext = eventlog.SpanContext

// TracingCollector interface for collecting distributed tracing information from EventStore operations.
type TracingCollector = eventlog.TracingCollector

// ContextualLogger interface for context-aware logging with automatic trace correlation.
type ContextualLogger = eventlog.ContextualLogger

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore) error

// WithTableName sets the events table name for the EventStore.
func WithTableName(tableName string) Option {
	return func(es *EventStore) error {
		if tableName == "" {
			return eventlog.ErrEmptyEventsTableName
		}

		es.eventTableName = tableName

		return nil
	}
}

// WithSnapshotTableName sets the projection snapshot table name for the EventStore.
func WithSnapshotTableName(tableName string) Option {
	return func(es *EventStore) error {
		if tableName == "" {
			return eventlog.ErrEmptyEventsTableName
		}

		es.snapshotTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the EventStore.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Event counts, durations, concurrency conflicts (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(es *EventStore) error {
		es.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the EventStore.
// The collector will receive performance and operational metrics including
// query/append durations, event counts, concurrency conflicts, and database errors.
func WithMetrics(collector MetricsCollector) Option {
	return func(es *EventStore) error {
		es.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the EventStore.
// The tracing collector will receive distributed tracing information including
// span creation for read/append operations, context propagation, and error tracking.
func WithTracing(collector TracingCollector) Option {
	return func(es *EventStore) error {
		es.tracingCollector = collector
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the EventStore.
// The contextual logger will receive log messages with context information including
// automatic trace/span correlation when tracing is enabled.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(es *EventStore) error {
		es.contextualLogger = logger
		return nil
	}
}
