package postgresengine

import (
	"context"
	"math"
	"time"
)

const (
	statusSuccess  = "success"
	statusError    = "error"
	statusConflict = "concurrency_conflict"

	metricAppendDuration       = "eventlog_append_duration_seconds"
	metricReadDuration         = "eventlog_read_duration_seconds"
	metricEventsAppended       = "eventlog_events_appended_total"
	metricEventsRead           = "eventlog_events_read_total"
	metricConcurrencyConflicts = "eventlog_concurrency_conflicts_total"

	spanAttrOperation  = "operation"
	spanAttrSubjectID  = "subject_id"
	labelStatus        = "status"
	labelConflictType  = "conflict_type"
	conflictTypeValue  = "concurrency"
	operationAppendVal = "append"
	operationReadVal   = "read"
)

// logQueryWithDuration logs SQL queries with execution time at debug level if a logger is configured.
func (es *EventStore) logQueryWithDuration(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {
	switch {
	case es.contextualLogger != nil:
		es.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action,
			logAttrDurationMS, es.toMilliseconds(duration), logAttrQuery, sqlQuery)

	case es.logger != nil:
		es.logger.Debug(logMsgSQLExecuted+action,
			logAttrDurationMS, es.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (es *EventStore) logOperation(ctx context.Context, action string, args ...any) {
	switch {
	case es.contextualLogger != nil:
		es.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)

	case es.logger != nil:
		es.logger.Info(logMsgOperation+action, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (es *EventStore) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	switch {
	case es.contextualLogger != nil:
		es.contextualLogger.ErrorContext(ctx, message, allArgs...)

	case es.logger != nil:
		es.logger.Error(message, allArgs...)
	}
}

// logWarn logs non-critical issues at warn level if a logger is configured.
func (es *EventStore) logWarn(ctx context.Context, message string, err error) {
	switch {
	case es.contextualLogger != nil:
		es.contextualLogger.WarnContext(ctx, message, logAttrError, err.Error())

	case es.logger != nil:
		es.logger.Warn(message, logAttrError, err.Error())
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (es *EventStore) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordAppendMetrics records append duration and event count if the metrics collector is configured.
func (es *EventStore) recordAppendMetrics(ctx context.Context, duration time.Duration, eventCount int) {
	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operationAppendVal,
		labelStatus:       statusSuccess,
	}

	if contextual, ok := es.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricAppendDuration, duration, labels)
		contextual.RecordValueContext(ctx, metricEventsAppended, float64(eventCount), labels)
		return
	}

	es.metricsCollector.RecordDuration(metricAppendDuration, duration, labels)
	es.metricsCollector.RecordValue(metricEventsAppended, float64(eventCount), labels)
}

// recordReadMetrics records read duration and event count if the metrics collector is configured.
func (es *EventStore) recordReadMetrics(ctx context.Context, duration time.Duration, eventCount int) {
	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operationReadVal,
		labelStatus:       statusSuccess,
	}

	if contextual, ok := es.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricReadDuration, duration, labels)
		contextual.RecordValueContext(ctx, metricEventsRead, float64(eventCount), labels)
		return
	}

	es.metricsCollector.RecordDuration(metricReadDuration, duration, labels)
	es.metricsCollector.RecordValue(metricEventsRead, float64(eventCount), labels)
}

// recordConflictMetrics records a concurrency conflict if the metrics collector is configured.
func (es *EventStore) recordConflictMetrics(ctx context.Context) {
	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operationAppendVal,
		labelConflictType: conflictTypeValue,
	}

	if contextual, ok := es.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricConcurrencyConflicts, labels)
		return
	}

	es.metricsCollector.IncrementCounter(metricConcurrencyConflicts, labels)
}

// startSpan starts a tracing span if the tracing collector is configured.
func (es *EventStore) startSpan(ctx context.Context, name string, subjectID string) (context.Context, SpanContext) {
	if es.tracingCollector == nil {
		return ctx, nil
	}

	return es.tracingCollector.StartSpan(ctx, name, map[string]string{
		spanAttrSubjectID: subjectID,
	})
}

// finishSpan finishes a tracing span if one was started.
func (es *EventStore) finishSpan(span SpanContext, status string) {
	if es.tracingCollector == nil || span == nil {
		return
	}

	span.SetStatus(status)
	es.tracingCollector.FinishSpan(span, status, nil)
}
