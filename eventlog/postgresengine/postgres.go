package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/vivecare/clinstream/eventlog"
	"github.com/vivecare/clinstream/eventlog/postgresengine/internal/adapters"
)

const (
	defaultEventTableName    = "events"
	defaultSnapshotTableName = "projection_snapshots"

	logMsgBuildSelectQueryFailed   = "failed to build select query"
	logMsgDBQueryFailed            = "database query execution failed"
	logMsgCloseRowsFailed          = "failed to close database rows"
	logMsgScanRowFailed            = "failed to scan database row"
	logMsgBuildStorableEventFailed = "failed to build storable event from database row"
	logMsgBuildInsertQueryFailed   = "failed to build insert query"
	logMsgDBExecFailed             = "database execution failed during event append"
	logMsgRowsAffectedFailed       = "failed to get rows affected count"
	logMsgReadCompleted            = "stream read completed"
	logMsgEventsAppended           = "events appended"
	logMsgConcurrencyConflict      = "concurrency conflict detected"
	logMsgSQLExecuted              = "executed sql for: "
	logMsgOperation                = "streamstore operation: "

	logAttrError            = "error"
	logAttrQuery            = "query"
	logAttrSubjectID        = "subject_id"
	logAttrEventCount       = "event_count"
	logAttrDurationMS       = "duration_ms"
	logAttrExpectedEvents   = "expected_events"
	logAttrRowsAffected     = "rows_affected"
	logAttrExpectedVersion  = "expected_version"
	logActionRead           = "read"
	logActionAppend         = "append"
	logActionTailVersion    = "tail_version"
	logActionSubjects       = "subjects"
	logActionSaveSnapshot   = "save_snapshot"
	logActionLoadSnapshot   = "load_snapshot"
	logActionDeleteSnapshot = "delete_snapshot"

	colSubjectID     = "subject_id"
	colStreamVersion = "stream_version"
	colEventType     = "event_type"
	colOccurredAt    = "occurred_at"
	colPayload       = "payload"
	colMetadata      = "metadata"

	colProjectionType = "projection_type"
	colSubjectKey     = "subject_key"
	colData           = "data"
	colCreatedAt      = "created_at"

	cteTail          = "tail"
	cteVals          = "vals"
	aliasTailVersion = "tail_version"
	colOrdinal       = "ordinal"
	dialectPostgres  = "postgres"

	castText      = "?::text"
	castTimestamp = "?::timestamp with time zone"
	castJsonb     = "?::jsonb"
	castBigint    = "?::bigint"
)

type (
	sqlQueryString    = string
	rowsAffectedInt64 = int64
	queryDuration     = time.Duration
)

// EventStore is a Postgres-backed stream store for the per-subject,
// append-only clinical event log. Streams are keyed by subject_id and carry
// a gapless stream_version assigned inside the append statement, so the
// optimistic-concurrency check and the version assignment are one atomic
// INSERT guarded by a tail-version CTE.
//
// It leverages a database adapter and supports customizable logging, metrics,
// tracing, and table configuration.
type EventStore struct {
	db                adapters.DBAdapter
	eventTableName    string
	snapshotTableName string
	logger            Logger
	metricsCollector  MetricsCollector
	tracingCollector  TracingCollector
	contextualLogger  ContextualLogger
}

type queryResultRow struct {
	eventType     string
	subjectID     string
	occurredAt    time.Time
	payload       []byte
	metadata      []byte
	streamVersion int64
}

// NewEventStoreFromPGXPool creates a new EventStore using a pgx Pool with optional configuration.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventlog.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapter(db), options...)
}

// NewEventStoreFromPGXPoolWithReplica creates a new EventStore using a primary
// pgx Pool and a replica pool for eventually-consistent reads.
func NewEventStoreFromPGXPoolWithReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil || replica == nil {
		return nil, eventlog.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapterWithReplica(db, replica), options...)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB with optional configuration.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventlog.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLAdapter(db), options...)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB with optional configuration.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventlog.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXAdapter(db), options...)
}

func newEventStore(db adapters.DBAdapter, options ...Option) (*EventStore, error) {
	es := &EventStore{
		db:                db,
		eventTableName:    defaultEventTableName,
		snapshotTableName: defaultSnapshotTableName,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// Append appends the given events to the subject's stream iff expectedVersion
// matches the current tail version. With eventlog.NoStreamVersionCheck the
// append lands at the tail unconditionally.
//
// On a version mismatch it returns a *eventlog.ConflictError carrying the
// actual tail version; the caller must re-read and retry with an up-to-date
// expectation, or omit the check. Returns the tail version after the append.
func (es *EventStore) Append(
	ctx context.Context,
	subjectID string,
	expectedVersion eventlog.StreamVersionUint,
	events ...eventlog.StorableEvent,
) (eventlog.StreamVersionUint, error) {

	if subjectID == "" {
		return 0, eventlog.ErrEmptySubjectID
	}

	if len(events) == 0 {
		return 0, errors.Join(eventlog.ErrAppendingEventFailed, errors.New("no events supplied"))
	}

	ctx, span := es.startSpan(ctx, "eventlog.append", subjectID)

	sqlQuery, buildQueryErr := es.buildAppendQuery(subjectID, events, expectedVersion)
	if buildQueryErr != nil {
		es.finishSpan(span, statusError)
		return 0, buildQueryErr
	}

	rowsAffected, duration, execErr := es.executeAppendQuery(ctx, sqlQuery)
	if execErr != nil {
		es.finishSpan(span, statusError)
		return 0, execErr
	}

	if rowsAffected < int64(len(events)) {
		actual, tailErr := es.TailVersion(eventlog.WithStrongConsistency(ctx), subjectID)
		if tailErr != nil {
			es.finishSpan(span, statusError)
			return 0, tailErr
		}

		es.logOperation(ctx,
			logMsgConcurrencyConflict,
			logAttrSubjectID, subjectID,
			logAttrExpectedEvents, len(events),
			logAttrRowsAffected, rowsAffected,
			logAttrExpectedVersion, expectedVersion,
		)
		es.recordConflictMetrics(ctx)
		es.finishSpan(span, statusConflict)

		return 0, &eventlog.ConflictError{SubjectID: subjectID, Expected: expectedVersion, Actual: actual}
	}

	newTail := expectedVersion + eventlog.StreamVersionUint(len(events))
	if expectedVersion == eventlog.NoStreamVersionCheck {
		var tailErr error
		newTail, tailErr = es.TailVersion(eventlog.WithStrongConsistency(ctx), subjectID)
		if tailErr != nil {
			es.finishSpan(span, statusError)
			return 0, tailErr
		}
	}

	es.logOperation(ctx,
		logMsgEventsAppended,
		logAttrSubjectID, subjectID,
		logAttrEventCount, len(events),
		logAttrDurationMS, es.toMilliseconds(duration),
	)
	es.recordAppendMetrics(ctx, duration, len(events))
	es.finishSpan(span, statusSuccess)

	return newTail, nil
}

// Read retrieves the subject's events with a stream version greater than
// fromVersion, in version order, up to limit events (limit <= 0 means no
// limit). A fromVersion beyond the tail yields an empty result, not an error.
func (es *EventStore) Read(
	ctx context.Context,
	subjectID string,
	fromVersion eventlog.StreamVersionUint,
	limit int,
) (eventlog.RecordedEvents, error) {

	var empty eventlog.RecordedEvents

	ctx, span := es.startSpan(ctx, "eventlog.read", subjectID)
	defer es.finishSpan(span, statusSuccess)

	sqlQuery, buildQueryErr := es.buildSelectQuery(subjectID, fromVersion, limit)
	if buildQueryErr != nil {
		es.logError(ctx, logMsgBuildSelectQueryFailed, buildQueryErr)
		return empty, buildQueryErr
	}

	rows, duration, queryErr := es.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		return empty, queryErr
	}
	defer es.closeRows(ctx, rows)

	recorded, scanErr := es.processQueryResults(ctx, rows)
	if scanErr != nil {
		return empty, scanErr
	}

	es.logOperation(ctx,
		logMsgReadCompleted,
		logAttrSubjectID, subjectID,
		logAttrEventCount, len(recorded),
		logAttrDurationMS, es.toMilliseconds(duration),
	)
	es.recordReadMetrics(ctx, duration, len(recorded))

	return recorded, nil
}

// TailVersion returns the current stream length for the subject; 0 for a
// non-existent stream.
func (es *EventStore) TailVersion(ctx context.Context, subjectID string) (eventlog.StreamVersionUint, error) {
	sqlQuery, buildQueryErr := es.buildTailVersionQuery(subjectID)
	if buildQueryErr != nil {
		return 0, buildQueryErr
	}

	start := time.Now()
	row := es.db.QueryRow(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, logActionTailVersion, time.Since(start))

	var tail int64
	if scanErr := row.Scan(&tail); scanErr != nil {
		es.logError(ctx, logMsgScanRowFailed, scanErr)
		return 0, errors.Join(eventlog.ErrQueryingEventsFailed, scanErr)
	}

	return eventlog.StreamVersionUint(tail), nil
}

// Subjects returns all subject IDs that have at least one event, sorted.
func (es *EventStore) Subjects(ctx context.Context) ([]string, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		SelectDistinct(colSubjectID).
		Order(goqu.I(colSubjectID).Asc()).
		ToSQL()
	if toSQLErr != nil {
		return nil, errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, logActionSubjects, time.Since(start))

	if queryErr != nil {
		es.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(eventlog.ErrQueryingEventsFailed, queryErr)
	}
	defer es.closeRows(ctx, rows)

	subjects := make([]string, 0)
	for rows.Next() {
		var subjectID string
		if scanErr := rows.Scan(&subjectID); scanErr != nil {
			es.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(eventlog.ErrScanningDBRowFailed, scanErr)
		}
		subjects = append(subjects, subjectID)
	}

	return subjects, nil
}

// executeQuery executes the SQL query and returns rows with timing information.
func (es *EventStore) executeQuery(ctx context.Context, sqlQuery string) (
	adapters.DBRows,
	time.Duration,
	error,
) {

	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, logActionRead, duration)

	if queryErr != nil {
		es.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, duration, errors.Join(eventlog.ErrQueryingEventsFailed, queryErr)
	}

	return rows, duration, nil
}

// closeRows safely closes database rows and logs any errors.
func (es *EventStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		es.logWarn(ctx, logMsgCloseRowsFailed, closeErr)
	}
}

// processQueryResults converts database rows into recorded events.
func (es *EventStore) processQueryResults(ctx context.Context, rows adapters.DBRows) (
	eventlog.RecordedEvents,
	error,
) {

	result := queryResultRow{}
	recorded := make(eventlog.RecordedEvents, 0)

	for rows.Next() {
		rowScanErr := rows.Scan(
			&result.eventType,
			&result.subjectID,
			&result.occurredAt,
			&result.payload,
			&result.metadata,
			&result.streamVersion,
		)
		if rowScanErr != nil {
			es.logError(ctx, logMsgScanRowFailed, rowScanErr)
			return nil, errors.Join(eventlog.ErrScanningDBRowFailed, rowScanErr)
		}

		event, buildStorableErr := eventlog.BuildStorableEvent(
			result.eventType,
			result.subjectID,
			result.occurredAt,
			result.payload,
			result.metadata,
		)
		if buildStorableErr != nil {
			es.logError(ctx, logMsgBuildStorableEventFailed, buildStorableErr)
			return nil, errors.Join(eventlog.ErrBuildingStorableEventFailed, buildStorableErr)
		}

		recorded = append(recorded, eventlog.RecordedEvent{
			StorableEvent: event,
			StreamVersion: eventlog.StreamVersionUint(result.streamVersion),
		})
	}

	return recorded, nil
}

// executeAppendQuery executes the SQL append query and returns rows affected and duration.
func (es *EventStore) executeAppendQuery(ctx context.Context, sqlQuery string) (
	rowsAffectedInt64,
	queryDuration,
	error,
) {

	start := time.Now()
	tag, execErr := es.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, logActionAppend, duration)

	if execErr != nil {
		es.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, duration, errors.Join(eventlog.ErrAppendingEventFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := tag.RowsAffected()
	if rowsAffectedErr != nil {
		es.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, duration, errors.Join(eventlog.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, duration, nil
}

func (es *EventStore) buildSelectQuery(
	subjectID string,
	fromVersion eventlog.StreamVersionUint,
	limit int,
) (sqlQueryString, error) {

	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Select(colEventType, colSubjectID, colOccurredAt, colPayload, colMetadata, colStreamVersion).
		Where(
			goqu.Ex{colSubjectID: subjectID},
			goqu.C(colStreamVersion).Gt(int64(fromVersion)),
		).
		Order(goqu.I(colStreamVersion).Asc())

	if limit > 0 {
		selectStmt = selectStmt.Limit(uint(limit))
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *EventStore) buildTailVersionQuery(subjectID string) (sqlQueryString, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Select(goqu.COALESCE(goqu.MAX(colStreamVersion), 0)).
		Where(goqu.Ex{colSubjectID: subjectID}).
		ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildAppendQuery builds the version-guarded insert for single or multiple events.
func (es *EventStore) buildAppendQuery(
	subjectID string,
	events eventlog.StorableEvents,
	expectedVersion eventlog.StreamVersionUint,
) (sqlQueryString, error) {

	var sqlQuery sqlQueryString
	var buildQueryErr error

	switch len(events) {
	case 1:
		sqlQuery, buildQueryErr = es.buildInsertQueryForSingleEvent(subjectID, events[0], expectedVersion)

	default:
		sqlQuery, buildQueryErr = es.buildInsertQueryForMultipleEvents(subjectID, events, expectedVersion)
	}

	if buildQueryErr != nil {
		es.logError(context.Background(), logMsgBuildInsertQueryFailed, buildQueryErr, logAttrEventCount, len(events))
		return "", buildQueryErr
	}

	return sqlQuery, nil
}

// tailCTE computes the subject's current tail version; the insert's SELECT
// joins against it so the guard and the version assignment share one statement.
func (es *EventStore) tailCTE(subjectID string) *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Select(goqu.COALESCE(goqu.MAX(colStreamVersion), 0).As(aliasTailVersion)).
		Where(goqu.Ex{colSubjectID: subjectID})
}

func (es *EventStore) buildInsertQueryForSingleEvent(
	subjectID string,
	event eventlog.StorableEvent,
	expectedVersion eventlog.StreamVersionUint,
) (sqlQueryString, error) {

	builder := goqu.Dialect(dialectPostgres)

	selectStmt := builder.
		From(cteTail).
		Select(
			goqu.V(subjectID),
			goqu.L("? + 1", goqu.C(aliasTailVersion)),
			goqu.V(event.EventType),
			goqu.V(event.OccurredAt),
			goqu.V(event.PayloadJSON),
			goqu.V(event.MetadataJSON),
		)

	if expectedVersion != eventlog.NoStreamVersionCheck {
		selectStmt = selectStmt.Where(goqu.C(aliasTailVersion).Eq(goqu.V(int64(expectedVersion))))
	}

	insertStmt := builder.
		Insert(es.eventTableName).
		Cols(colSubjectID, colStreamVersion, colEventType, colOccurredAt, colPayload, colMetadata).
		FromQuery(selectStmt).
		With(cteTail, es.tailCTE(subjectID))

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *EventStore) buildInsertQueryForMultipleEvents(
	subjectID string,
	events eventlog.StorableEvents,
	expectedVersion eventlog.StreamVersionUint,
) (sqlQueryString, error) {

	builder := goqu.Dialect(dialectPostgres)

	// Each event becomes one SELECT with its ordinal; tail_version + ordinal
	// yields gapless consecutive versions for the whole batch.
	unionStatements := make([]*goqu.SelectDataset, len(events))
	for i, event := range events {
		unionStatements[i] = builder.
			Select(
				goqu.L(castText, event.EventType).As(colEventType),
				goqu.L(castTimestamp, event.OccurredAt).As(colOccurredAt),
				goqu.L(castJsonb, event.PayloadJSON).As(colPayload),
				goqu.L(castJsonb, event.MetadataJSON).As(colMetadata),
				goqu.L(castBigint, i+1).As(colOrdinal),
			)
	}

	valuesStmt := unionStatements[0]
	for i := 1; i < len(unionStatements); i++ {
		valuesStmt = valuesStmt.UnionAll(unionStatements[i])
	}

	selectStmt := builder.
		From(cteTail, cteVals).
		Select(
			goqu.V(subjectID),
			goqu.L("? + ?", goqu.C(aliasTailVersion), goqu.I(cteVals+"."+colOrdinal)),
			goqu.I(cteVals+"."+colEventType),
			goqu.I(cteVals+"."+colOccurredAt),
			goqu.I(cteVals+"."+colPayload),
			goqu.I(cteVals+"."+colMetadata),
		)

	if expectedVersion != eventlog.NoStreamVersionCheck {
		selectStmt = selectStmt.Where(goqu.C(aliasTailVersion).Eq(goqu.V(int64(expectedVersion))))
	}

	insertStmt := builder.
		Insert(es.eventTableName).
		Cols(colSubjectID, colStreamVersion, colEventType, colOccurredAt, colPayload, colMetadata).
		With(cteTail, es.tailCTE(subjectID)).
		With(cteVals, valuesStmt).
		FromQuery(selectStmt)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}
