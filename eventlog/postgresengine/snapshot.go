package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/vivecare/clinstream/eventlog"
)

// SaveSnapshot stores or replaces a projection snapshot keyed by
// (projection_type, subject_key).
func (es *EventStore) SaveSnapshot(ctx context.Context, snapshot eventlog.Snapshot) error {
	if validateErr := snapshot.Validate(); validateErr != nil {
		return validateErr
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(es.snapshotTableName).
		Cols(colProjectionType, colSubjectKey, colStreamVersion, colData, colCreatedAt).
		Vals(goqu.Vals{
			snapshot.ProjectionType,
			snapshot.SubjectKey,
			int64(snapshot.StreamVersion),
			[]byte(snapshot.Data),
			snapshot.CreatedAt,
		}).
		OnConflict(goqu.DoUpdate(
			colProjectionType+","+colSubjectKey,
			goqu.Record{
				colStreamVersion: int64(snapshot.StreamVersion),
				colData:          []byte(snapshot.Data),
				colCreatedAt:     snapshot.CreatedAt,
			},
		)).
		ToSQL()
	if toSQLErr != nil {
		return errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	_, execErr := es.db.Exec(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, logActionSaveSnapshot, time.Since(start))

	if execErr != nil {
		es.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(eventlog.ErrSavingSnapshotFailed, execErr)
	}

	return nil
}

// LoadSnapshot returns the stored snapshot for the projection and subject, or
// nil when none exists.
func (es *EventStore) LoadSnapshot(ctx context.Context, projectionType string, subjectKey string) (*eventlog.Snapshot, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(es.snapshotTableName).
		Select(colStreamVersion, colData, colCreatedAt).
		Where(goqu.Ex{
			colProjectionType: projectionType,
			colSubjectKey:     subjectKey,
		}).
		ToSQL()
	if toSQLErr != nil {
		return nil, errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	row := es.db.QueryRow(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, logActionLoadSnapshot, time.Since(start))

	var streamVersion int64
	var data []byte
	var createdAt time.Time

	scanErr := row.Scan(&streamVersion, &data, &createdAt)
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil
		}

		es.logError(ctx, logMsgScanRowFailed, scanErr)
		return nil, errors.Join(eventlog.ErrLoadingSnapshotFailed, scanErr)
	}

	return &eventlog.Snapshot{
		ProjectionType: projectionType,
		SubjectKey:     subjectKey,
		StreamVersion:  eventlog.StreamVersionUint(streamVersion),
		Data:           data,
		CreatedAt:      createdAt,
	}, nil
}

// DeleteSnapshot removes the stored snapshot for the projection and subject.
// Deleting a snapshot that does not exist is not an error.
func (es *EventStore) DeleteSnapshot(ctx context.Context, projectionType string, subjectKey string) error {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Delete(es.snapshotTableName).
		Where(goqu.Ex{
			colProjectionType: projectionType,
			colSubjectKey:     subjectKey,
		}).
		ToSQL()
	if toSQLErr != nil {
		return errors.Join(eventlog.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	_, execErr := es.db.Exec(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, logActionDeleteSnapshot, time.Since(start))

	if execErr != nil {
		es.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(eventlog.ErrDeletingSnapshotFailed, execErr)
	}

	return nil
}
