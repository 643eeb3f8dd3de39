package eventlog

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyEventsTableName is returned when an empty events table name is supplied.
	ErrEmptyEventsTableName = errors.New("empty events table name supplied")

	// ErrNilDatabaseConnection is returned when a nil database connection is supplied.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrConcurrencyConflict is the sentinel for optimistic-concurrency failures.
	// Engines return a *ConflictError which matches this sentinel via errors.Is.
	ErrConcurrencyConflict = errors.New("concurrency conflict, expected stream version does not match tail")

	// ErrStorageUnavailable marks transient infrastructure failures that callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrQueryingEventsFailed is returned when reading a stream fails.
	ErrQueryingEventsFailed = errors.New("querying events failed")

	// ErrAppendingEventFailed is returned when an append operation fails.
	ErrAppendingEventFailed = errors.New("appending event failed")

	// ErrScanningDBRowFailed is returned when scanning a database row fails.
	ErrScanningDBRowFailed = errors.New("scanning database row failed")

	// ErrBuildingQueryFailed is returned when SQL query construction fails.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrGettingRowsAffectedFailed is returned when the affected row count cannot be read.
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")

	// ErrBuildingStorableEventFailed is returned when a stored row cannot be
	// converted back into a StorableEvent.
	ErrBuildingStorableEventFailed = errors.New("building storable event failed")
)

// StreamVersionUint is a type alias for uint, representing a position in one
// subject's stream. Versions are gapless and start at 1; 0 means "no events".
type StreamVersionUint = uint

// NoStreamVersionCheck disables the optimistic-concurrency check on Append,
// making the engine append at the current tail unconditionally.
const NoStreamVersionCheck StreamVersionUint = ^StreamVersionUint(0)

// ConflictError reports an optimistic-concurrency failure. It carries the
// actual tail version at the time of the conflict so the caller can re-read
// and retry with an up-to-date expectation.
type ConflictError struct {
	SubjectID string
	Expected  StreamVersionUint
	Actual    StreamVersionUint
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"concurrency conflict on subject %s: expected version %d, actual version %d",
		e.SubjectID, e.Expected, e.Actual,
	)
}

// Is makes ConflictError match the ErrConcurrencyConflict sentinel.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}
