package eventlog

import (
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrInvalidSnapshotJSON is returned when snapshot JSON data is malformed or invalid.
	ErrInvalidSnapshotJSON = errors.New("snapshot json is not valid")

	// ErrEmptyProjectionType is returned when an empty projection type is provided.
	ErrEmptyProjectionType = errors.New("projection type must not be empty")

	// ErrSavingSnapshotFailed is returned when the snapshot save operation fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")

	// ErrLoadingSnapshotFailed is returned when the snapshot load operation fails.
	ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")

	// ErrDeletingSnapshotFailed is returned when the snapshot delete operation fails.
	ErrDeletingSnapshotFailed = errors.New("deleting snapshot failed")
)

// Snapshot represents stored projection state with metadata for incremental
// catch-up. It contains the serialized materialized view along with the stream
// version of the last folded event, so a projector can resume from here
// instead of replaying the full log.
//
// Snapshot cadence is a performance tunable, not a correctness requirement:
// a rebuild from version 0 must always produce the same view.
type Snapshot struct {
	ProjectionType string            // Projector identity (e.g. "adherence")
	SubjectKey     string            // Subject the snapshot covers; empty for whole-projection snapshots
	StreamVersion  StreamVersionUint // Last folded stream version
	Data           json.RawMessage   // Serialized materialized view as JSON
	CreatedAt      time.Time         // When this snapshot was created/updated
}

// Validate ensures the snapshot has valid data for storage operations.
func (s Snapshot) Validate() error {
	if s.ProjectionType == "" {
		return ErrEmptyProjectionType
	}

	if !jsoniter.ConfigFastest.Valid(s.Data) {
		return ErrInvalidSnapshotJSON
	}

	return nil
}

// BuildSnapshot creates a new Snapshot with validation.
func BuildSnapshot(
	projectionType string,
	subjectKey string,
	streamVersion StreamVersionUint,
	data json.RawMessage,
) (Snapshot, error) {

	snapshot := Snapshot{
		ProjectionType: projectionType,
		SubjectKey:     subjectKey,
		StreamVersion:  streamVersion,
		Data:           data,
		CreatedAt:      time.Now(),
	}

	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}
