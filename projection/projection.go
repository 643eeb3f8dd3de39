package projection

import (
	"context"
	"errors"

	"github.com/vivecare/clinstream/eventlog"
	"github.com/vivecare/clinstream/shell"
)

// Projection names, used as projector IDs, checkpoint keys, and query targets.
const (
	AdherenceProjection      = "adherence"
	QualityProjection        = "quality"
	WorkQueueProjection      = "work_queue"
	PatientSummaryProjection = "patient_summary"
)

var (
	// ErrInvalidQuery is returned for an unknown projection name or a query
	// missing a required filter. Never retried.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrProjectorFailure is returned when applying a batch to a projector fails.
	ErrProjectorFailure = errors.New("projector failure")
)

// Query carries the filters accepted by projection queries. Which fields are
// required depends on the projection: adherence and patient summary need a
// subject, quality needs subject plus exercise, work queue needs a therapist.
type Query struct {
	SubjectID   string
	ExerciseID  string
	TherapistID string
}

// View is the result of a projection query. The concrete type depends on the
// projection queried.
type View = any

// InvalidQueryError reports which filter made a query invalid.
type InvalidQueryError struct {
	Projection string
	Filter     string
	Reason     string
}

// Error implements the error interface.
func (e *InvalidQueryError) Error() string {
	return "invalid query for projection " + e.Projection + ": " + e.Filter + ": " + e.Reason
}

// Is lets errors.Is match any InvalidQueryError against ErrInvalidQuery.
func (e *InvalidQueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// State is the pure fold a projector maintains. Apply mutates the state with
// one envelope; ResetSubject drops everything derived from one subject so it
// can be re-derived from scratch. Implementations need no internal locking,
// the Runner serializes access.
type State interface {
	Apply(env shell.Envelope)
	ResetSubject(subjectID string)
}

// SnapshotState is optionally implemented by states that can serialize their
// per-subject slice for snapshot-accelerated hydration.
type SnapshotState interface {
	State
	SnapshotSubject(subjectID string) ([]byte, error)
	RestoreSubject(subjectID string, data []byte) error
}

// EventStore is the read surface of the stream store a projector needs.
type EventStore interface {
	Read(ctx context.Context, subjectID string, fromVersion eventlog.StreamVersionUint, limit int) (eventlog.RecordedEvents, error)
	TailVersion(ctx context.Context, subjectID string) (eventlog.StreamVersionUint, error)
	Subjects(ctx context.Context) ([]string, error)
}

// SnapshotStore persists per-subject projection snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot eventlog.Snapshot) error
	LoadSnapshot(ctx context.Context, projectionType string, subjectKey string) (*eventlog.Snapshot, error)
	DeleteSnapshot(ctx context.Context, projectionType string, subjectKey string) error
}
