// Package checkpoint defines durable projector cursors and the dead-letter
// record, plus the Store interface their engines implement.
//
// A checkpoint marks the last stream version a projector has applied for one
// subject; projectors resume from it after restarts and rebuild from zero by
// deleting it. The store is deliberately dumb: apply-then-checkpoint ordering
// is the projection runner's job.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/vivecare/clinstream/eventlog"
)

var (
	// ErrEmptyProjectorID is returned when a projector ID is missing.
	ErrEmptyProjectorID = errors.New("projector id must not be empty")

	// ErrEmptySubjectID is returned when a subject ID is missing.
	ErrEmptySubjectID = errors.New("subject id must not be empty")

	// ErrSavingCheckpointFailed is returned when persisting a checkpoint fails.
	ErrSavingCheckpointFailed = errors.New("saving checkpoint failed")

	// ErrLoadingCheckpointFailed is returned when reading checkpoints fails.
	ErrLoadingCheckpointFailed = errors.New("loading checkpoint failed")

	// ErrDeletingCheckpointFailed is returned when deleting checkpoints fails.
	ErrDeletingCheckpointFailed = errors.New("deleting checkpoint failed")

	// ErrRecordingDeadLetterFailed is returned when persisting a dead letter fails.
	ErrRecordingDeadLetterFailed = errors.New("recording dead letter failed")

	// ErrLoadingDeadLettersFailed is returned when reading dead letters fails.
	ErrLoadingDeadLettersFailed = errors.New("loading dead letters failed")
)

// Checkpoint is one projector's durable cursor into one subject's stream.
type Checkpoint struct {
	ProjectorID        string
	SubjectID          string
	LastAppliedVersion eventlog.StreamVersionUint
	UpdatedAt          time.Time
}

// DeadLetter records a batch a projector could not apply within the retry
// bound. The cursor advances past it so later batches for the same subject
// keep flowing; the record is the monitoring surface for the skipped range.
type DeadLetter struct {
	ProjectorID string
	SubjectID   string
	FromVersion eventlog.StreamVersionUint
	ToVersion   eventlog.StreamVersionUint
	Attempts    int
	Reason      string
	FailedAt    time.Time
}

// Store persists checkpoints and dead letters per projector.
type Store interface {
	// Load returns the checkpoint for (projectorID, subjectID); found is false
	// when none has been saved yet.
	Load(ctx context.Context, projectorID string, subjectID string) (cp Checkpoint, found bool, err error)

	// LoadAll returns all checkpoints for the projector, sorted by subject.
	LoadAll(ctx context.Context, projectorID string) ([]Checkpoint, error)

	// Save stores or replaces the checkpoint.
	Save(ctx context.Context, cp Checkpoint) error

	// Delete removes the checkpoint for (projectorID, subjectID).
	// Deleting a missing checkpoint is not an error.
	Delete(ctx context.Context, projectorID string, subjectID string) error

	// DeleteAll removes every checkpoint for the projector.
	DeleteAll(ctx context.Context, projectorID string) error

	// RecordDeadLetter appends a dead-letter record.
	RecordDeadLetter(ctx context.Context, letter DeadLetter) error

	// DeadLetters returns the projector's dead letters, newest first,
	// up to limit (limit <= 0 means no limit).
	DeadLetters(ctx context.Context, projectorID string, limit int) ([]DeadLetter, error)

	// DeadLetterCount returns the number of dead letters for the projector.
	DeadLetterCount(ctx context.Context, projectorID string) (int, error)
}
