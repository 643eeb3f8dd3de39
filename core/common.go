package core

import (
	"time"
)

// Instead of implementing full value objects, some alias types and helper methods are used here ...

// SubjectIDString represents a patient/stream-owner identifier
type SubjectIDString = string

// SessionIDString represents an exercise session identifier
type SessionIDString = string

// ExerciseIDString represents an exercise identifier
type ExerciseIDString = string

// TherapistIDString represents a therapist identifier
type TherapistIDString = string

// AlertIDString represents an alert identifier
type AlertIDString = string

// ConsentIDString represents a consent record identifier
type ConsentIDString = string

// EventTypeString represents an event type identifier
type EventTypeString = string

// OccurredAtTS represents when an event occurred
type OccurredAtTS = time.Time

// ToOccurredAt converts a time to OccurredAtTS with UTC normalization and microsecond precision
func ToOccurredAt(t time.Time) OccurredAtTS {
	return t.UTC().Truncate(time.Microsecond)
}

// EventMeta carries the clinical bookkeeping attached to every event. It is
// opaque to storage and travels untouched from ingestion to projections.
type EventMeta struct {
	PHI           bool
	ConsentID     ConsentIDString
	SchemaVersion string
	RecordedAt    time.Time
	Source        string
}

// BuildEventMeta creates EventMeta with RecordedAt normalized like event timestamps.
func BuildEventMeta(phi bool, consentID ConsentIDString, schemaVersion string, recordedAt time.Time, source string) EventMeta {
	return EventMeta{
		PHI:           phi,
		ConsentID:     consentID,
		SchemaVersion: schemaVersion,
		RecordedAt:    ToOccurredAt(recordedAt),
		Source:        source,
	}
}
