package core

import (
	"time"
)

// ExerciseSessionCompletedEventType is the event type identifier.
const ExerciseSessionCompletedEventType = "ExerciseSessionCompleted"

// ExerciseSessionCompleted represents when a subject finishes a prescribed exercise session.
type ExerciseSessionCompleted struct {
	EventType       EventTypeString
	SubjectID       SubjectIDString
	SessionID       SessionIDString
	ExerciseID      ExerciseIDString
	Reps            int
	DurationSeconds int
	OccurredAt      OccurredAtTS
}

// BuildExerciseSessionCompleted creates a new ExerciseSessionCompleted event.
func BuildExerciseSessionCompleted(
	subjectID SubjectIDString,
	sessionID SessionIDString,
	exerciseID ExerciseIDString,
	reps int,
	durationSeconds int,
	occurredAt time.Time,
) ExerciseSessionCompleted {

	event := ExerciseSessionCompleted{
		EventType:       ExerciseSessionCompletedEventType,
		SubjectID:       subjectID,
		SessionID:       sessionID,
		ExerciseID:      exerciseID,
		Reps:            reps,
		DurationSeconds: durationSeconds,
		OccurredAt:      ToOccurredAt(occurredAt),
	}

	return event
}

// IsEventType returns the event type identifier.
func (e ExerciseSessionCompleted) IsEventType() string {
	return ExerciseSessionCompletedEventType
}

// HasOccurredAt returns when this event occurred.
func (e ExerciseSessionCompleted) HasOccurredAt() time.Time {
	return e.OccurredAt
}

// HasSubjectID returns the subject whose stream this event belongs to.
func (e ExerciseSessionCompleted) HasSubjectID() SubjectIDString {
	return e.SubjectID
}

func (e ExerciseSessionCompleted) isDomainEvent() {}
