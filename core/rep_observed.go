package core

import (
	"time"
)

// RepObservedEventType is the event type identifier.
const RepObservedEventType = "RepObserved"

// RepObserved represents a single observed repetition with its form score.
type RepObserved struct {
	EventType  EventTypeString
	SubjectID  SubjectIDString
	SessionID  SessionIDString
	ExerciseID ExerciseIDString
	RepNumber  int
	FormScore  float64
	OccurredAt OccurredAtTS
}

// BuildRepObserved creates a new RepObserved event.
func BuildRepObserved(
	subjectID SubjectIDString,
	sessionID SessionIDString,
	exerciseID ExerciseIDString,
	repNumber int,
	formScore float64,
	occurredAt time.Time,
) RepObserved {

	event := RepObserved{
		EventType:  RepObservedEventType,
		SubjectID:  subjectID,
		SessionID:  sessionID,
		ExerciseID: exerciseID,
		RepNumber:  repNumber,
		FormScore:  formScore,
		OccurredAt: ToOccurredAt(occurredAt),
	}

	return event
}

// IsEventType returns the event type identifier.
func (e RepObserved) IsEventType() string {
	return RepObservedEventType
}

// HasOccurredAt returns when this event occurred.
func (e RepObserved) HasOccurredAt() time.Time {
	return e.OccurredAt
}

// HasSubjectID returns the subject whose stream this event belongs to.
func (e RepObserved) HasSubjectID() SubjectIDString {
	return e.SubjectID
}

func (e RepObserved) isDomainEvent() {}
