package core

import (
	"time"
)

// FeedbackGivenEventType is the event type identifier.
const FeedbackGivenEventType = "FeedbackGiven"

// FeedbackGiven represents a therapist's feedback on a subject's activity.
// When ResolvesAlertID is set, the feedback closes that alert.
type FeedbackGiven struct {
	EventType       EventTypeString
	SubjectID       SubjectIDString
	TherapistID     TherapistIDString
	Note            string
	ResolvesAlertID AlertIDString
	OccurredAt      OccurredAtTS
}

// BuildFeedbackGiven creates a new FeedbackGiven event.
func BuildFeedbackGiven(
	subjectID SubjectIDString,
	therapistID TherapistIDString,
	note string,
	resolvesAlertID AlertIDString,
	occurredAt time.Time,
) FeedbackGiven {

	event := FeedbackGiven{
		EventType:       FeedbackGivenEventType,
		SubjectID:       subjectID,
		TherapistID:     therapistID,
		Note:            note,
		ResolvesAlertID: resolvesAlertID,
		OccurredAt:      ToOccurredAt(occurredAt),
	}

	return event
}

// IsEventType returns the event type identifier.
func (e FeedbackGiven) IsEventType() string {
	return FeedbackGivenEventType
}

// HasOccurredAt returns when this event occurred.
func (e FeedbackGiven) HasOccurredAt() time.Time {
	return e.OccurredAt
}

// HasSubjectID returns the subject whose stream this event belongs to.
func (e FeedbackGiven) HasSubjectID() SubjectIDString {
	return e.SubjectID
}

func (e FeedbackGiven) isDomainEvent() {}
