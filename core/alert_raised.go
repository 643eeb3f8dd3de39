package core

import (
	"time"
)

// AlertRaisedEventType is the event type identifier.
const AlertRaisedEventType = "AlertRaised"

// Alert severity levels, ordered from most to least urgent.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// SeverityRank maps a severity to its ordering weight; lower ranks sort first.
// Unknown severities rank last.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// IsValidSeverity reports whether severity is one of the defined levels.
func IsValidSeverity(severity string) bool {
	return SeverityRank(severity) < 4
}

// AlertRaised represents an automatic or manual alert assigned to a therapist.
type AlertRaised struct {
	EventType   EventTypeString
	SubjectID   SubjectIDString
	AlertID     AlertIDString
	TherapistID TherapistIDString
	Severity    string
	Reason      string
	OccurredAt  OccurredAtTS
}

// BuildAlertRaised creates a new AlertRaised event.
func BuildAlertRaised(
	subjectID SubjectIDString,
	alertID AlertIDString,
	therapistID TherapistIDString,
	severity string,
	reason string,
	occurredAt time.Time,
) AlertRaised {

	event := AlertRaised{
		EventType:   AlertRaisedEventType,
		SubjectID:   subjectID,
		AlertID:     alertID,
		TherapistID: therapistID,
		Severity:    severity,
		Reason:      reason,
		OccurredAt:  ToOccurredAt(occurredAt),
	}

	return event
}

// IsEventType returns the event type identifier.
func (e AlertRaised) IsEventType() string {
	return AlertRaisedEventType
}

// HasOccurredAt returns when this event occurred.
func (e AlertRaised) HasOccurredAt() time.Time {
	return e.OccurredAt
}

// HasSubjectID returns the subject whose stream this event belongs to.
func (e AlertRaised) HasSubjectID() SubjectIDString {
	return e.SubjectID
}

func (e AlertRaised) isDomainEvent() {}
