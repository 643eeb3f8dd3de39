package core

import (
	"time"
)

// ConsentRecordedEventType is the event type identifier.
const ConsentRecordedEventType = "ConsentRecorded"

// Consent statuses.
const (
	ConsentGranted = "granted"
	ConsentRevoked = "revoked"
)

// IsValidConsentStatus reports whether status is one of the defined statuses.
func IsValidConsentStatus(status string) bool {
	return status == ConsentGranted || status == ConsentRevoked
}

// ConsentRecorded represents a change to a subject's consent: a grant or a
// revocation of the named consent record.
type ConsentRecorded struct {
	EventType  EventTypeString
	SubjectID  SubjectIDString
	ConsentID  ConsentIDString
	Status     string
	Scope      string
	OccurredAt OccurredAtTS
}

// BuildConsentRecorded creates a new ConsentRecorded event.
func BuildConsentRecorded(
	subjectID SubjectIDString,
	consentID ConsentIDString,
	status string,
	scope string,
	occurredAt time.Time,
) ConsentRecorded {

	event := ConsentRecorded{
		EventType:  ConsentRecordedEventType,
		SubjectID:  subjectID,
		ConsentID:  consentID,
		Status:     status,
		Scope:      scope,
		OccurredAt: ToOccurredAt(occurredAt),
	}

	return event
}

// IsEventType returns the event type identifier.
func (e ConsentRecorded) IsEventType() string {
	return ConsentRecordedEventType
}

// HasOccurredAt returns when this event occurred.
func (e ConsentRecorded) HasOccurredAt() time.Time {
	return e.OccurredAt
}

// HasSubjectID returns the subject whose stream this event belongs to.
func (e ConsentRecorded) HasSubjectID() SubjectIDString {
	return e.SubjectID
}

func (e ConsentRecorded) isDomainEvent() {}
