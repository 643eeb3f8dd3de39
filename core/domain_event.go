package core

import (
	"time"
)

// DomainEvents is a slice of DomainEvent instances.
type DomainEvents = []DomainEvent

// DomainEvent represents a clinical occurrence recorded for one subject.
//
// The interface is sealed: only the five event types in this package implement
// it, so a type switch over all five plus a default case covers every value
// that can exist.
type DomainEvent interface {
	// IsEventType returns the string identifier for this event type.
	IsEventType() string

	// HasOccurredAt returns when this event occurred.
	HasOccurredAt() time.Time

	// HasSubjectID returns the subject whose stream this event belongs to.
	HasSubjectID() SubjectIDString

	// isDomainEvent seals the union.
	isDomainEvent()
}
