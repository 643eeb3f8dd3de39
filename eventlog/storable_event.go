package eventlog

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrInvalidPayloadJSON is returned when the payload is not valid JSON.
	ErrInvalidPayloadJSON = errors.New("payload json is not valid")

	// ErrInvalidMetadataJSON is returned when the metadata is not valid JSON.
	ErrInvalidMetadataJSON = errors.New("metadata json is not valid")

	// ErrEmptySubjectID is returned when an empty subject identifier is supplied.
	ErrEmptySubjectID = errors.New("subject id must not be empty")

	// ErrEmptyEventType is returned when an empty event type is supplied.
	ErrEmptyEventType = errors.New("event type must not be empty")
)

// StorableEvents is an alias type for a slice of StorableEvent.
type StorableEvents = []StorableEvent

// StorableEvent is a DTO (data transfer object) used by the stream store to
// append events and query them back.
//
// It is built on scalars to be completely agnostic of the implementation of
// domain events in the client code. The stream version is assigned by the
// engine at append time and is therefore not part of this type; see
// RecordedEvent for the persisted shape.
//
// While its properties are exported, it should only be constructed with the
// supplied factory methods:
//   - BuildStorableEvent
//   - BuildStorableEventWithEmptyMetadata
type StorableEvent struct {
	EventType    string
	SubjectID    string
	OccurredAt   time.Time
	PayloadJSON  []byte
	MetadataJSON []byte
}

// RecordedEvents is an alias type for a slice of RecordedEvent.
type RecordedEvents = []RecordedEvent

// RecordedEvent is a StorableEvent together with the stream version the engine
// assigned when it was appended.
type RecordedEvent struct {
	StorableEvent
	StreamVersion StreamVersionUint
}

// BuildStorableEvent is a factory method for StorableEvent.
//
// It populates the StorableEvent with the given scalar input.
// Returns an error if eventType or subjectID are empty, or if payloadJSON or
// metadataJSON are not valid JSON.
func BuildStorableEvent(
	eventType string,
	subjectID string,
	occurredAt time.Time,
	payloadJSON []byte,
	metadataJSON []byte,
) (StorableEvent, error) {

	if eventType == "" {
		return StorableEvent{}, ErrEmptyEventType
	}

	if subjectID == "" {
		return StorableEvent{}, ErrEmptySubjectID
	}

	if !json.Valid(payloadJSON) {
		return StorableEvent{}, ErrInvalidPayloadJSON
	}

	if !json.Valid(metadataJSON) {
		return StorableEvent{}, ErrInvalidMetadataJSON
	}

	return StorableEvent{
		EventType:    eventType,
		SubjectID:    subjectID,
		OccurredAt:   occurredAt,
		PayloadJSON:  payloadJSON,
		MetadataJSON: metadataJSON,
	}, nil
}

// BuildStorableEventWithEmptyMetadata is a factory method for StorableEvent.
//
// It populates the StorableEvent with the given scalar input and creates valid
// empty JSON for MetadataJSON. Returns an error if payloadJSON is not valid JSON.
func BuildStorableEventWithEmptyMetadata(
	eventType string,
	subjectID string,
	occurredAt time.Time,
	payloadJSON []byte,
) (StorableEvent, error) {

	return BuildStorableEvent(eventType, subjectID, occurredAt, payloadJSON, []byte("{}"))
}
