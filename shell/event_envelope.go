package shell

import (
	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/eventlog"
)

// Envelope pairs a decoded domain event with its metadata and stream position.
// Projections fold over envelopes so they can see both the event and the
// version that identifies it for idempotent application.
type Envelope struct {
	Event         core.DomainEvent
	Meta          EventMetadata
	SubjectID     core.SubjectIDString
	StreamVersion eventlog.StreamVersionUint
}

// Envelopes is a slice of Envelope instances.
type Envelopes = []Envelope

// EnvelopeFrom decodes a RecordedEvent into an Envelope.
func EnvelopeFrom(recorded eventlog.RecordedEvent) (Envelope, error) {
	domainEvent, err := DomainEventFrom(recorded.StorableEvent)
	if err != nil {
		return Envelope{}, err
	}

	metadata, err := EventMetadataFrom(recorded.StorableEvent)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Event:         domainEvent,
		Meta:          metadata,
		SubjectID:     recorded.SubjectID,
		StreamVersion: recorded.StreamVersion,
	}, nil
}

// EnvelopesFrom decodes multiple RecordedEvents into Envelopes, preserving order.
func EnvelopesFrom(recordedEvents eventlog.RecordedEvents) (Envelopes, error) {
	envelopes := make(Envelopes, 0, len(recordedEvents))

	for _, recorded := range recordedEvents {
		envelope, err := EnvelopeFrom(recorded)
		if err != nil {
			return nil, err
		}

		envelopes = append(envelopes, envelope)
	}

	return envelopes, nil
}
