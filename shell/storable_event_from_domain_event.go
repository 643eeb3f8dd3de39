package shell

import (
	"encoding/json"
	"errors"

	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/eventlog"
)

// ErrMappingToStorableEventFailedForDomainEvent is returned when domain event serialization fails
var ErrMappingToStorableEventFailedForDomainEvent = errors.New("mapping to storable event failed for domain event")

// ErrMappingToStorableEventFailedForMetadata is returned when metadata serialization fails
var ErrMappingToStorableEventFailedForMetadata = errors.New("mapping to storable event failed for metadata")

// StorableEventFrom converts a DomainEvent and EventMetadata to a StorableEvent
func StorableEventFrom(event core.DomainEvent, metadata EventMetadata) (eventlog.StorableEvent, error) {
	payloadJSON, err := json.Marshal(event)
	if err != nil {
		return eventlog.StorableEvent{}, errors.Join(ErrMappingToStorableEventFailedForDomainEvent, err)
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return eventlog.StorableEvent{}, errors.Join(ErrMappingToStorableEventFailedForMetadata, err)
	}

	storableEvent, err := eventlog.BuildStorableEvent(
		event.IsEventType(),
		event.HasSubjectID(),
		event.HasOccurredAt(),
		payloadJSON,
		metadataJSON,
	)

	if err != nil {
		return eventlog.StorableEvent{}, errors.Join(ErrMappingToStorableEventFailedForDomainEvent, err)
	}

	return storableEvent, nil
}

// StorableEventWithEmptyMetadataFrom converts a DomainEvent to a StorableEvent with empty metadata
func StorableEventWithEmptyMetadataFrom(event core.DomainEvent) (eventlog.StorableEvent, error) {
	payloadJSON, err := json.Marshal(event)
	if err != nil {
		return eventlog.StorableEvent{}, errors.Join(ErrMappingToStorableEventFailedForDomainEvent, err)
	}

	storableEvent, err := eventlog.BuildStorableEventWithEmptyMetadata(
		event.IsEventType(),
		event.HasSubjectID(),
		event.HasOccurredAt(),
		payloadJSON,
	)

	if err != nil {
		return eventlog.StorableEvent{}, errors.Join(ErrMappingToStorableEventFailedForDomainEvent, err)
	}

	return storableEvent, nil
}
