package shell

import (
	"errors"

	jsoniter "github.com/json-iterator/go"

	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/eventlog"
)

var (
	// ErrMappingToDomainEventFailed is returned when domain event conversion fails.
	ErrMappingToDomainEventFailed = errors.New("mapping to domain event failed")

	// ErrMappingToDomainEventUnknownEventType is returned for unrecognized event types.
	ErrMappingToDomainEventUnknownEventType = errors.New("unknown event type")
)

// DomainEventsFrom converts multiple StorableEvents to DomainEvents.
func DomainEventsFrom(storableEvents eventlog.StorableEvents) (core.DomainEvents, error) {
	domainEvents := make(core.DomainEvents, 0)

	for _, storableEvent := range storableEvents {
		domainEvent, err := DomainEventFrom(storableEvent)
		if err != nil {
			return nil, err
		}

		domainEvents = append(domainEvents, domainEvent)
	}

	return domainEvents, nil
}

// DomainEventFrom converts a StorableEvent to its corresponding DomainEvent.
// The dispatch covers every type in the closed union; a stored type outside it
// is a mapping error.
func DomainEventFrom(storableEvent eventlog.StorableEvent) (core.DomainEvent, error) {
	switch storableEvent.EventType {
	case core.ExerciseSessionCompletedEventType:
		return unmarshalExerciseSessionCompleted(storableEvent.PayloadJSON)

	case core.RepObservedEventType:
		return unmarshalRepObserved(storableEvent.PayloadJSON)

	case core.FeedbackGivenEventType:
		return unmarshalFeedbackGiven(storableEvent.PayloadJSON)

	case core.AlertRaisedEventType:
		return unmarshalAlertRaised(storableEvent.PayloadJSON)

	case core.ConsentRecordedEventType:
		return unmarshalConsentRecorded(storableEvent.PayloadJSON)

	default:
		return nil, errors.Join(ErrMappingToDomainEventFailed, ErrMappingToDomainEventUnknownEventType)
	}
}

func unmarshalExerciseSessionCompleted(payloadJSON []byte) (core.DomainEvent, error) {
	payload := new(core.ExerciseSessionCompleted)

	err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &payload)
	if err != nil {
		return core.ExerciseSessionCompleted{}, errors.Join(ErrMappingToDomainEventFailed, err)
	}

	return core.ExerciseSessionCompleted{
		EventType:       payload.EventType,
		SubjectID:       payload.SubjectID,
		SessionID:       payload.SessionID,
		ExerciseID:      payload.ExerciseID,
		Reps:            payload.Reps,
		DurationSeconds: payload.DurationSeconds,
		OccurredAt:      payload.OccurredAt,
	}, nil
}

func unmarshalRepObserved(payloadJSON []byte) (core.DomainEvent, error) {
	payload := new(core.RepObserved)

	err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &payload)
	if err != nil {
		return core.RepObserved{}, errors.Join(ErrMappingToDomainEventFailed, err)
	}

	return core.RepObserved{
		EventType:  payload.EventType,
		SubjectID:  payload.SubjectID,
		SessionID:  payload.SessionID,
		ExerciseID: payload.ExerciseID,
		RepNumber:  payload.RepNumber,
		FormScore:  payload.FormScore,
		OccurredAt: payload.OccurredAt,
	}, nil
}

func unmarshalFeedbackGiven(payloadJSON []byte) (core.DomainEvent, error) {
	payload := new(core.FeedbackGiven)

	err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &payload)
	if err != nil {
		return core.FeedbackGiven{}, errors.Join(ErrMappingToDomainEventFailed, err)
	}

	return core.FeedbackGiven{
		EventType:       payload.EventType,
		SubjectID:       payload.SubjectID,
		TherapistID:     payload.TherapistID,
		Note:            payload.Note,
		ResolvesAlertID: payload.ResolvesAlertID,
		OccurredAt:      payload.OccurredAt,
	}, nil
}

func unmarshalAlertRaised(payloadJSON []byte) (core.DomainEvent, error) {
	payload := new(core.AlertRaised)

	err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &payload)
	if err != nil {
		return core.AlertRaised{}, errors.Join(ErrMappingToDomainEventFailed, err)
	}

	return core.AlertRaised{
		EventType:   payload.EventType,
		SubjectID:   payload.SubjectID,
		AlertID:     payload.AlertID,
		TherapistID: payload.TherapistID,
		Severity:    payload.Severity,
		Reason:      payload.Reason,
		OccurredAt:  payload.OccurredAt,
	}, nil
}

func unmarshalConsentRecorded(payloadJSON []byte) (core.DomainEvent, error) {
	payload := new(core.ConsentRecorded)

	err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &payload)
	if err != nil {
		return core.ConsentRecorded{}, errors.Join(ErrMappingToDomainEventFailed, err)
	}

	return core.ConsentRecorded{
		EventType:  payload.EventType,
		SubjectID:  payload.SubjectID,
		ConsentID:  payload.ConsentID,
		Status:     payload.Status,
		Scope:      payload.Scope,
		OccurredAt: payload.OccurredAt,
	}, nil
}
