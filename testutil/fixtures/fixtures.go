// Package fixtures provides deterministic event builders for tests.
//
// All timestamps derive from a fixed base instant plus an offset, so folds
// and round-trips compare equal across runs.
package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/eventlog"
	"github.com/vivecare/clinstream/shell"
)

// BaseTime is the fixed instant all fixture timestamps are offset from.
var BaseTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// At returns BaseTime shifted by the given number of seconds.
func At(offsetSeconds int) time.Time {
	return BaseTime.Add(time.Duration(offsetSeconds) * time.Second)
}

// GivenSessionCompleted builds a session completion with sensible defaults.
func GivenSessionCompleted(subjectID string, reps int, offsetSeconds int) core.ExerciseSessionCompleted {
	return core.BuildExerciseSessionCompleted(
		subjectID, "session-1", "exercise-squat", reps, 300, At(offsetSeconds))
}

// GivenRepObserved builds a rep observation for the default session.
func GivenRepObserved(subjectID string, repNumber int, formScore float64, offsetSeconds int) core.RepObserved {
	return core.BuildRepObserved(
		subjectID, "session-1", "exercise-squat", repNumber, formScore, At(offsetSeconds))
}

// GivenFeedback builds therapist feedback; resolvesAlertID may be empty.
func GivenFeedback(subjectID string, therapistID string, resolvesAlertID string, offsetSeconds int) core.FeedbackGiven {
	return core.BuildFeedbackGiven(
		subjectID, therapistID, "keep your back straight", resolvesAlertID, At(offsetSeconds))
}

// GivenAlertRaised builds an alert with the given severity.
func GivenAlertRaised(subjectID string, alertID string, therapistID string, severity string, offsetSeconds int) core.AlertRaised {
	return core.BuildAlertRaised(
		subjectID, alertID, therapistID, severity, "form score dropped", At(offsetSeconds))
}

// GivenConsent builds a consent grant or revocation.
func GivenConsent(subjectID string, consentID string, status string, offsetSeconds int) core.ConsentRecorded {
	return core.BuildConsentRecorded(
		subjectID, consentID, status, "activity-tracking", At(offsetSeconds))
}

// GivenMeta builds non-PHI metadata.
func GivenMeta() core.EventMeta {
	return core.BuildEventMeta(false, "", "1.0", BaseTime, "mobile-app")
}

// GivenPHIMeta builds PHI metadata referencing the given consent.
func GivenPHIMeta(consentID string) core.EventMeta {
	return core.BuildEventMeta(true, consentID, "1.0", BaseTime, "mobile-app")
}

// EnvelopeFor wraps an event at the given stream version, the way the shell
// would deliver it.
func EnvelopeFor(event core.DomainEvent, streamVersion eventlog.StreamVersionUint) shell.Envelope {
	return shell.Envelope{
		Event:         event,
		Meta:          shell.BuildEventMetadata(GivenMeta(), uuid.New(), uuid.New(), uuid.New()),
		SubjectID:     event.HasSubjectID(),
		StreamVersion: streamVersion,
	}
}

// StorableEventFor converts an event to its stored form, panicking on fixture
// misuse so tests stay terse.
func StorableEventFor(event core.DomainEvent) eventlog.StorableEvent {
	storableEvent, err := shell.StorableEventFrom(event, shell.NewEventMetadata(GivenMeta()))
	if err != nil {
		panic(err)
	}

	return storableEvent
}
