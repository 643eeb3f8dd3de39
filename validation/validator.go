package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/vivecare/clinstream/core"
)

// ErrInvalidEvent is the sentinel all validation failures match via errors.Is.
var ErrInvalidEvent = errors.New("invalid event")

const (
	formScoreMin = 0.0
	formScoreMax = 100.0
)

// ValidationError describes one failed validation rule.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is match any ValidationError against ErrInvalidEvent.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidEvent
}

func invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConsentChecker is the external consent gate consulted for PHI events.
type ConsentChecker interface {
	IsConsentActive(ctx context.Context, consentID core.ConsentIDString) bool
}

// ConsentCheckerFunc adapts a function to the ConsentChecker interface.
type ConsentCheckerFunc func(ctx context.Context, consentID core.ConsentIDString) bool

// IsConsentActive calls the wrapped function.
func (f ConsentCheckerFunc) IsConsentActive(ctx context.Context, consentID core.ConsentIDString) bool {
	return f(ctx, consentID)
}

// Validator validates domain events and their metadata.
type Validator struct {
	consent ConsentChecker
}

// NewValidator creates a Validator using the given consent gate.
func NewValidator(consent ConsentChecker) *Validator {
	return &Validator{consent: consent}
}

// Validate checks the event's fields per kind and enforces the consent gate on
// PHI metadata. On failure it returns a *ValidationError matching
// ErrInvalidEvent; the event must not be appended.
func (v *Validator) Validate(ctx context.Context, event core.DomainEvent, meta core.EventMeta) error {
	if event.HasSubjectID() == "" {
		return invalid("subject_id", "must not be empty")
	}

	if event.HasOccurredAt().IsZero() {
		return invalid("occurred_at", "must not be zero")
	}

	if err := v.validateKind(event); err != nil {
		return err
	}

	return v.validateMeta(ctx, meta)
}

func (v *Validator) validateKind(event core.DomainEvent) error {
	switch e := event.(type) {
	case core.ExerciseSessionCompleted:
		return validateExerciseSessionCompleted(e)

	case core.RepObserved:
		return validateRepObserved(e)

	case core.FeedbackGiven:
		return validateFeedbackGiven(e)

	case core.AlertRaised:
		return validateAlertRaised(e)

	case core.ConsentRecorded:
		return validateConsentRecorded(e)

	default:
		return invalid("kind", "unknown event kind")
	}
}

func (v *Validator) validateMeta(ctx context.Context, meta core.EventMeta) error {
	if !meta.PHI {
		return nil
	}

	if meta.ConsentID == "" {
		return invalid("meta.consent_id", "required for phi events")
	}

	if v.consent == nil || !v.consent.IsConsentActive(ctx, meta.ConsentID) {
		return invalid("meta.consent_id", "consent is not active")
	}

	return nil
}

func validateExerciseSessionCompleted(e core.ExerciseSessionCompleted) error {
	if e.SessionID == "" {
		return invalid("session_id", "must not be empty")
	}

	if e.ExerciseID == "" {
		return invalid("exercise_id", "must not be empty")
	}

	if e.Reps < 0 {
		return invalid("reps", "must not be negative")
	}

	if e.DurationSeconds < 0 {
		return invalid("duration_seconds", "must not be negative")
	}

	return nil
}

func validateRepObserved(e core.RepObserved) error {
	if e.SessionID == "" {
		return invalid("session_id", "must not be empty")
	}

	if e.ExerciseID == "" {
		return invalid("exercise_id", "must not be empty")
	}

	if e.RepNumber < 0 {
		return invalid("rep_number", "must not be negative")
	}

	if e.FormScore < formScoreMin || e.FormScore > formScoreMax {
		return invalid("form_score", "must be between 0 and 100")
	}

	return nil
}

func validateFeedbackGiven(e core.FeedbackGiven) error {
	if e.TherapistID == "" {
		return invalid("therapist_id", "must not be empty")
	}

	if e.Note == "" && e.ResolvesAlertID == "" {
		return invalid("note", "feedback must carry a note or resolve an alert")
	}

	return nil
}

func validateAlertRaised(e core.AlertRaised) error {
	if e.AlertID == "" {
		return invalid("alert_id", "must not be empty")
	}

	if e.TherapistID == "" {
		return invalid("therapist_id", "must not be empty")
	}

	if !core.IsValidSeverity(e.Severity) {
		return invalid("severity", "must be one of critical, high, medium, low")
	}

	return nil
}

func validateConsentRecorded(e core.ConsentRecorded) error {
	if e.ConsentID == "" {
		return invalid("consent_id", "must not be empty")
	}

	if !core.IsValidConsentStatus(e.Status) {
		return invalid("status", "must be granted or revoked")
	}

	return nil
}
