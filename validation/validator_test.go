package validation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/testutil/fixtures"
	"github.com/vivecare/clinstream/validation"
)

func alwaysActiveConsent() validation.ConsentChecker {
	return validation.ConsentCheckerFunc(func(context.Context, core.ConsentIDString) bool { return true })
}

func Test_Validate_AcceptsWellFormedEvents(t *testing.T) {
	validator := validation.NewValidator(alwaysActiveConsent())

	events := []core.DomainEvent{
		fixtures.GivenSessionCompleted("subject-001", 10, 0),
		fixtures.GivenRepObserved("subject-001", 1, 87.5, 1),
		fixtures.GivenFeedback("subject-001", "therapist-01", "", 2),
		fixtures.GivenAlertRaised("subject-001", "alert-1", "therapist-01", core.SeverityLow, 3),
		fixtures.GivenConsent("subject-001", "consent-1", core.ConsentRevoked, 4),
	}

	for _, event := range events {
		assert.NoError(t, validator.Validate(context.Background(), event, fixtures.GivenMeta()))
	}
}

//nolint:funlen
func Test_Validate_RejectsMalformedEvents(t *testing.T) {
	occurredAt := fixtures.At(0)

	tests := []struct {
		name          string
		event         core.DomainEvent
		expectedField string
	}{
		{
			name:          "empty subject id",
			event:         core.BuildExerciseSessionCompleted("", "session-1", "exercise-squat", 10, 300, occurredAt),
			expectedField: "subject_id",
		},
		{
			name:          "zero occurred at",
			event:         core.BuildExerciseSessionCompleted("subject-001", "session-1", "exercise-squat", 10, 300, time.Time{}),
			expectedField: "occurred_at",
		},
		{
			name:          "negative reps",
			event:         core.BuildExerciseSessionCompleted("subject-001", "session-1", "exercise-squat", -1, 300, occurredAt),
			expectedField: "reps",
		},
		{
			name:          "negative duration",
			event:         core.BuildExerciseSessionCompleted("subject-001", "session-1", "exercise-squat", 10, -5, occurredAt),
			expectedField: "duration_seconds",
		},
		{
			name:          "session without session id",
			event:         core.BuildExerciseSessionCompleted("subject-001", "", "exercise-squat", 10, 300, occurredAt),
			expectedField: "session_id",
		},
		{
			name:          "form score above range",
			event:         core.BuildRepObserved("subject-001", "session-1", "exercise-squat", 1, 100.5, occurredAt),
			expectedField: "form_score",
		},
		{
			name:          "form score below range",
			event:         core.BuildRepObserved("subject-001", "session-1", "exercise-squat", 1, -0.5, occurredAt),
			expectedField: "form_score",
		},
		{
			name:          "negative rep number",
			event:         core.BuildRepObserved("subject-001", "session-1", "exercise-squat", -1, 50, occurredAt),
			expectedField: "rep_number",
		},
		{
			name:          "feedback with neither note nor alert",
			event:         core.BuildFeedbackGiven("subject-001", "therapist-01", "", "", occurredAt),
			expectedField: "note",
		},
		{
			name:          "feedback without therapist",
			event:         core.BuildFeedbackGiven("subject-001", "", "good form", "", occurredAt),
			expectedField: "therapist_id",
		},
		{
			name:          "alert with bogus severity",
			event:         core.BuildAlertRaised("subject-001", "alert-1", "therapist-01", "urgent", "reason", occurredAt),
			expectedField: "severity",
		},
		{
			name:          "alert without alert id",
			event:         core.BuildAlertRaised("subject-001", "", "therapist-01", core.SeverityHigh, "reason", occurredAt),
			expectedField: "alert_id",
		},
		{
			name:          "consent with bogus status",
			event:         core.BuildConsentRecorded("subject-001", "consent-1", "pending", "scope", occurredAt),
			expectedField: "status",
		},
		{
			name:          "consent without consent id",
			event:         core.BuildConsentRecorded("subject-001", "", core.ConsentGranted, "scope", occurredAt),
			expectedField: "consent_id",
		},
	}

	validator := validation.NewValidator(alwaysActiveConsent())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(context.Background(), tt.event, fixtures.GivenMeta())

			require.ErrorIs(t, err, validation.ErrInvalidEvent)

			var validationErr *validation.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.expectedField, validationErr.Field)
		})
	}
}

func Test_Validate_PHIRequiresConsentReference(t *testing.T) {
	validator := validation.NewValidator(alwaysActiveConsent())
	event := fixtures.GivenSessionCompleted("subject-001", 10, 0)

	err := validator.Validate(context.Background(), event, fixtures.GivenPHIMeta(""))

	require.ErrorIs(t, err, validation.ErrInvalidEvent)

	var validationErr *validation.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "meta.consent_id", validationErr.Field)
}

func Test_Validate_PHIRequiresActiveConsent(t *testing.T) {
	revokedConsent := validation.ConsentCheckerFunc(func(_ context.Context, consentID core.ConsentIDString) bool {
		return consentID == "consent-active"
	})
	validator := validation.NewValidator(revokedConsent)
	event := fixtures.GivenSessionCompleted("subject-001", 10, 0)

	assert.NoError(t, validator.Validate(context.Background(), event, fixtures.GivenPHIMeta("consent-active")))

	err := validator.Validate(context.Background(), event, fixtures.GivenPHIMeta("consent-revoked"))
	require.ErrorIs(t, err, validation.ErrInvalidEvent)
}

func Test_Validate_NonPHISkipsConsentGate(t *testing.T) {
	consulted := false
	checker := validation.ConsentCheckerFunc(func(context.Context, core.ConsentIDString) bool {
		consulted = true
		return false
	})
	validator := validation.NewValidator(checker)

	err := validator.Validate(context.Background(), fixtures.GivenSessionCompleted("subject-001", 10, 0), fixtures.GivenMeta())

	assert.NoError(t, err)
	assert.False(t, consulted, "consent gate must only be consulted for phi events")
}
