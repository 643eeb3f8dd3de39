// Package patientsummary maintains the per-subject clinical summary view:
// activity counts by kind, open alerts, consent status, and last activity.
package patientsummary

import (
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/shell"
)

// ErrRestoringStateFailed is returned when a snapshot cannot be decoded.
var ErrRestoringStateFailed = errors.New("restoring patient summary state failed")

type subjectSummary struct {
	SessionsCompleted int
	RepsObserved      int
	FeedbackCount     int
	AlertsRaised      int
	AlertsResolved    int
	Consents          map[core.ConsentIDString]string
	LastActivityAt    time.Time
}

// State folds every event kind into per-subject summaries.
// Not safe for concurrent use; the projection runner serializes access.
type State struct {
	subjects map[core.SubjectIDString]*subjectSummary
}

// NewState creates an empty patient summary state.
func NewState() *State {
	return &State{subjects: make(map[core.SubjectIDString]*subjectSummary)}
}

// Apply folds one envelope into the state. The summary is the one projection
// that reacts to every kind in the union.
func (s *State) Apply(env shell.Envelope) {
	summary := s.summaryFor(env.SubjectID)

	switch e := env.Event.(type) {
	case core.ExerciseSessionCompleted:
		summary.SessionsCompleted++

	case core.RepObserved:
		summary.RepsObserved++

	case core.FeedbackGiven:
		summary.FeedbackCount++
		if e.ResolvesAlertID != "" {
			summary.AlertsResolved++
		}

	case core.AlertRaised:
		summary.AlertsRaised++

	case core.ConsentRecorded:
		summary.Consents[e.ConsentID] = e.Status
	}

	if occurredAt := env.Event.HasOccurredAt(); occurredAt.After(summary.LastActivityAt) {
		summary.LastActivityAt = occurredAt
	}
}

// ResetSubject drops everything derived from the subject.
func (s *State) ResetSubject(subjectID string) {
	delete(s.subjects, subjectID)
}

// SnapshotSubject serializes the subject's slice of the state.
func (s *State) SnapshotSubject(subjectID string) ([]byte, error) {
	summary, found := s.subjects[subjectID]
	if !found {
		summary = &subjectSummary{Consents: make(map[core.ConsentIDString]string)}
	}

	return json.Marshal(summary)
}

// RestoreSubject replaces the subject's slice of the state from snapshot data.
func (s *State) RestoreSubject(subjectID string, data []byte) error {
	summary := new(subjectSummary)

	if err := jsoniter.ConfigFastest.Unmarshal(data, summary); err != nil {
		return errors.Join(ErrRestoringStateFailed, err)
	}

	if summary.Consents == nil {
		summary.Consents = make(map[core.ConsentIDString]string)
	}

	s.subjects[subjectID] = summary

	return nil
}

func (s *State) summaryFor(subjectID core.SubjectIDString) *subjectSummary {
	summary, found := s.subjects[subjectID]
	if !found {
		summary = &subjectSummary{Consents: make(map[core.ConsentIDString]string)}
		s.subjects[subjectID] = summary
	}

	return summary
}

func (s *State) viewFor(subjectID string) View {
	view := View{SubjectID: subjectID, Consents: make(map[string]string)}

	summary, found := s.subjects[subjectID]
	if !found {
		return view
	}

	view.SessionsCompleted = summary.SessionsCompleted
	view.RepsObserved = summary.RepsObserved
	view.FeedbackCount = summary.FeedbackCount
	view.AlertsRaised = summary.AlertsRaised
	view.AlertsResolved = summary.AlertsResolved
	view.OpenAlerts = summary.AlertsRaised - summary.AlertsResolved
	view.LastActivityAt = summary.LastActivityAt

	for consentID, status := range summary.Consents {
		view.Consents[consentID] = status
		if status == core.ConsentGranted {
			view.HasActiveConsent = true
		}
	}

	return view
}
