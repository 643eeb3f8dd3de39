// Package workqueue maintains the per-therapist work queue view: open alerts
// ordered by severity then age. An alert leaves the queue when feedback
// resolving it is given.
package workqueue

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/shell"
)

// ErrRestoringStateFailed is returned when a snapshot cannot be decoded.
var ErrRestoringStateFailed = errors.New("restoring work queue state failed")

// Entry is one open alert in a therapist's queue.
type Entry struct {
	AlertID     string
	SubjectID   string
	TherapistID string
	Severity    string
	Reason      string
	RaisedAt    time.Time
}

// State folds alert and feedback events into per-therapist queues. The state
// is keyed by therapist but owned per subject: ResetSubject removes exactly
// the entries derived from that subject's stream, wherever they ended up.
// Not safe for concurrent use; the projection runner serializes access.
type State struct {
	openAlerts map[core.AlertIDString]*Entry
}

// NewState creates an empty work queue state.
func NewState() *State {
	return &State{openAlerts: make(map[core.AlertIDString]*Entry)}
}

// Apply folds one envelope into the state. Alerts open queue entries;
// feedback with a resolving alert ID closes them. A resolution for an unknown
// or already-closed alert is a no-op, which keeps replay deterministic when a
// dead-lettered range skipped the original alert.
func (s *State) Apply(env shell.Envelope) {
	switch e := env.Event.(type) {
	case core.AlertRaised:
		s.openAlerts[e.AlertID] = &Entry{
			AlertID:     e.AlertID,
			SubjectID:   e.SubjectID,
			TherapistID: e.TherapistID,
			Severity:    e.Severity,
			Reason:      e.Reason,
			RaisedAt:    e.OccurredAt,
		}

	case core.FeedbackGiven:
		if e.ResolvesAlertID != "" {
			delete(s.openAlerts, e.ResolvesAlertID)
		}

	case core.ExerciseSessionCompleted, core.RepObserved, core.ConsentRecorded:
		// not work-queue-relevant
	}
}

// ResetSubject drops every entry derived from the subject.
func (s *State) ResetSubject(subjectID string) {
	for alertID, entry := range s.openAlerts {
		if entry.SubjectID == subjectID {
			delete(s.openAlerts, alertID)
		}
	}
}

// SnapshotSubject serializes the subject's entries.
func (s *State) SnapshotSubject(subjectID string) ([]byte, error) {
	entries := make([]Entry, 0)

	for _, entry := range s.openAlerts {
		if entry.SubjectID == subjectID {
			entries = append(entries, *entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].AlertID < entries[j].AlertID })

	return json.Marshal(entries)
}

// RestoreSubject replaces the subject's entries from snapshot data.
func (s *State) RestoreSubject(subjectID string, data []byte) error {
	entries := make([]Entry, 0)

	if err := jsoniter.ConfigFastest.Unmarshal(data, &entries); err != nil {
		return errors.Join(ErrRestoringStateFailed, err)
	}

	s.ResetSubject(subjectID)

	for i := range entries {
		entry := entries[i]
		s.openAlerts[entry.AlertID] = &entry
	}

	return nil
}

// queueFor returns the therapist's open entries ordered by severity rank,
// then age (oldest first), then alert ID for a stable total order.
func (s *State) queueFor(therapistID string) []Entry {
	entries := make([]Entry, 0)

	for _, entry := range s.openAlerts {
		if entry.TherapistID == therapistID {
			entries = append(entries, *entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		ri, rj := core.SeverityRank(entries[i].Severity), core.SeverityRank(entries[j].Severity)
		if ri != rj {
			return ri < rj
		}

		if !entries[i].RaisedAt.Equal(entries[j].RaisedAt) {
			return entries[i].RaisedAt.Before(entries[j].RaisedAt)
		}

		return entries[i].AlertID < entries[j].AlertID
	})

	return entries
}
