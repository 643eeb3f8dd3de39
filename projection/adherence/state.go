// Package adherence maintains the per-subject exercise adherence view:
// how many prescribed sessions a subject completed, with what volume, and
// when they were last active.
package adherence

import (
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/shell"
)

// ErrRestoringStateFailed is returned when a snapshot cannot be decoded.
var ErrRestoringStateFailed = errors.New("restoring adherence state failed")

type subjectStats struct {
	SessionsCompleted    int
	TotalReps            int
	TotalDurationSeconds int
	FirstSessionAt       time.Time
	LastSessionAt        time.Time
	SessionsPerExercise  map[core.ExerciseIDString]int
}

// State folds session completion events into per-subject adherence stats.
// Not safe for concurrent use; the projection runner serializes access.
type State struct {
	subjects map[core.SubjectIDString]*subjectStats
}

// NewState creates an empty adherence state.
func NewState() *State {
	return &State{subjects: make(map[core.SubjectIDString]*subjectStats)}
}

// Apply folds one envelope into the state. Only session completions matter
// for adherence; the other kinds of the union are deliberately ignored.
func (s *State) Apply(env shell.Envelope) {
	switch e := env.Event.(type) {
	case core.ExerciseSessionCompleted:
		stats := s.statsFor(e.SubjectID)

		stats.SessionsCompleted++
		stats.TotalReps += e.Reps
		stats.TotalDurationSeconds += e.DurationSeconds
		stats.SessionsPerExercise[e.ExerciseID]++

		if stats.FirstSessionAt.IsZero() || e.OccurredAt.Before(stats.FirstSessionAt) {
			stats.FirstSessionAt = e.OccurredAt
		}
		if e.OccurredAt.After(stats.LastSessionAt) {
			stats.LastSessionAt = e.OccurredAt
		}

	case core.RepObserved, core.FeedbackGiven, core.AlertRaised, core.ConsentRecorded:
		// not adherence-relevant
	}
}

// ResetSubject drops everything derived from the subject.
func (s *State) ResetSubject(subjectID string) {
	delete(s.subjects, subjectID)
}

// SnapshotSubject serializes the subject's slice of the state.
func (s *State) SnapshotSubject(subjectID string) ([]byte, error) {
	stats, found := s.subjects[subjectID]
	if !found {
		stats = &subjectStats{SessionsPerExercise: make(map[core.ExerciseIDString]int)}
	}

	return json.Marshal(stats)
}

// RestoreSubject replaces the subject's slice of the state from snapshot data.
func (s *State) RestoreSubject(subjectID string, data []byte) error {
	stats := new(subjectStats)

	if err := jsoniter.ConfigFastest.Unmarshal(data, stats); err != nil {
		return errors.Join(ErrRestoringStateFailed, err)
	}

	if stats.SessionsPerExercise == nil {
		stats.SessionsPerExercise = make(map[core.ExerciseIDString]int)
	}

	s.subjects[subjectID] = stats

	return nil
}

func (s *State) statsFor(subjectID core.SubjectIDString) *subjectStats {
	stats, found := s.subjects[subjectID]
	if !found {
		stats = &subjectStats{SessionsPerExercise: make(map[core.ExerciseIDString]int)}
		s.subjects[subjectID] = stats
	}

	return stats
}

func (s *State) viewFor(subjectID string) View {
	view := View{SubjectID: subjectID, SessionsPerExercise: make(map[string]int)}

	stats, found := s.subjects[subjectID]
	if !found {
		return view
	}

	view.SessionsCompleted = stats.SessionsCompleted
	view.TotalReps = stats.TotalReps
	view.TotalDurationSeconds = stats.TotalDurationSeconds
	view.FirstSessionAt = stats.FirstSessionAt
	view.LastSessionAt = stats.LastSessionAt

	for exerciseID, count := range stats.SessionsPerExercise {
		view.SessionsPerExercise[exerciseID] = count
	}

	return view
}
