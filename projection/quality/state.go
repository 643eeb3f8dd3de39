// Package quality maintains the per subject+exercise movement-quality view:
// the form-score samples observed for each exercise, their average, and the
// recent trend.
package quality

import (
	"encoding/json"
	"errors"

	jsoniter "github.com/json-iterator/go"

	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/shell"
)

// ErrRestoringStateFailed is returned when a snapshot cannot be decoded.
var ErrRestoringStateFailed = errors.New("restoring quality state failed")

// trendWindow is the number of recent samples compared against the preceding
// window of the same size to classify the trend.
const trendWindow = 5

// Trend classifications.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

type exerciseScores struct {
	Samples []float64
}

type subjectScores struct {
	Exercises map[core.ExerciseIDString]*exerciseScores
}

// State folds rep observations into per subject+exercise form-score series.
// Not safe for concurrent use; the projection runner serializes access.
type State struct {
	subjects map[core.SubjectIDString]*subjectScores
}

// NewState creates an empty quality state.
func NewState() *State {
	return &State{subjects: make(map[core.SubjectIDString]*subjectScores)}
}

// Apply folds one envelope into the state. Only rep observations carry form
// scores; the other kinds of the union are deliberately ignored.
func (s *State) Apply(env shell.Envelope) {
	switch e := env.Event.(type) {
	case core.RepObserved:
		scores := s.scoresFor(e.SubjectID, e.ExerciseID)
		scores.Samples = append(scores.Samples, e.FormScore)

	case core.ExerciseSessionCompleted, core.FeedbackGiven, core.AlertRaised, core.ConsentRecorded:
		// not quality-relevant
	}
}

// ResetSubject drops everything derived from the subject.
func (s *State) ResetSubject(subjectID string) {
	delete(s.subjects, subjectID)
}

// SnapshotSubject serializes the subject's slice of the state.
func (s *State) SnapshotSubject(subjectID string) ([]byte, error) {
	scores, found := s.subjects[subjectID]
	if !found {
		scores = &subjectScores{Exercises: make(map[core.ExerciseIDString]*exerciseScores)}
	}

	return json.Marshal(scores)
}

// RestoreSubject replaces the subject's slice of the state from snapshot data.
func (s *State) RestoreSubject(subjectID string, data []byte) error {
	scores := new(subjectScores)

	if err := jsoniter.ConfigFastest.Unmarshal(data, scores); err != nil {
		return errors.Join(ErrRestoringStateFailed, err)
	}

	if scores.Exercises == nil {
		scores.Exercises = make(map[core.ExerciseIDString]*exerciseScores)
	}

	s.subjects[subjectID] = scores

	return nil
}

func (s *State) scoresFor(subjectID core.SubjectIDString, exerciseID core.ExerciseIDString) *exerciseScores {
	subject, found := s.subjects[subjectID]
	if !found {
		subject = &subjectScores{Exercises: make(map[core.ExerciseIDString]*exerciseScores)}
		s.subjects[subjectID] = subject
	}

	scores, found := subject.Exercises[exerciseID]
	if !found {
		scores = &exerciseScores{Samples: make([]float64, 0)}
		subject.Exercises[exerciseID] = scores
	}

	return scores
}

func (s *State) viewFor(subjectID string, exerciseID string) View {
	view := View{
		SubjectID:  subjectID,
		ExerciseID: exerciseID,
		Samples:    make([]float64, 0),
		Trend:      TrendStable,
	}

	subject, found := s.subjects[subjectID]
	if !found {
		return view
	}

	scores, found := subject.Exercises[exerciseID]
	if !found {
		return view
	}

	view.Samples = append(view.Samples, scores.Samples...)
	view.SampleCount = len(scores.Samples)
	view.Average = average(scores.Samples)
	view.Trend = classifyTrend(scores.Samples)

	return view
}

func average(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, sample := range samples {
		sum += sample
	}

	return sum / float64(len(samples))
}

// classifyTrend compares the average of the most recent window against the
// window before it. With fewer than two full windows the trend is stable.
func classifyTrend(samples []float64) string {
	if len(samples) < 2*trendWindow {
		return TrendStable
	}

	recent := average(samples[len(samples)-trendWindow:])
	prior := average(samples[len(samples)-2*trendWindow : len(samples)-trendWindow])

	switch {
	case recent > prior:
		return TrendImproving
	case recent < prior:
		return TrendDeclining
	default:
		return TrendStable
	}
}
