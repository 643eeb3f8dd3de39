package patientsummary

import (
	"context"
	"time"

	"github.com/vivecare/clinstream/checkpoint"
	"github.com/vivecare/clinstream/projection"
	"github.com/vivecare/clinstream/shell"
)

// View is the patient summary projection result for one subject.
type View struct {
	SubjectID         string
	SessionsCompleted int
	RepsObserved      int
	FeedbackCount     int
	AlertsRaised      int
	AlertsResolved    int
	OpenAlerts        int
	Consents          map[string]string
	HasActiveConsent  bool
	LastActivityAt    time.Time
}

// Projector is the patient summary projector: a runner-managed fold plus its query surface.
type Projector struct {
	runner *projection.Runner[*State]
}

// NewProjector creates the patient summary projector.
func NewProjector(
	store projection.EventStore,
	checkpoints checkpoint.Store,
	options ...projection.RunnerOption[*State],
) (*Projector, error) {

	runner, err := projection.NewRunner(projection.PatientSummaryProjection, NewState(), store, checkpoints, options...)
	if err != nil {
		return nil, err
	}

	return &Projector{runner: runner}, nil
}

// Name returns the projection name.
func (p *Projector) Name() string {
	return projection.PatientSummaryProjection
}

// Runner exposes the underlying runner for hydration, rebuild, and lag reporting.
func (p *Projector) Runner() *projection.Runner[*State] {
	return p.runner
}

// ApplyBatch applies one subject's envelopes idempotently.
func (p *Projector) ApplyBatch(ctx context.Context, subjectID string, envelopes shell.Envelopes) error {
	return p.runner.ApplyBatch(ctx, subjectID, envelopes)
}

// AdvancePast moves the cursor past a dead-lettered batch.
func (p *Projector) AdvancePast(ctx context.Context, subjectID string, toVersion uint) error {
	return p.runner.AdvancePast(ctx, subjectID, toVersion)
}

// LastApplied returns the last applied stream version for the subject.
func (p *Projector) LastApplied(subjectID string) (uint, bool) {
	return p.runner.LastApplied(subjectID)
}

// Lag reports per-subject projection lag.
func (p *Projector) Lag(ctx context.Context) (map[string]uint, error) {
	return p.runner.Lag(ctx)
}

// Query returns the patient summary view for the subject named in the query.
func (p *Projector) Query(_ context.Context, q projection.Query) (projection.View, error) {
	if q.SubjectID == "" {
		return nil, &projection.InvalidQueryError{
			Projection: projection.PatientSummaryProjection,
			Filter:     "subject_id",
			Reason:     "required",
		}
	}

	var view View
	p.runner.ReadState(func(s *State) {
		view = s.viewFor(q.SubjectID)
	})

	return view, nil
}
