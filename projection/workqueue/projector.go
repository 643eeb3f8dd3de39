package workqueue

import (
	"context"

	"github.com/vivecare/clinstream/checkpoint"
	"github.com/vivecare/clinstream/projection"
	"github.com/vivecare/clinstream/shell"
)

// View is the work queue projection result for one therapist.
type View struct {
	TherapistID string
	Entries     []Entry
}

// Projector is the work queue projector: a runner-managed fold plus its query surface.
type Projector struct {
	runner *projection.Runner[*State]
}

// NewProjector creates the work queue projector.
func NewProjector(
	store projection.EventStore,
	checkpoints checkpoint.Store,
	options ...projection.RunnerOption[*State],
) (*Projector, error) {

	runner, err := projection.NewRunner(projection.WorkQueueProjection, NewState(), store, checkpoints, options...)
	if err != nil {
		return nil, err
	}

	return &Projector{runner: runner}, nil
}

// Name returns the projection name.
func (p *Projector) Name() string {
	return projection.WorkQueueProjection
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

// Query returns the work queue view for the therapist named in the query.
func (p *Projector) Query(_ context.Context, q projection.Query) (projection.View, error) {
	if q.TherapistID == "" {
		return nil, &projection.InvalidQueryError{
			Projection: projection.WorkQueueProjection,
			Filter:     "therapist_id",
			Reason:     "required",
		}
	}

	var view View
	p.runner.ReadState(func(s *State) {
		view = View{
			TherapistID: q.TherapistID,
			Entries:     s.queueFor(q.TherapistID),
		}
	})

	return view, nil
}
