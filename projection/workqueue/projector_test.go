package workqueue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivecare/clinstream/checkpoint/memoryengine"
	"github.com/vivecare/clinstream/core"
	elmemory "github.com/vivecare/clinstream/eventlog/memoryengine"
	"github.com/vivecare/clinstream/projection"
	"github.com/vivecare/clinstream/projection/workqueue"
	"github.com/vivecare/clinstream/shell"
	"github.com/vivecare/clinstream/testutil/fixtures"
)

func newProjector(t *testing.T) *workqueue.Projector {
	t.Helper()

	projector, err := workqueue.NewProjector(elmemory.NewEventStore(), memoryengine.NewStore())
	require.NoError(t, err)

	return projector
}

func queueFor(t *testing.T, projector *workqueue.Projector, therapistID string) []workqueue.Entry {
	t.Helper()

	view, err := projector.Query(context.Background(), projection.Query{TherapistID: therapistID})
	require.NoError(t, err)

	return view.(workqueue.View).Entries
}

func Test_WorkQueue_OrdersBySeverityThenAge(t *testing.T) {
	projector := newProjector(t)
	subjectID := "subject-001"
	therapistID := "therapist-01"

	envelopes := shell.Envelopes{
		fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-low", therapistID, core.SeverityLow, 0), 1),
		fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-high-old", therapistID, core.SeverityHigh, 10), 2),
		fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-critical", therapistID, core.SeverityCritical, 20), 3),
		fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-high-new", therapistID, core.SeverityHigh, 30), 4),
	}

	require.NoError(t, projector.ApplyBatch(context.Background(), subjectID, envelopes))

	entries := queueFor(t, projector, therapistID)
	require.Len(t, entries, 4)

	assert.Equal(t, "alert-critical", entries[0].AlertID)
	assert.Equal(t, "alert-high-old", entries[1].AlertID, "within a severity the oldest alert comes first")
	assert.Equal(t, "alert-high-new", entries[2].AlertID)
	assert.Equal(t, "alert-low", entries[3].AlertID)
}

func Test_WorkQueue_FeedbackResolvesAlert(t *testing.T) {
	projector := newProjector(t)
	subjectID := "subject-001"
	therapistID := "therapist-01"
	ctx := context.Background()

	envelopes := shell.Envelopes{
		fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-1", therapistID, core.SeverityHigh, 0), 1),
		fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-2", therapistID, core.SeverityMedium, 10), 2),
		fixtures.EnvelopeFor(fixtures.GivenFeedback(subjectID, therapistID, "alert-1", 20), 3),
	}

	require.NoError(t, projector.ApplyBatch(ctx, subjectID, envelopes))

	entries := queueFor(t, projector, therapistID)
	require.Len(t, entries, 1)
	assert.Equal(t, "alert-2", entries[0].AlertID)
}

func Test_WorkQueue_ResolutionOfUnknownAlertIsNoOp(t *testing.T) {
	projector := newProjector(t)
	subjectID := "subject-001"
	therapistID := "therapist-01"

	envelopes := shell.Envelopes{
		fixtures.EnvelopeFor(fixtures.GivenFeedback(subjectID, therapistID, "alert-never-raised", 0), 1),
		fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-1", therapistID, core.SeverityLow, 10), 2),
	}

	require.NoError(t, projector.ApplyBatch(context.Background(), subjectID, envelopes))

	entries := queueFor(t, projector, therapistID)
	require.Len(t, entries, 1)
	assert.Equal(t, "alert-1", entries[0].AlertID)
}

func Test_WorkQueue_QueuesAreScopedToTherapists(t *testing.T) {
	projector := newProjector(t)
	subjectID := "subject-001"

	envelopes := shell.Envelopes{
		fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-1", "therapist-01", core.SeverityHigh, 0), 1),
		fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-2", "therapist-02", core.SeverityHigh, 10), 2),
	}

	require.NoError(t, projector.ApplyBatch(context.Background(), subjectID, envelopes))

	assert.Len(t, queueFor(t, projector, "therapist-01"), 1)
	assert.Len(t, queueFor(t, projector, "therapist-02"), 1)
	assert.Empty(t, queueFor(t, projector, "therapist-03"))
}

func Test_WorkQueue_QueryRequiresTherapistID(t *testing.T) {
	projector := newProjector(t)

	_, err := projector.Query(context.Background(), projection.Query{SubjectID: "subject-001"})

	assert.ErrorIs(t, err, projection.ErrInvalidQuery)
}

func Test_WorkQueue_ResetSubjectRemovesOnlyThatSubjectsEntries(t *testing.T) {
	state := workqueue.NewState()
	therapistID := "therapist-01"

	state.Apply(fixtures.EnvelopeFor(fixtures.GivenAlertRaised("subject-001", "alert-1", therapistID, core.SeverityHigh, 0), 1))
	state.Apply(fixtures.EnvelopeFor(fixtures.GivenAlertRaised("subject-002", "alert-2", therapistID, core.SeverityHigh, 0), 1))

	state.ResetSubject("subject-001")

	data, err := state.SnapshotSubject("subject-002")
	require.NoError(t, err)
	assert.Contains(t, string(data), "alert-2")

	data, err = state.SnapshotSubject("subject-001")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func Test_WorkQueue_SnapshotRoundTrip(t *testing.T) {
	state := workqueue.NewState()
	subjectID := "subject-001"

	state.Apply(fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-1", "therapist-01", core.SeverityCritical, 0), 1))
	state.Apply(fixtures.EnvelopeFor(fixtures.GivenAlertRaised(subjectID, "alert-2", "therapist-01", core.SeverityLow, 10), 2))

	data, err := state.SnapshotSubject(subjectID)
	require.NoError(t, err)

	restored := workqueue.NewState()
	require.NoError(t, restored.RestoreSubject(subjectID, data))

	roundTripped, err := restored.SnapshotSubject(subjectID)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(roundTripped))

	assert.ErrorIs(t, restored.RestoreSubject(subjectID, []byte("not json")), workqueue.ErrRestoringStateFailed)
}
