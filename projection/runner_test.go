package projection_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivecare/clinstream/checkpoint/memoryengine"
	"github.com/vivecare/clinstream/eventlog"
	elmemory "github.com/vivecare/clinstream/eventlog/memoryengine"
	"github.com/vivecare/clinstream/projection"
	"github.com/vivecare/clinstream/projection/adherence"
	"github.com/vivecare/clinstream/shell"
	"github.com/vivecare/clinstream/testutil/fixtures"
)

func appendSessions(t *testing.T, es *elmemory.EventStore, subjectID string, count int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < count; i++ {
		_, err := es.Append(ctx, subjectID, eventlog.StreamVersionUint(i),
			fixtures.StorableEventFor(fixtures.GivenSessionCompleted(subjectID, 10, i)))
		require.NoError(t, err)
	}
}

func sessionEnvelopes(subjectID string, from int, count int) shell.Envelopes {
	envelopes := make(shell.Envelopes, 0, count)

	for i := 0; i < count; i++ {
		envelopes = append(envelopes, fixtures.EnvelopeFor(
			fixtures.GivenSessionCompleted(subjectID, 10, from+i),
			eventlog.StreamVersionUint(from+i+1)))
	}

	return envelopes
}

func sessionsCompleted(t *testing.T, projector *adherence.Projector, subjectID string) int {
	t.Helper()

	view, err := projector.Query(context.Background(), projection.Query{SubjectID: subjectID})
	require.NoError(t, err)

	return view.(adherence.View).SessionsCompleted
}

func Test_ApplyBatch_AdvancesCursorAndSavesCheckpoint(t *testing.T) {
	es := elmemory.NewEventStore()
	checkpoints := memoryengine.NewStore()
	ctx := context.Background()

	projector, err := adherence.NewProjector(es, checkpoints)
	require.NoError(t, err)

	require.NoError(t, projector.ApplyBatch(ctx, "subject-001", sessionEnvelopes("subject-001", 0, 3)))

	assert.Equal(t, 3, sessionsCompleted(t, projector, "subject-001"))

	applied, found := projector.LastApplied("subject-001")
	require.True(t, found)
	assert.Equal(t, uint(3), applied)

	cp, found, err := checkpoints.Load(ctx, projection.AdherenceProjection, "subject-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, eventlog.StreamVersionUint(3), cp.LastAppliedVersion)
}

func Test_ApplyBatch_ReapplyingSameBatchIsIdempotent(t *testing.T) {
	es := elmemory.NewEventStore()
	projector, err := adherence.NewProjector(es, memoryengine.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	batch := sessionEnvelopes("subject-001", 0, 3)

	require.NoError(t, projector.ApplyBatch(ctx, "subject-001", batch))
	require.NoError(t, projector.ApplyBatch(ctx, "subject-001", batch))

	assert.Equal(t, 3, sessionsCompleted(t, projector, "subject-001"),
		"redelivered envelopes at or below the cursor must not mutate the view")
}

func Test_ApplyBatch_SkipsOnlyTheAlreadyAppliedPrefix(t *testing.T) {
	es := elmemory.NewEventStore()
	projector, err := adherence.NewProjector(es, memoryengine.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, projector.ApplyBatch(ctx, "subject-001", sessionEnvelopes("subject-001", 0, 2)))

	// overlapping redelivery: versions 1..4, of which 1..2 are already applied
	require.NoError(t, projector.ApplyBatch(ctx, "subject-001", sessionEnvelopes("subject-001", 0, 4)))

	assert.Equal(t, 4, sessionsCompleted(t, projector, "subject-001"))
}

func Test_ApplyBatch_EmptyBatchIsNoOp(t *testing.T) {
	es := elmemory.NewEventStore()
	checkpoints := memoryengine.NewStore()
	projector, err := adherence.NewProjector(es, checkpoints)
	require.NoError(t, err)

	require.NoError(t, projector.ApplyBatch(context.Background(), "subject-001", nil))

	_, found, err := checkpoints.Load(context.Background(), projection.AdherenceProjection, "subject-001")
	require.NoError(t, err)
	assert.False(t, found)
}

func Test_AdvancePast_MovesCursorWithoutApplying(t *testing.T) {
	es := elmemory.NewEventStore()
	checkpoints := memoryengine.NewStore()
	projector, err := adherence.NewProjector(es, checkpoints)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, projector.AdvancePast(ctx, "subject-001", 5))

	assert.Equal(t, 0, sessionsCompleted(t, projector, "subject-001"))

	applied, found := projector.LastApplied("subject-001")
	require.True(t, found)
	assert.Equal(t, uint(5), applied)

	cp, found, err := checkpoints.Load(ctx, projection.AdherenceProjection, "subject-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, eventlog.StreamVersionUint(5), cp.LastAppliedVersion)

	// a later batch below the advanced cursor is skipped
	require.NoError(t, projector.ApplyBatch(ctx, "subject-001", sessionEnvelopes("subject-001", 0, 3)))
	assert.Equal(t, 0, sessionsCompleted(t, projector, "subject-001"))
}

func Test_Hydrate_RestoresStateUpToCheckpoint(t *testing.T) {
	es := elmemory.NewEventStore()
	checkpoints := memoryengine.NewStore()
	ctx := context.Background()

	appendSessions(t, es, "subject-001", 5)

	first, err := adherence.NewProjector(es, checkpoints)
	require.NoError(t, err)
	require.NoError(t, first.ApplyBatch(ctx, "subject-001", sessionEnvelopes("subject-001", 0, 3)))

	// a fresh process: same checkpoint store, empty in-memory state
	second, err := adherence.NewProjector(es, checkpoints)
	require.NoError(t, err)
	require.NoError(t, second.Runner().Hydrate(ctx))

	assert.Equal(t, 3, sessionsCompleted(t, second, "subject-001"),
		"hydration must stop at the checkpoint and leave newer events for the pipeline")

	applied, found := second.LastApplied("subject-001")
	require.True(t, found)
	assert.Equal(t, uint(3), applied)
}

func Test_Hydrate_UsesSnapshotWhenAvailable(t *testing.T) {
	es := elmemory.NewEventStore()
	checkpoints := memoryengine.NewStore()
	ctx := context.Background()

	appendSessions(t, es, "subject-001", 4)

	first, err := adherence.NewProjector(es, checkpoints,
		projection.WithSnapshots[*adherence.State](es, 2))
	require.NoError(t, err)
	require.NoError(t, first.ApplyBatch(ctx, "subject-001", sessionEnvelopes("subject-001", 0, 4)))

	snapshot, err := es.LoadSnapshot(ctx, projection.AdherenceProjection, "subject-001")
	require.NoError(t, err)
	require.NotNil(t, snapshot, "the cadence of 2 must have produced a snapshot")

	second, err := adherence.NewProjector(es, checkpoints,
		projection.WithSnapshots[*adherence.State](es, 2))
	require.NoError(t, err)
	require.NoError(t, second.Runner().Hydrate(ctx))

	assert.Equal(t, 4, sessionsCompleted(t, second, "subject-001"))
}

func Test_Rebuild_EqualsIncrementalResult(t *testing.T) {
	es := elmemory.NewEventStore()
	checkpoints := memoryengine.NewStore()
	ctx := context.Background()

	appendSessions(t, es, "subject-001", 4)
	appendSessions(t, es, "subject-002", 2)

	incremental, err := adherence.NewProjector(es, checkpoints)
	require.NoError(t, err)
	require.NoError(t, incremental.ApplyBatch(ctx, "subject-001", sessionEnvelopes("subject-001", 0, 4)))
	require.NoError(t, incremental.ApplyBatch(ctx, "subject-002", sessionEnvelopes("subject-002", 0, 2)))

	incrementalView, err := incremental.Query(ctx, projection.Query{SubjectID: "subject-001"})
	require.NoError(t, err)

	rebuilt, err := adherence.NewProjector(es, memoryengine.NewStore())
	require.NoError(t, err)
	require.NoError(t, rebuilt.Runner().Rebuild(ctx))

	rebuiltView, err := rebuilt.Query(ctx, projection.Query{SubjectID: "subject-001"})
	require.NoError(t, err)

	assert.Equal(t, incrementalView, rebuiltView,
		"replaying from version zero must yield the incrementally built view")
	assert.Equal(t, 2, sessionsCompleted(t, rebuilt, "subject-002"))
}

func Test_RebuildSubject_DiscardsDerivedState(t *testing.T) {
	es := elmemory.NewEventStore()
	projector, err := adherence.NewProjector(es, memoryengine.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	appendSessions(t, es, "subject-001", 2)

	// poison the in-memory view with envelopes that were never persisted
	require.NoError(t, projector.ApplyBatch(ctx, "subject-001", sessionEnvelopes("subject-001", 0, 6)))
	assert.Equal(t, 6, sessionsCompleted(t, projector, "subject-001"))

	require.NoError(t, projector.Runner().RebuildSubject(ctx, "subject-001"))

	assert.Equal(t, 2, sessionsCompleted(t, projector, "subject-001"),
		"rebuild must re-derive the view from the persisted stream only")
}

func Test_Rebuild_HonorsContextCancellation(t *testing.T) {
	es := elmemory.NewEventStore()
	projector, err := adherence.NewProjector(es, memoryengine.NewStore())
	require.NoError(t, err)

	appendSessions(t, es, "subject-001", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, projector.Runner().Rebuild(ctx), context.Canceled)
}

func Test_Lag_ReportsTailMinusApplied(t *testing.T) {
	es := elmemory.NewEventStore()
	projector, err := adherence.NewProjector(es, memoryengine.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	appendSessions(t, es, "subject-001", 5)
	appendSessions(t, es, "subject-002", 3)

	require.NoError(t, projector.ApplyBatch(ctx, "subject-001", sessionEnvelopes("subject-001", 0, 2)))

	lag, err := projector.Lag(ctx)
	require.NoError(t, err)

	assert.Equal(t, eventlog.StreamVersionUint(3), lag["subject-001"])
	assert.Equal(t, eventlog.StreamVersionUint(3), lag["subject-002"])
}

func Test_Runner_PhaseTransitions(t *testing.T) {
	es := elmemory.NewEventStore()
	projector, err := adherence.NewProjector(es, memoryengine.NewStore())
	require.NoError(t, err)

	runner := projector.Runner()
	assert.Equal(t, projection.PhaseIdle, runner.Phase())

	require.NoError(t, projector.ApplyBatch(context.Background(), "subject-001", sessionEnvelopes("subject-001", 0, 1)))
	assert.Equal(t, projection.PhaseCheckpointed, runner.Phase())
}

func Test_NewRunner_Validations(t *testing.T) {
	es := elmemory.NewEventStore()
	checkpoints := memoryengine.NewStore()

	_, err := projection.NewRunner[*adherence.State]("", adherence.NewState(), es, checkpoints)
	assert.Error(t, err)

	_, err = projection.NewRunner[*adherence.State](projection.AdherenceProjection, adherence.NewState(), nil, checkpoints)
	assert.ErrorIs(t, err, projection.ErrNilEventStore)

	_, err = projection.NewRunner[*adherence.State](projection.AdherenceProjection, adherence.NewState(), es, nil)
	assert.ErrorIs(t, err, projection.ErrNilCheckpointStore)

	_, err = projection.NewRunner[*adherence.State](projection.AdherenceProjection, adherence.NewState(), es, checkpoints,
		projection.WithSnapshots[*adherence.State](nil, 0))
	assert.ErrorIs(t, err, projection.ErrNilSnapshotStore)
}
