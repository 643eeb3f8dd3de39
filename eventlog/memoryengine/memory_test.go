package memoryengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivecare/clinstream/eventlog"
	"github.com/vivecare/clinstream/eventlog/memoryengine"
	"github.com/vivecare/clinstream/testutil/fixtures"
)

func Test_Append_AssignsGaplessVersions(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	subjectID := "subject-001"

	for i := 0; i < 5; i++ {
		tail, err := es.Append(ctx, subjectID, eventlog.StreamVersionUint(i),
			fixtures.StorableEventFor(fixtures.GivenRepObserved(subjectID, i+1, 90, i)))

		require.NoError(t, err)
		assert.Equal(t, eventlog.StreamVersionUint(i+1), tail)
	}

	recorded, err := es.Read(ctx, subjectID, 0, 0)
	require.NoError(t, err)
	require.Len(t, recorded, 5)

	for i, event := range recorded {
		assert.Equal(t, eventlog.StreamVersionUint(i+1), event.StreamVersion)
	}
}

func Test_Append_MultipleEventsInOneCall(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	subjectID := "subject-001"

	tail, err := es.Append(ctx, subjectID, 0,
		fixtures.StorableEventFor(fixtures.GivenSessionCompleted(subjectID, 10, 0)),
		fixtures.StorableEventFor(fixtures.GivenRepObserved(subjectID, 1, 85, 1)),
		fixtures.StorableEventFor(fixtures.GivenRepObserved(subjectID, 2, 90, 2)),
	)

	require.NoError(t, err)
	assert.Equal(t, eventlog.StreamVersionUint(3), tail)
}

func Test_Append_ConcurrentRaceOnSameExpectedVersion_ExactlyOneWins(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	subjectID := "subject-002"

	for i := 0; i < 5; i++ {
		_, err := es.Append(ctx, subjectID, eventlog.StreamVersionUint(i),
			fixtures.StorableEventFor(fixtures.GivenRepObserved(subjectID, i+1, 90, i)))
		require.NoError(t, err)
	}

	results := make(chan error, 2)
	start := make(chan struct{})

	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, err := es.Append(ctx, subjectID, 5,
				fixtures.StorableEventFor(fixtures.GivenSessionCompleted(subjectID, 10, 5)))
			results <- err
		}()
	}

	close(start)

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		err := <-results
		if err == nil {
			successes++
			continue
		}

		var conflictErr *eventlog.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, eventlog.StreamVersionUint(6), conflictErr.Actual)
		conflicts++
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	tail, err := es.TailVersion(ctx, subjectID)
	require.NoError(t, err)
	assert.Equal(t, eventlog.StreamVersionUint(6), tail)
}

func Test_Append_StaleExpectedVersion_ReturnsConflictAndLeavesStreamUntouched(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	subjectID := "subject-001"

	_, err := es.Append(ctx, subjectID, 0,
		fixtures.StorableEventFor(fixtures.GivenSessionCompleted(subjectID, 10, 0)))
	require.NoError(t, err)

	_, err = es.Append(ctx, subjectID, 0,
		fixtures.StorableEventFor(fixtures.GivenSessionCompleted(subjectID, 12, 10)))

	require.ErrorIs(t, err, eventlog.ErrConcurrencyConflict)

	var conflictErr *eventlog.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, subjectID, conflictErr.SubjectID)
	assert.Equal(t, eventlog.StreamVersionUint(0), conflictErr.Expected)
	assert.Equal(t, eventlog.StreamVersionUint(1), conflictErr.Actual)

	tail, err := es.TailVersion(ctx, subjectID)
	require.NoError(t, err)
	assert.Equal(t, eventlog.StreamVersionUint(1), tail, "rejected append must not mutate the stream")
}

func Test_Append_NoStreamVersionCheck_SkipsTheGuard(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	subjectID := "subject-001"

	for i := 0; i < 3; i++ {
		tail, err := es.Append(ctx, subjectID, eventlog.NoStreamVersionCheck,
			fixtures.StorableEventFor(fixtures.GivenRepObserved(subjectID, i+1, 90, i)))

		require.NoError(t, err)
		assert.Equal(t, eventlog.StreamVersionUint(i+1), tail)
	}
}

func Test_Append_EmptySubjectID(t *testing.T) {
	es := memoryengine.NewEventStore()

	_, err := es.Append(context.Background(), "", 0,
		fixtures.StorableEventFor(fixtures.GivenSessionCompleted("subject-001", 10, 0)))

	assert.ErrorIs(t, err, eventlog.ErrEmptySubjectID)
}

func Test_Append_NoEvents(t *testing.T) {
	es := memoryengine.NewEventStore()

	_, err := es.Append(context.Background(), "subject-001", 0)

	assert.ErrorIs(t, err, eventlog.ErrAppendingEventFailed)
}

func Test_Read_FromVersionIsExclusive(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	subjectID := "subject-001"

	for i := 0; i < 4; i++ {
		_, err := es.Append(ctx, subjectID, eventlog.StreamVersionUint(i),
			fixtures.StorableEventFor(fixtures.GivenRepObserved(subjectID, i+1, 90, i)))
		require.NoError(t, err)
	}

	recorded, err := es.Read(ctx, subjectID, 2, 0)
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	assert.Equal(t, eventlog.StreamVersionUint(3), recorded[0].StreamVersion)
	assert.Equal(t, eventlog.StreamVersionUint(4), recorded[1].StreamVersion)
}

func Test_Read_LimitCapsTheBatch(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	subjectID := "subject-001"

	for i := 0; i < 10; i++ {
		_, err := es.Append(ctx, subjectID, eventlog.StreamVersionUint(i),
			fixtures.StorableEventFor(fixtures.GivenRepObserved(subjectID, i+1, 90, i)))
		require.NoError(t, err)
	}

	recorded, err := es.Read(ctx, subjectID, 0, 3)
	require.NoError(t, err)
	require.Len(t, recorded, 3)
	assert.Equal(t, eventlog.StreamVersionUint(1), recorded[0].StreamVersion)
	assert.Equal(t, eventlog.StreamVersionUint(3), recorded[2].StreamVersion)
}

func Test_Read_BeyondTailAndAbsentStream_YieldEmpty(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()

	recorded, err := es.Read(ctx, "nobody", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recorded)

	_, err = es.Append(ctx, "subject-001", 0,
		fixtures.StorableEventFor(fixtures.GivenSessionCompleted("subject-001", 10, 0)))
	require.NoError(t, err)

	recorded, err = es.Read(ctx, "subject-001", 99, 0)
	require.NoError(t, err)
	assert.Empty(t, recorded)
}

func Test_TailVersion_AbsentStreamIsZero(t *testing.T) {
	es := memoryengine.NewEventStore()

	tail, err := es.TailVersion(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, eventlog.StreamVersionUint(0), tail)
}

func Test_Subjects_SortedAndOnlyNonEmpty(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()

	for _, subjectID := range []string{"subject-003", "subject-001", "subject-002"} {
		_, err := es.Append(ctx, subjectID, 0,
			fixtures.StorableEventFor(fixtures.GivenSessionCompleted(subjectID, 10, 0)))
		require.NoError(t, err)
	}

	subjects, err := es.Subjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"subject-001", "subject-002", "subject-003"}, subjects)
}

func Test_Snapshots_SaveLoadDelete(t *testing.T) {
	es := memoryengine.NewEventStore()
	ctx := context.Background()

	snapshot, err := eventlog.BuildSnapshot("adherence", "subject-001", 42, []byte(`{"sessions": 4}`))
	require.NoError(t, err)

	require.NoError(t, es.SaveSnapshot(ctx, snapshot))

	loaded, err := es.LoadSnapshot(ctx, "adherence", "subject-001")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, eventlog.StreamVersionUint(42), loaded.StreamVersion)
	assert.JSONEq(t, `{"sessions": 4}`, string(loaded.Data))

	newer, err := eventlog.BuildSnapshot("adherence", "subject-001", 50, []byte(`{"sessions": 5}`))
	require.NoError(t, err)
	require.NoError(t, es.SaveSnapshot(ctx, newer))

	loaded, err = es.LoadSnapshot(ctx, "adherence", "subject-001")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, eventlog.StreamVersionUint(50), loaded.StreamVersion)

	require.NoError(t, es.DeleteSnapshot(ctx, "adherence", "subject-001"))

	loaded, err = es.LoadSnapshot(ctx, "adherence", "subject-001")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
