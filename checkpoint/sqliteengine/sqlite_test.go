package sqliteengine_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivecare/clinstream/checkpoint"
	"github.com/vivecare/clinstream/checkpoint/sqliteengine"
)

func openStore(t *testing.T) *sqliteengine.Store {
	t.Helper()

	store, err := sqliteengine.Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func checkpointAt(projectorID string, subjectID string, version uint) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		ProjectorID:        projectorID,
		SubjectID:          subjectID,
		LastAppliedVersion: version,
		UpdatedAt:          time.Now().UTC(),
	}
}

func Test_Open_RequiresPath(t *testing.T) {
	_, err := sqliteengine.Open("")
	assert.Error(t, err)

	_, err = sqliteengine.Open("   ")
	assert.Error(t, err)
}

func Test_SQLiteStore_SaveAndLoad(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, found, err := store.Load(ctx, "adherence", "subject-001")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Save(ctx, checkpointAt("adherence", "subject-001", 3)))

	cp, found, err := store.Load(ctx, "adherence", "subject-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "adherence", cp.ProjectorID)
	assert.Equal(t, "subject-001", cp.SubjectID)
	assert.Equal(t, uint(3), cp.LastAppliedVersion)
	assert.False(t, cp.UpdatedAt.IsZero())

	// upsert replaces the row
	require.NoError(t, store.Save(ctx, checkpointAt("adherence", "subject-001", 9)))

	cp, found, err = store.Load(ctx, "adherence", "subject-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint(9), cp.LastAppliedVersion)
}

func Test_SQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	ctx := context.Background()

	store, err := sqliteengine.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, checkpointAt("adherence", "subject-001", 5)))
	require.NoError(t, store.Close())

	reopened, err := sqliteengine.Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	cp, found, err := reopened.Load(ctx, "adherence", "subject-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint(5), cp.LastAppliedVersion)
}

func Test_SQLiteStore_LoadAll_ScopedAndOrdered(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, checkpointAt("adherence", "subject-002", 2)))
	require.NoError(t, store.Save(ctx, checkpointAt("adherence", "subject-001", 1)))
	require.NoError(t, store.Save(ctx, checkpointAt("quality", "subject-001", 4)))

	cps, err := store.LoadAll(ctx, "adherence")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, "subject-001", cps[0].SubjectID)
	assert.Equal(t, "subject-002", cps[1].SubjectID)
}

func Test_SQLiteStore_DeleteAndDeleteAll(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, checkpointAt("adherence", "subject-001", 1)))
	require.NoError(t, store.Save(ctx, checkpointAt("adherence", "subject-002", 2)))

	require.NoError(t, store.Delete(ctx, "adherence", "subject-001"))

	_, found, err := store.Load(ctx, "adherence", "subject-001")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.DeleteAll(ctx, "adherence"))

	cps, err := store.LoadAll(ctx, "adherence")
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func Test_SQLiteStore_DeadLetters(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.RecordDeadLetter(ctx, checkpoint.DeadLetter{
			ProjectorID: "adherence",
			SubjectID:   "subject-001",
			FromVersion: uint(i),
			ToVersion:   uint(i + 1),
			Attempts:    5,
			Reason:      "apply failed",
			FailedAt:    time.Now().UTC(),
		}))
	}

	count, err := store.DeadLetterCount(ctx, "adherence")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	letters, err := store.DeadLetters(ctx, "adherence", 2)
	require.NoError(t, err)
	require.Len(t, letters, 2)
	assert.Equal(t, uint(3), letters[0].FromVersion, "newest dead letter comes first")
	assert.Equal(t, uint(2), letters[1].FromVersion)
	assert.Equal(t, "apply failed", letters[0].Reason)
	assert.Equal(t, 5, letters[0].Attempts)

	count, err = store.DeadLetterCount(ctx, "quality")
	require.NoError(t, err)
	assert.Zero(t, count)
}
