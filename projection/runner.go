package projection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vivecare/clinstream/checkpoint"
	"github.com/vivecare/clinstream/eventlog"
	"github.com/vivecare/clinstream/shell"
)

// DefaultSnapshotEvery is the default snapshot cadence in events per subject.
const DefaultSnapshotEvery eventlog.StreamVersionUint = 1000

var (
	// ErrNilEventStore is returned when a runner is built without an event store.
	ErrNilEventStore = errors.New("event store must not be nil")

	// ErrNilCheckpointStore is returned when a runner is built without a checkpoint store.
	ErrNilCheckpointStore = errors.New("checkpoint store must not be nil")

	// ErrNilSnapshotStore is returned when WithSnapshots is given a nil store.
	ErrNilSnapshotStore = errors.New("snapshot store must not be nil")
)

// Phase is the runner's position in the apply-then-checkpoint cycle.
type Phase int32

// Runner phases. The cycle is Idle -> Applying -> Checkpointed; a runner that
// has checkpointed returns to Applying on the next batch.
const (
	PhaseIdle Phase = iota
	PhaseApplying
	PhaseCheckpointed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseApplying:
		return "applying"
	case PhaseCheckpointed:
		return "checkpointed"
	default:
		return "unknown"
	}
}

// Runner wraps a projection State with idempotent batch application, durable
// checkpoints, rebuild, and optional snapshots.
//
// Idempotence works on stream versions: an envelope at or below the subject's
// last applied version is skipped without touching the state, so reapplying an
// already-applied batch (after a crash between apply and checkpoint, or a
// checkpoint save failure) is a no-op for the state and only re-saves the
// cursor.
type Runner[S State] struct {
	projectorID   string
	state         S
	store         EventStore
	checkpoints   checkpoint.Store
	snapshots     SnapshotStore
	snapshotEvery eventlog.StreamVersionUint
	logger        eventlog.Logger

	phase atomic.Int32

	mu          sync.RWMutex
	applied     map[string]eventlog.StreamVersionUint
	snapshotted map[string]eventlog.StreamVersionUint
}

// RunnerOption configures a Runner.
type RunnerOption[S State] func(*Runner[S]) error

// WithSnapshots enables per-subject snapshots with the given cadence; a
// cadence of 0 uses DefaultSnapshotEvery. Snapshots are a rebuild/hydrate
// accelerator only, never a correctness requirement: a failed snapshot write
// is logged and ignored.
func WithSnapshots[S State](snapshots SnapshotStore, every eventlog.StreamVersionUint) RunnerOption[S] {
	return func(r *Runner[S]) error {
		if snapshots == nil {
			return ErrNilSnapshotStore
		}

		if every == 0 {
			every = DefaultSnapshotEvery
		}

		r.snapshots = snapshots
		r.snapshotEvery = every

		return nil
	}
}

// WithRunnerLogger sets the logger for the runner.
func WithRunnerLogger[S State](logger eventlog.Logger) RunnerOption[S] {
	return func(r *Runner[S]) error {
		r.logger = logger
		return nil
	}
}

// NewRunner creates a runner for the given projector ID and state.
func NewRunner[S State](
	projectorID string,
	state S,
	store EventStore,
	checkpoints checkpoint.Store,
	options ...RunnerOption[S],
) (*Runner[S], error) {

	if projectorID == "" {
		return nil, checkpoint.ErrEmptyProjectorID
	}

	if store == nil {
		return nil, ErrNilEventStore
	}

	if checkpoints == nil {
		return nil, ErrNilCheckpointStore
	}

	r := &Runner[S]{
		projectorID: projectorID,
		state:       state,
		store:       store,
		checkpoints: checkpoints,
		applied:     make(map[string]eventlog.StreamVersionUint),
		snapshotted: make(map[string]eventlog.StreamVersionUint),
	}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// ProjectorID returns the runner's projector identifier.
func (r *Runner[S]) ProjectorID() string {
	return r.projectorID
}

// Phase returns the runner's current phase.
func (r *Runner[S]) Phase() Phase {
	return Phase(r.phase.Load())
}

// LastApplied returns the last applied stream version for the subject.
func (r *Runner[S]) LastApplied(subjectID string) (eventlog.StreamVersionUint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, found := r.applied[subjectID]

	return version, found
}

// ReadState runs fn with the state under a read lock. Queries go through this
// so they never observe a half-applied batch; fn must not retain references to
// mutable state internals.
func (r *Runner[S]) ReadState(fn func(state S)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn(r.state)
}

// ApplyBatch applies the envelopes for one subject in order, then saves the
// checkpoint. Envelopes at or below the current cursor are skipped. The
// materialized view and the cursor move together: a checkpoint save failure
// surfaces as an error and the next (re)delivery of the batch re-saves the
// cursor without reapplying the state.
func (r *Runner[S]) ApplyBatch(ctx context.Context, subjectID string, envelopes shell.Envelopes) error {
	if len(envelopes) == 0 {
		return nil
	}

	r.phase.Store(int32(PhaseApplying))

	r.mu.Lock()
	last := r.applied[subjectID]
	advanced := false

	for _, env := range envelopes {
		if env.StreamVersion <= last {
			continue
		}

		r.state.Apply(env)
		last = env.StreamVersion
		advanced = true
	}

	r.applied[subjectID] = last
	r.mu.Unlock()

	if saveErr := r.saveCheckpoint(ctx, subjectID, last); saveErr != nil {
		r.phase.Store(int32(PhaseIdle))
		return errors.Join(ErrProjectorFailure, saveErr)
	}

	if advanced {
		r.maybeSnapshot(ctx, subjectID, last)
	}

	r.phase.Store(int32(PhaseCheckpointed))

	return nil
}

// AdvancePast moves the subject's cursor to toVersion without applying
// anything. The pipeline uses this after dead-lettering a batch so later
// batches for the subject keep flowing.
func (r *Runner[S]) AdvancePast(ctx context.Context, subjectID string, toVersion eventlog.StreamVersionUint) error {
	r.mu.Lock()
	if r.applied[subjectID] < toVersion {
		r.applied[subjectID] = toVersion
	}
	r.mu.Unlock()

	return r.saveCheckpoint(ctx, subjectID, toVersion)
}

// Hydrate restores the in-memory state from snapshots and the event stream up
// to each subject's durable checkpoint. Events beyond the checkpoint are left
// for the pipeline to deliver.
func (r *Runner[S]) Hydrate(ctx context.Context) error {
	cps, err := r.checkpoints.LoadAll(ctx, r.projectorID)
	if err != nil {
		return err
	}

	for _, cp := range cps {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := r.hydrateSubject(ctx, cp); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner[S]) hydrateSubject(ctx context.Context, cp checkpoint.Checkpoint) error {
	var fromVersion eventlog.StreamVersionUint

	if restored, restoredVersion := r.tryRestoreSnapshot(ctx, cp); restored {
		fromVersion = restoredVersion
	}

	if fromVersion < cp.LastAppliedVersion {
		recorded, readErr := r.store.Read(ctx, cp.SubjectID, fromVersion, 0)
		if readErr != nil {
			return readErr
		}

		envelopes, decodeErr := shell.EnvelopesFrom(recorded)
		if decodeErr != nil {
			return decodeErr
		}

		r.mu.Lock()
		for _, env := range envelopes {
			if env.StreamVersion > cp.LastAppliedVersion {
				break
			}

			r.state.Apply(env)
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.applied[cp.SubjectID] = cp.LastAppliedVersion
	r.mu.Unlock()

	return nil
}

// tryRestoreSnapshot loads and restores a usable snapshot, returning the
// stream version the snapshot covers. Snapshots newer than the checkpoint are
// ignored: the checkpoint is the durable truth.
func (r *Runner[S]) tryRestoreSnapshot(ctx context.Context, cp checkpoint.Checkpoint) (bool, eventlog.StreamVersionUint) {
	if r.snapshots == nil {
		return false, 0
	}

	snapshotState, ok := State(r.state).(SnapshotState)
	if !ok {
		return false, 0
	}

	snapshot, loadErr := r.snapshots.LoadSnapshot(ctx, r.projectorID, cp.SubjectID)
	if loadErr != nil || snapshot == nil {
		return false, 0
	}

	if snapshot.StreamVersion > cp.LastAppliedVersion {
		return false, 0
	}

	r.mu.Lock()
	restoreErr := snapshotState.RestoreSubject(cp.SubjectID, snapshot.Data)
	r.mu.Unlock()

	if restoreErr != nil {
		r.logWarn("restoring snapshot failed", restoreErr)
		return false, 0
	}

	r.mu.Lock()
	r.snapshotted[cp.SubjectID] = snapshot.StreamVersion
	r.mu.Unlock()

	return true, snapshot.StreamVersion
}

// RebuildSubject clears everything derived from the subject and re-derives it
// by replaying the subject's full stream from version zero. The replay result
// must equal the incrementally built view; that equality is the projection
// layer's core correctness property.
func (r *Runner[S]) RebuildSubject(ctx context.Context, subjectID string) error {
	recorded, readErr := r.store.Read(ctx, subjectID, 0, 0)
	if readErr != nil {
		return readErr
	}

	envelopes, decodeErr := shell.EnvelopesFrom(recorded)
	if decodeErr != nil {
		return decodeErr
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	var last eventlog.StreamVersionUint

	r.mu.Lock()
	r.state.ResetSubject(subjectID)
	for _, env := range envelopes {
		r.state.Apply(env)
		last = env.StreamVersion
	}
	r.applied[subjectID] = last
	delete(r.snapshotted, subjectID)
	r.mu.Unlock()

	if r.snapshots != nil {
		if deleteErr := r.snapshots.DeleteSnapshot(ctx, r.projectorID, subjectID); deleteErr != nil {
			r.logWarn("deleting snapshot during rebuild failed", deleteErr)
		}
	}

	return r.saveCheckpoint(ctx, subjectID, last)
}

// Rebuild re-derives the view for every subject known to the stream store.
// It is cancellable between subjects; a canceled rebuild leaves already
// rebuilt subjects consistent and the rest untouched.
func (r *Runner[S]) Rebuild(ctx context.Context) error {
	subjects, err := r.store.Subjects(ctx)
	if err != nil {
		return err
	}

	for _, subjectID := range subjects {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if rebuildErr := r.RebuildSubject(ctx, subjectID); rebuildErr != nil {
			return rebuildErr
		}
	}

	return nil
}

// Lag reports tail_version - last_applied_version per subject.
func (r *Runner[S]) Lag(ctx context.Context) (map[string]eventlog.StreamVersionUint, error) {
	subjects, err := r.store.Subjects(ctx)
	if err != nil {
		return nil, err
	}

	lag := make(map[string]eventlog.StreamVersionUint, len(subjects))

	for _, subjectID := range subjects {
		tail, tailErr := r.store.TailVersion(ctx, subjectID)
		if tailErr != nil {
			return nil, tailErr
		}

		r.mu.RLock()
		applied := r.applied[subjectID]
		r.mu.RUnlock()

		if tail > applied {
			lag[subjectID] = tail - applied
		} else {
			lag[subjectID] = 0
		}
	}

	return lag, nil
}

func (r *Runner[S]) saveCheckpoint(ctx context.Context, subjectID string, version eventlog.StreamVersionUint) error {
	return r.checkpoints.Save(ctx, checkpoint.Checkpoint{
		ProjectorID:        r.projectorID,
		SubjectID:          subjectID,
		LastAppliedVersion: version,
		UpdatedAt:          time.Now().UTC(),
	})
}

// maybeSnapshot writes a snapshot when the subject has advanced a full cadence
// past the previous one. Failures are logged, never surfaced.
func (r *Runner[S]) maybeSnapshot(ctx context.Context, subjectID string, version eventlog.StreamVersionUint) {
	if r.snapshots == nil || r.snapshotEvery == 0 {
		return
	}

	snapshotState, ok := State(r.state).(SnapshotState)
	if !ok {
		return
	}

	r.mu.RLock()
	lastSnapshot := r.snapshotted[subjectID]
	r.mu.RUnlock()

	if version < lastSnapshot+r.snapshotEvery {
		return
	}

	r.mu.RLock()
	data, marshalErr := snapshotState.SnapshotSubject(subjectID)
	r.mu.RUnlock()

	if marshalErr != nil {
		r.logWarn("marshaling snapshot failed", marshalErr)
		return
	}

	snapshot, buildErr := eventlog.BuildSnapshot(r.projectorID, subjectID, version, data)
	if buildErr != nil {
		r.logWarn("building snapshot failed", buildErr)
		return
	}

	if saveErr := r.snapshots.SaveSnapshot(ctx, snapshot); saveErr != nil {
		r.logWarn("saving snapshot failed", saveErr)
		return
	}

	r.mu.Lock()
	r.snapshotted[subjectID] = version
	r.mu.Unlock()
}

func (r *Runner[S]) logWarn(msg string, err error) {
	if r.logger != nil {
		r.logger.Warn(msg, "error", err.Error(), "projector_id", r.projectorID)
	}
}
