// Package memoryengine provides an in-memory stream store engine with the same
// semantics as the durable engines: gapless per-subject versions, optimistic
// concurrency, ordered reads. It backs tests and single-process deployments.
package memoryengine

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/vivecare/clinstream/eventlog"
)

// EventStore is an in-memory, mutex-guarded stream store.
// The zero value is not usable; construct with NewEventStore.
type EventStore struct {
	mu        sync.RWMutex
	streams   map[string]eventlog.StorableEvents
	snapshots map[snapshotKey]eventlog.Snapshot
	logger    eventlog.Logger
}

type snapshotKey struct {
	projectionType string
	subjectKey     string
}

// Option defines a functional option for configuring the EventStore.
type Option func(*EventStore)

// WithLogger sets the logger for the EventStore.
func WithLogger(logger eventlog.Logger) Option {
	return func(es *EventStore) {
		es.logger = logger
	}
}

// NewEventStore creates an empty in-memory event store with optional configuration.
func NewEventStore(options ...Option) *EventStore {
	es := &EventStore{
		streams:   make(map[string]eventlog.StorableEvents),
		snapshots: make(map[snapshotKey]eventlog.Snapshot),
	}

	for _, option := range options {
		option(es)
	}

	return es
}

// Append appends the given events to the subject's stream iff expectedVersion
// matches the current tail version (or is eventlog.NoStreamVersionCheck).
// On a mismatch it returns a *eventlog.ConflictError carrying the actual tail
// version and leaves the stream untouched. Returns the new tail version.
func (es *EventStore) Append(
	_ context.Context,
	subjectID string,
	expectedVersion eventlog.StreamVersionUint,
	events ...eventlog.StorableEvent,
) (eventlog.StreamVersionUint, error) {

	if subjectID == "" {
		return 0, eventlog.ErrEmptySubjectID
	}

	if len(events) == 0 {
		return 0, errors.Join(eventlog.ErrAppendingEventFailed, errors.New("no events supplied"))
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	tail := eventlog.StreamVersionUint(len(es.streams[subjectID]))

	if expectedVersion != eventlog.NoStreamVersionCheck && expectedVersion != tail {
		return 0, &eventlog.ConflictError{SubjectID: subjectID, Expected: expectedVersion, Actual: tail}
	}

	es.streams[subjectID] = append(es.streams[subjectID], events...)
	newTail := eventlog.StreamVersionUint(len(es.streams[subjectID]))

	if es.logger != nil {
		es.logger.Info("events appended", "subject_id", subjectID, "event_count", len(events), "tail_version", newTail)
	}

	return newTail, nil
}

// Read returns the subject's events with a stream version greater than
// fromVersion, in version order, up to limit events (limit <= 0 means no
// limit). A fromVersion at or beyond the tail yields an empty slice, never an
// error; an absent stream reads as empty.
func (es *EventStore) Read(
	_ context.Context,
	subjectID string,
	fromVersion eventlog.StreamVersionUint,
	limit int,
) (eventlog.RecordedEvents, error) {

	es.mu.RLock()
	defer es.mu.RUnlock()

	stream := es.streams[subjectID]
	recorded := make(eventlog.RecordedEvents, 0)

	for i, event := range stream {
		version := eventlog.StreamVersionUint(i + 1)
		if version <= fromVersion {
			continue
		}

		recorded = append(recorded, eventlog.RecordedEvent{StorableEvent: event, StreamVersion: version})

		if limit > 0 && len(recorded) == limit {
			break
		}
	}

	return recorded, nil
}

// TailVersion returns the current stream length for the subject; 0 for a
// non-existent stream.
func (es *EventStore) TailVersion(_ context.Context, subjectID string) (eventlog.StreamVersionUint, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	return eventlog.StreamVersionUint(len(es.streams[subjectID])), nil
}

// Subjects returns all subject IDs that have at least one event, sorted.
func (es *EventStore) Subjects(_ context.Context) ([]string, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	subjects := make([]string, 0, len(es.streams))
	for subjectID := range es.streams {
		subjects = append(subjects, subjectID)
	}
	slices.Sort(subjects)

	return subjects, nil
}

// SaveSnapshot stores the snapshot, replacing any previous snapshot for the
// same projection type and subject key.
func (es *EventStore) SaveSnapshot(_ context.Context, snapshot eventlog.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return errors.Join(eventlog.ErrSavingSnapshotFailed, err)
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	es.snapshots[snapshotKey{snapshot.ProjectionType, snapshot.SubjectKey}] = snapshot

	return nil
}

// LoadSnapshot returns the stored snapshot, or nil when none exists.
func (es *EventStore) LoadSnapshot(_ context.Context, projectionType, subjectKey string) (*eventlog.Snapshot, error) {
	if projectionType == "" {
		return nil, errors.Join(eventlog.ErrLoadingSnapshotFailed, eventlog.ErrEmptyProjectionType)
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	snapshot, ok := es.snapshots[snapshotKey{projectionType, subjectKey}]
	if !ok {
		return nil, nil
	}

	return &snapshot, nil
}

// DeleteSnapshot removes the stored snapshot; deleting a missing snapshot is a no-op.
func (es *EventStore) DeleteSnapshot(_ context.Context, projectionType, subjectKey string) error {
	if projectionType == "" {
		return errors.Join(eventlog.ErrDeletingSnapshotFailed, eventlog.ErrEmptyProjectionType)
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	delete(es.snapshots, snapshotKey{projectionType, subjectKey})

	return nil
}
