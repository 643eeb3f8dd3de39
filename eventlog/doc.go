// Package eventlog provides the core abstractions for the append-only,
// per-subject clinical event log.
//
// This package defines the scalar types and contracts shared by the storage
// engines: the storable event DTO, stream version semantics, common error
// definitions, and the dependency-free observability interfaces.
//
// Streams are partitioned by subject. Within one subject's stream, events are
// totally ordered by a gapless stream version starting at 1; events are never
// mutated or removed after append. Across subjects there is no order guarantee.
//
// Key types:
//   - StorableEvent: an event ready to be appended, built on scalars
//   - RecordedEvent: a StorableEvent together with its assigned stream version
//   - ConflictError: returned when an optimistic-concurrency check fails
//
// Common usage pattern:
//
//	event, err := eventlog.BuildStorableEvent(eventType, subjectID, time.Now(), payload, metadata)
//	if err != nil {
//		// handle error
//	}
//
//	version, err := store.Append(ctx, subjectID, eventlog.NoStreamVersionCheck, event)
package eventlog
