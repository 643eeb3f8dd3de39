package facade

import (
	"context"
	"errors"

	"github.com/vivecare/clinstream/core"
	"github.com/vivecare/clinstream/eventlog"
	"github.com/vivecare/clinstream/projection"
	"github.com/vivecare/clinstream/shell"
	"github.com/vivecare/clinstream/validation"
)

var (
	// ErrNilEventStore is returned when a facade is built without a stream store.
	ErrNilEventStore = errors.New("event store must not be nil")

	// ErrNilValidator is returned when a facade is built without a validator.
	ErrNilValidator = errors.New("validator must not be nil")

	// ErrNilProjector is returned when WithProjector is given a nil projector.
	ErrNilProjector = errors.New("projector must not be nil")

	// ErrNilAppendObserver is returned when WithAppendObserver is given a nil observer.
	ErrNilAppendObserver = errors.New("append observer must not be nil")
)

// EventStore is the write-and-read surface of the stream store the facade needs.
type EventStore interface {
	Append(ctx context.Context, subjectID string, expectedVersion eventlog.StreamVersionUint, events ...eventlog.StorableEvent) (eventlog.StreamVersionUint, error)
	Read(ctx context.Context, subjectID string, fromVersion eventlog.StreamVersionUint, limit int) (eventlog.RecordedEvents, error)
	TailVersion(ctx context.Context, subjectID string) (eventlog.StreamVersionUint, error)
}

// Projector is the query surface of a registered projection.
type Projector interface {
	Name() string
	Query(ctx context.Context, q projection.Query) (projection.View, error)
}

// AppendObserver is notified after every successful append. The pipeline
// registers itself here so new events are picked up without waiting for the
// next poll tick.
type AppendObserver interface {
	NotifyAppend(subjectID string, tailVersion eventlog.StreamVersionUint)
}

// Facade validates and logs events, reads streams, and routes projection
// queries. It is the only component allowed to write to the stream store.
type Facade struct {
	store            EventStore
	validator        *validation.Validator
	projectors       map[string]Projector
	observers        []AppendObserver
	logger           eventlog.Logger
	contextualLogger eventlog.ContextualLogger
}

// Option defines a functional option for configuring the Facade.
type Option func(*Facade) error

// WithProjector registers a projector under its name for Project queries.
func WithProjector(p Projector) Option {
	return func(f *Facade) error {
		if p == nil {
			return ErrNilProjector
		}

		f.projectors[p.Name()] = p

		return nil
	}
}

// WithAppendObserver registers an observer notified after successful appends.
func WithAppendObserver(observer AppendObserver) Option {
	return func(f *Facade) error {
		if observer == nil {
			return ErrNilAppendObserver
		}

		f.observers = append(f.observers, observer)

		return nil
	}
}

// WithLogger sets the logger for the facade.
func WithLogger(logger eventlog.Logger) Option {
	return func(f *Facade) error {
		f.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the facade.
func WithContextualLogger(logger eventlog.ContextualLogger) Option {
	return func(f *Facade) error {
		f.contextualLogger = logger
		return nil
	}
}

// NewFacade creates a Facade over the given store and validator.
func NewFacade(store EventStore, validator *validation.Validator, options ...Option) (*Facade, error) {
	if store == nil {
		return nil, ErrNilEventStore
	}

	if validator == nil {
		return nil, ErrNilValidator
	}

	f := &Facade{
		store:      store,
		validator:  validator,
		projectors: make(map[string]Projector),
	}

	for _, option := range options {
		if err := option(f); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// LogEvent validates the event, appends it to its subject's stream iff
// expectedVersion matches the tail, and returns the persisted envelope with
// its assigned stream version.
//
// A validation failure returns without touching storage. A concurrency
// conflict is returned to the caller unchanged: the facade never silently
// retries.
func (f *Facade) LogEvent(
	ctx context.Context,
	event core.DomainEvent,
	meta core.EventMeta,
	expectedVersion eventlog.StreamVersionUint,
) (shell.Envelope, error) {

	if validateErr := f.validator.Validate(ctx, event, meta); validateErr != nil {
		f.logInfo(ctx, "event rejected by validation",
			"subject_id", event.HasSubjectID(), "event_type", event.IsEventType(), "error", validateErr.Error())
		return shell.Envelope{}, validateErr
	}

	metadata := shell.NewEventMetadata(meta)

	storableEvent, mapErr := shell.StorableEventFrom(event, metadata)
	if mapErr != nil {
		return shell.Envelope{}, mapErr
	}

	subjectID := event.HasSubjectID()

	tailVersion, appendErr := f.store.Append(ctx, subjectID, expectedVersion, storableEvent)
	if appendErr != nil {
		return shell.Envelope{}, appendErr
	}

	f.logInfo(ctx, "event logged",
		"subject_id", subjectID, "event_type", event.IsEventType(), "stream_version", tailVersion)

	for _, observer := range f.observers {
		observer.NotifyAppend(subjectID, tailVersion)
	}

	return shell.Envelope{
		Event:         event,
		Meta:          metadata,
		SubjectID:     subjectID,
		StreamVersion: tailVersion,
	}, nil
}

// LogEventAtTail appends without the optimistic-concurrency check.
func (f *Facade) LogEventAtTail(ctx context.Context, event core.DomainEvent, meta core.EventMeta) (shell.Envelope, error) {
	return f.LogEvent(ctx, event, meta, eventlog.NoStreamVersionCheck)
}

// ReadStream returns the subject's decoded events above fromVersion, in
// stream order, up to limit (limit <= 0 means no limit).
func (f *Facade) ReadStream(
	ctx context.Context,
	subjectID string,
	fromVersion eventlog.StreamVersionUint,
	limit int,
) (shell.Envelopes, error) {

	recorded, readErr := f.store.Read(ctx, subjectID, fromVersion, limit)
	if readErr != nil {
		return nil, readErr
	}

	return shell.EnvelopesFrom(recorded)
}

// StreamVersion returns the subject's current tail version; 0 for a
// non-existent stream.
func (f *Facade) StreamVersion(ctx context.Context, subjectID string) (eventlog.StreamVersionUint, error) {
	return f.store.TailVersion(ctx, subjectID)
}

// Project routes the query to the named projection. An unregistered name or a
// query missing a required filter yields an error matching
// projection.ErrInvalidQuery.
func (f *Facade) Project(ctx context.Context, name string, q projection.Query) (projection.View, error) {
	projector, found := f.projectors[name]
	if !found {
		return nil, &projection.InvalidQueryError{
			Projection: name,
			Filter:     "name",
			Reason:     "unknown projection",
		}
	}

	return projector.Query(ctx, q)
}

func (f *Facade) logInfo(ctx context.Context, msg string, args ...any) {
	switch {
	case f.contextualLogger != nil:
		f.contextualLogger.InfoContext(ctx, msg, args...)

	case f.logger != nil:
		f.logger.Info(msg, args...)
	}
}
