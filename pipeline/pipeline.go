// Package pipeline moves newly appended events from the stream store to every
// projector with bounded resource use and resilience to slow or failing
// projectors.
//
// Subjects are hashed onto a fixed set of shard workers, so one subject's
// events are always applied by the same worker in stream order while distinct
// subjects proceed in parallel. Each shard has a bounded queue: when it fills,
// backpressure lands on that shard alone — the subject stays marked dirty and
// is redispatched later, and ingestion is never blocked.
//
// A projector whose apply keeps failing past the retry bound has the batch
// dead-lettered and its cursor advanced past the poisoned range, so later
// batches for the same subject keep flowing. Worker panics are contained by a
// supervisor loop that restarts the shard; resumption happens naturally from
// the projectors' durable checkpoints.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/vivecare/clinstream/checkpoint"
	"github.com/vivecare/clinstream/eventlog"
	"github.com/vivecare/clinstream/projection"
	"github.com/vivecare/clinstream/shell"
)

var (
	// ErrNilEventStore is returned when a pipeline is built without a stream store.
	ErrNilEventStore = errors.New("event store must not be nil")

	// ErrNilCheckpointStore is returned when a pipeline is built without a checkpoint store.
	ErrNilCheckpointStore = errors.New("checkpoint store must not be nil")

	// ErrNoProjectors is returned when a pipeline is built without projectors.
	ErrNoProjectors = errors.New("at least one projector is required")

	// ErrAlreadyRunning is returned when Start is called on a running pipeline.
	ErrAlreadyRunning = errors.New("pipeline is already running")

	// ErrNotRunning is returned when Stop is called on a stopped pipeline.
	ErrNotRunning = errors.New("pipeline is not running")
)

// Projector is the apply surface of a projection as the pipeline sees it.
type Projector interface {
	Name() string
	ApplyBatch(ctx context.Context, subjectID string, envelopes shell.Envelopes) error
	AdvancePast(ctx context.Context, subjectID string, toVersion uint) error
	LastApplied(subjectID string) (uint, bool)
}

// Status is a point-in-time snapshot of the pipeline's health surface.
type Status struct {
	Running         bool
	DirtySubjects   int
	QueueDepths     []int
	DeadLetterCount map[string]int
	// Lag is tail_version - last_applied_version summed over subjects,
	// per projector.
	Lag map[string]uint
}

// Pipeline fans appended events out to all registered projectors.
type Pipeline struct {
	cfg         Config
	store       projection.EventStore
	checkpoints checkpoint.Store
	projectors  []Projector
	logger      eventlog.Logger
	metrics     eventlog.MetricsCollector

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	dirty       map[string]struct{}
	queued      map[string]bool
	shardQueues []chan string
}

// Option defines a functional option for configuring the Pipeline.
type Option func(*Pipeline) error

// WithLogger sets the logger for the pipeline.
func WithLogger(logger eventlog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the pipeline.
func WithMetrics(collector eventlog.MetricsCollector) Option {
	return func(p *Pipeline) error {
		p.metrics = collector
		return nil
	}
}

// NewPipeline creates a pipeline feeding the given projectors from the store.
func NewPipeline(
	cfg Config,
	store projection.EventStore,
	checkpoints checkpoint.Store,
	projectors []Projector,
	options ...Option,
) (*Pipeline, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if store == nil {
		return nil, ErrNilEventStore
	}

	if checkpoints == nil {
		return nil, ErrNilCheckpointStore
	}

	if len(projectors) == 0 {
		return nil, ErrNoProjectors
	}

	p := &Pipeline{
		cfg:         cfg,
		store:       store,
		checkpoints: checkpoints,
		projectors:  projectors,
		dirty:       make(map[string]struct{}),
		queued:      make(map[string]bool),
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Start launches the producer and shard workers. The pipeline runs until Stop
// or until ctx is canceled.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.shardQueues = make([]chan string, p.cfg.Shards)
	for shard := range p.shardQueues {
		p.shardQueues[shard] = make(chan string, p.cfg.QueueCapacity)
	}

	for shard := range p.shardQueues {
		p.wg.Add(1)
		go p.superviseShard(runCtx, shard)
	}

	p.wg.Add(1)
	go p.produce(runCtx)

	p.logInfo("pipeline started", "shards", p.cfg.Shards, "queue_capacity", p.cfg.QueueCapacity)

	return nil
}

// Stop cancels all workers and waits for them to drain.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}

	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	p.logInfo("pipeline stopped")

	return nil
}

// NotifyAppend marks the subject dirty so its new events are dispatched on
// the next batch tick. Implements the facade's append observer; never blocks.
func (p *Pipeline) NotifyAppend(subjectID string, _ eventlog.StreamVersionUint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dirty[subjectID] = struct{}{}
}

// Status reports queue depths, dirty subjects, dead letters, and lag.
func (p *Pipeline) Status(ctx context.Context) (Status, error) {
	p.mu.Lock()
	status := Status{
		Running:         p.running,
		DirtySubjects:   len(p.dirty),
		QueueDepths:     make([]int, len(p.shardQueues)),
		DeadLetterCount: make(map[string]int, len(p.projectors)),
		Lag:             make(map[string]uint, len(p.projectors)),
	}
	for shard, queue := range p.shardQueues {
		status.QueueDepths[shard] = len(queue)
	}
	p.mu.Unlock()

	subjects, err := p.store.Subjects(ctx)
	if err != nil {
		return Status{}, err
	}

	tails := make(map[string]eventlog.StreamVersionUint, len(subjects))
	for _, subjectID := range subjects {
		tail, tailErr := p.store.TailVersion(ctx, subjectID)
		if tailErr != nil {
			return Status{}, tailErr
		}
		tails[subjectID] = tail
	}

	for _, projector := range p.projectors {
		count, countErr := p.checkpoints.DeadLetterCount(ctx, projector.Name())
		if countErr != nil {
			return Status{}, countErr
		}
		status.DeadLetterCount[projector.Name()] = count

		var lag uint
		for subjectID, tail := range tails {
			applied, _ := projector.LastApplied(subjectID)
			if uint(tail) > applied {
				lag += uint(tail) - applied
			}
		}
		status.Lag[projector.Name()] = lag
	}

	return status, nil
}

// produce is the single producer goroutine: it flushes dirty subjects to
// their shards on the batch tick and runs a full lag scan on the poll tick.
func (p *Pipeline) produce(ctx context.Context) {
	defer p.wg.Done()

	batchTicker := time.NewTicker(p.cfg.BatchTimeout)
	defer batchTicker.Stop()

	pollTicker := time.NewTicker(p.cfg.PollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-batchTicker.C:
			p.flushDirty()

		case <-pollTicker.C:
			p.scanForLag(ctx)
			p.flushDirty()
		}
	}
}

// flushDirty moves dirty subjects into their shard queues. A full shard queue
// leaves the subject dirty: per-shard backpressure, no producer stall.
func (p *Pipeline) flushDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for subjectID := range p.dirty {
		if p.queued[subjectID] {
			continue
		}

		shard := p.shardFor(subjectID)

		select {
		case p.shardQueues[shard] <- subjectID:
			p.queued[subjectID] = true
			delete(p.dirty, subjectID)

		default:
			// shard saturated, retry on a later tick
		}
	}
}

// scanForLag marks every subject whose tail is ahead of any projector's
// cursor. This catches appends that bypassed the notification path and
// subjects left dirty after dead-lettering.
func (p *Pipeline) scanForLag(ctx context.Context) {
	subjects, err := p.store.Subjects(ctx)
	if err != nil {
		p.logWarn("lag scan failed to list subjects", err)
		return
	}

	for _, subjectID := range subjects {
		tail, tailErr := p.store.TailVersion(ctx, subjectID)
		if tailErr != nil {
			p.logWarn("lag scan failed to read tail version", tailErr)
			continue
		}

		for _, projector := range p.projectors {
			applied, _ := projector.LastApplied(subjectID)
			if uint(tail) > applied {
				p.NotifyAppend(subjectID, tail)
				break
			}
		}
	}
}

// superviseShard runs the shard worker and restarts it after a panic. The
// restart is safe because all durable progress lives in the projectors'
// checkpoints; a half-processed subject is simply re-dispatched.
func (p *Pipeline) superviseShard(ctx context.Context, shard int) {
	defer p.wg.Done()

	for ctx.Err() == nil {
		p.runShard(ctx, shard)
	}
}

func (p *Pipeline) runShard(ctx context.Context, shard int) {
	defer func() {
		if recovered := recover(); recovered != nil {
			p.logWarn("shard worker panicked, restarting", fmt.Errorf("panic: %v", recovered))
			p.recordCounter("pipeline_worker_restarts_total", map[string]string{"shard": fmt.Sprintf("%d", shard)})
		}
	}()

	queue := p.shardQueues[shard]

	for {
		select {
		case <-ctx.Done():
			return

		case subjectID := <-queue:
			p.drainSubject(ctx, subjectID)

			p.mu.Lock()
			delete(p.queued, subjectID)
			p.mu.Unlock()
		}
	}
}

// drainSubject catches every projector up to the subject's tail, reading in
// batches from each projector's own cursor.
func (p *Pipeline) drainSubject(ctx context.Context, subjectID string) {
	for _, projector := range p.projectors {
		p.drainSubjectForProjector(ctx, subjectID, projector)
	}
}

func (p *Pipeline) drainSubjectForProjector(ctx context.Context, subjectID string, projector Projector) {
	// Catch-up reads tolerate replica staleness: a short read just means the
	// subject stays dirty and is drained again on the next tick.
	readCtx := eventlog.WithEventualConsistency(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		applied, _ := projector.LastApplied(subjectID)

		recorded, readErr := p.store.Read(readCtx, subjectID, eventlog.StreamVersionUint(applied), p.cfg.BatchSize)
		if readErr != nil {
			p.logWarn("reading events for projector failed", readErr)
			p.NotifyAppend(subjectID, 0)
			return
		}

		if len(recorded) == 0 {
			return
		}

		envelopes, decodeErr := shell.EnvelopesFrom(recorded)
		if decodeErr != nil {
			// Undecodable events are a poisoned batch too: dead-letter the
			// range and move on.
			p.deadLetter(ctx, projector, subjectID, recorded[0].StreamVersion, recorded[len(recorded)-1].StreamVersion, 0, decodeErr)
			return
		}

		if applyErr := p.applyWithRetry(ctx, projector, subjectID, envelopes); applyErr != nil {
			p.deadLetter(ctx, projector, subjectID, envelopes[0].StreamVersion, envelopes[len(envelopes)-1].StreamVersion, p.cfg.MaxApplyRetries, applyErr)
			continue
		}

		p.recordCounter("pipeline_batches_applied_total", map[string]string{"projector_id": projector.Name()})

		if len(recorded) < p.cfg.BatchSize {
			return
		}
	}
}

// applyWithRetry retries a failing apply with exponential backoff and jitter
// up to the configured bound. Every attempt carries the configured apply
// deadline; an attempt that exceeds it fails like any other and is retried,
// so a blocking projector cannot pin the shard worker.
func (p *Pipeline) applyWithRetry(ctx context.Context, projector Projector, subjectID string, envelopes shell.Envelopes) error {
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxApplyRetries; attempt++ {
		if attempt > 0 {
			delay := p.cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
			jitter := time.Duration(rand.Float64() * float64(delay) * 0.3) //nolint:gosec //math/rand is sufficient for jitter

			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.ApplyTimeout)
		lastErr = projector.ApplyBatch(attemptCtx, subjectID, envelopes)
		cancel()

		if lastErr == nil {
			return nil
		}
	}

	return lastErr
}

// deadLetter records the poisoned range and advances the projector's cursor
// past it, so the failure stays isolated to this range of this subject.
func (p *Pipeline) deadLetter(
	ctx context.Context,
	projector Projector,
	subjectID string,
	fromVersion eventlog.StreamVersionUint,
	toVersion eventlog.StreamVersionUint,
	attempts int,
	cause error,
) {
	letter := checkpoint.DeadLetter{
		ProjectorID: projector.Name(),
		SubjectID:   subjectID,
		FromVersion: fromVersion,
		ToVersion:   toVersion,
		Attempts:    attempts,
		Reason:      cause.Error(),
		FailedAt:    time.Now().UTC(),
	}

	if recordErr := p.checkpoints.RecordDeadLetter(ctx, letter); recordErr != nil {
		p.logWarn("recording dead letter failed", recordErr)
	}

	if advanceErr := projector.AdvancePast(ctx, subjectID, uint(toVersion)); advanceErr != nil {
		p.logWarn("advancing cursor past dead-lettered batch failed", advanceErr)
	}

	p.logWarn("batch dead-lettered", cause)
	p.recordCounter("pipeline_dead_letters_total", map[string]string{"projector_id": projector.Name()})
}

func (p *Pipeline) shardFor(subjectID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subjectID))

	return int(h.Sum32() % uint32(p.cfg.Shards))
}

func (p *Pipeline) logInfo(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) logWarn(msg string, err error) {
	if p.logger != nil {
		p.logger.Warn(msg, "error", err.Error())
	}
}

func (p *Pipeline) recordCounter(metric string, labels map[string]string) {
	if p.metrics != nil {
		p.metrics.IncrementCounter(metric, labels)
	}
}
