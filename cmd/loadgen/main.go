// Command loadgen drives synthetic clinical activity through the full
// ingestion path (facade -> stream store -> pipeline -> projectors) and
// reports throughput, projection lag, and dead letters.
//
// It runs against the in-memory engine by default, which makes it a
// self-contained smoke and load harness:
//
//	loadgen --subjects 50 --events 10000 --shards 8
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"github.com/vivecare/clinstream/checkpoint/memoryengine"
	"github.com/vivecare/clinstream/core"
	elmemory "github.com/vivecare/clinstream/eventlog/memoryengine"
	"github.com/vivecare/clinstream/eventlog/oteladapters"
	"github.com/vivecare/clinstream/facade"
	"github.com/vivecare/clinstream/pipeline"
	"github.com/vivecare/clinstream/projection/adherence"
	"github.com/vivecare/clinstream/projection/patientsummary"
	"github.com/vivecare/clinstream/projection/quality"
	"github.com/vivecare/clinstream/projection/workqueue"
	"github.com/vivecare/clinstream/validation"
)

func main() {
	subjects := pflag.Int("subjects", 20, "number of concurrent subject streams")
	events := pflag.Int("events", 5000, "total number of events to append")
	shards := pflag.Int("shards", 4, "pipeline shard workers")
	batchSize := pflag.Int("batch-size", 100, "pipeline batch size")
	settle := pflag.Duration("settle", 2*time.Second, "how long to wait for projections to converge")
	seed := pflag.Int64("seed", 42, "random seed for the event mix")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := run(*subjects, *events, *shards, *batchSize, *settle, *seed, logger); err != nil {
		logger.Error("loadgen failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(
	subjects int,
	events int,
	shards int,
	batchSize int,
	settle time.Duration,
	seed int64,
	logger *slog.Logger,
) error {

	ctx := context.Background()
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec //synthetic load only

	store := elmemory.NewEventStore()
	checkpoints := memoryengine.NewStore()
	validator := validation.NewValidator(validation.ConsentCheckerFunc(
		func(context.Context, core.ConsentIDString) bool { return true },
	))

	adherenceProjector, err := adherence.NewProjector(store, checkpoints)
	if err != nil {
		return err
	}
	qualityProjector, err := quality.NewProjector(store, checkpoints)
	if err != nil {
		return err
	}
	workQueueProjector, err := workqueue.NewProjector(store, checkpoints)
	if err != nil {
		return err
	}
	summaryProjector, err := patientsummary.NewProjector(store, checkpoints)
	if err != nil {
		return err
	}

	cfg := pipeline.DefaultConfig()
	cfg.Shards = shards
	cfg.BatchSize = batchSize

	// The global OTel providers are noops unless the process installs real
	// ones, so this wiring is free by default and observable when needed.
	metrics := oteladapters.NewMetricsCollector(otel.Meter("clinstream/loadgen"))

	pipe, err := pipeline.NewPipeline(cfg, store, checkpoints, []pipeline.Projector{
		adherenceProjector, qualityProjector, workQueueProjector, summaryProjector,
	}, pipeline.WithLogger(logger), pipeline.WithMetrics(metrics))
	if err != nil {
		return err
	}

	ingest, err := facade.NewFacade(store, validator,
		facade.WithProjector(adherenceProjector),
		facade.WithProjector(qualityProjector),
		facade.WithProjector(workQueueProjector),
		facade.WithProjector(summaryProjector),
		facade.WithAppendObserver(pipe),
		facade.WithContextualLogger(oteladapters.NewSlogBridgeLoggerWithHandler(logger.Handler())),
	)
	if err != nil {
		return err
	}

	if err := pipe.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = pipe.Stop() }()

	start := time.Now()

	for i := 0; i < events; i++ {
		subjectID := fmt.Sprintf("subject-%03d", rng.Intn(subjects))
		occurredAt := start.Add(time.Duration(i) * time.Millisecond)

		if _, err := ingest.LogEventAtTail(ctx, randomEvent(rng, subjectID, i, occurredAt), loadMeta()); err != nil {
			return err
		}
	}

	appendDuration := time.Since(start)

	time.Sleep(settle)

	status, err := pipe.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("appended %d events across %d subjects in %s (%.0f events/sec)\n",
		events, subjects, appendDuration.Round(time.Millisecond),
		float64(events)/appendDuration.Seconds())
	fmt.Printf("dirty subjects: %d\n", status.DirtySubjects)
	for name, lag := range status.Lag {
		fmt.Printf("projector %-16s lag=%-6d dead_letters=%d\n", name, lag, status.DeadLetterCount[name])
	}

	return nil
}

// randomEvent produces a plausible clinical mix: mostly reps and sessions,
// occasional feedback and alerts, rare consent changes.
func randomEvent(rng *rand.Rand, subjectID string, n int, occurredAt time.Time) core.DomainEvent {
	sessionID := fmt.Sprintf("session-%d", n/20)
	alertID := fmt.Sprintf("alert-%s-%d", subjectID, n/50)
	therapistID := "therapist-01"

	switch roll := rng.Intn(100); {
	case roll < 60:
		return core.BuildRepObserved(subjectID, sessionID, "exercise-squat", n%20, 50+rng.Float64()*50, occurredAt)

	case roll < 80:
		return core.BuildExerciseSessionCompleted(subjectID, sessionID, "exercise-squat", 10+rng.Intn(10), 300, occurredAt)

	case roll < 90:
		return core.BuildFeedbackGiven(subjectID, therapistID, "watch your tempo", "", occurredAt)

	case roll < 97:
		severities := []string{core.SeverityCritical, core.SeverityHigh, core.SeverityMedium, core.SeverityLow}
		return core.BuildAlertRaised(subjectID, alertID, therapistID, severities[rng.Intn(len(severities))], "missed sessions", occurredAt)

	default:
		return core.BuildConsentRecorded(subjectID, "consent-"+subjectID, core.ConsentGranted, "activity-tracking", occurredAt)
	}
}

func loadMeta() core.EventMeta {
	return core.BuildEventMeta(false, "", "1.0", time.Now(), "loadgen")
}
