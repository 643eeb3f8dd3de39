package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config tunes the pipeline's concurrency, batching, and retry behavior.
// All knobs have working defaults; ConfigFromEnv overrides them from the
// process environment.
type Config struct {
	// Shards is the number of worker goroutines. Subjects are assigned to
	// shards by hash, so one subject's events are always processed by the
	// same worker, in order.
	Shards int `env:"PIPELINE_SHARDS" envDefault:"4"`

	// QueueCapacity bounds each shard's pending-subject queue. A full queue
	// exerts backpressure on that shard only; the subject stays dirty and is
	// redispatched on a later tick.
	QueueCapacity int `env:"PIPELINE_QUEUE_CAPACITY" envDefault:"256"`

	// BatchSize is the maximum number of events read and applied per
	// projector call.
	BatchSize int `env:"PIPELINE_BATCH_SIZE" envDefault:"100"`

	// BatchTimeout is the dispatch interval for dirty subjects: appends
	// arriving within one interval coalesce into one batch.
	BatchTimeout time.Duration `env:"PIPELINE_BATCH_TIMEOUT" envDefault:"25ms"`

	// PollInterval is the full-scan interval that catches events appended
	// outside the notification path and re-checks lagging subjects.
	PollInterval time.Duration `env:"PIPELINE_POLL_INTERVAL" envDefault:"250ms"`

	// ApplyTimeout is the deadline for a single projector apply call. An
	// attempt that exceeds it counts as a failure for retry purposes, so a
	// blocking projector cannot pin its shard worker.
	ApplyTimeout time.Duration `env:"PIPELINE_APPLY_TIMEOUT" envDefault:"5s"`

	// MaxApplyRetries bounds projector apply attempts per batch before the
	// batch is dead-lettered.
	MaxApplyRetries int `env:"PIPELINE_MAX_APPLY_RETRIES" envDefault:"5"`

	// RetryBaseDelay is the base delay for apply-retry backoff.
	RetryBaseDelay time.Duration `env:"PIPELINE_RETRY_BASE_DELAY" envDefault:"10ms"`
}

// ErrInvalidConfig is the sentinel all config validation failures match.
var ErrInvalidConfig = errors.New("invalid pipeline config")

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Shards:          4,
		QueueCapacity:   256,
		BatchSize:       100,
		BatchTimeout:    25 * time.Millisecond,
		PollInterval:    250 * time.Millisecond,
		ApplyTimeout:    5 * time.Second,
		MaxApplyRetries: 5,
		RetryBaseDelay:  10 * time.Millisecond,
	}
}

// ConfigFromEnv builds a Config from the process environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that every knob is in a usable range.
func (c Config) Validate() error {
	if c.Shards <= 0 {
		return fmt.Errorf("%w: shards must be positive", ErrInvalidConfig)
	}

	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue capacity must be positive", ErrInvalidConfig)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}

	if c.BatchTimeout <= 0 {
		return fmt.Errorf("%w: batch timeout must be positive", ErrInvalidConfig)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}

	if c.ApplyTimeout <= 0 {
		return fmt.Errorf("%w: apply timeout must be positive", ErrInvalidConfig)
	}

	if c.MaxApplyRetries <= 0 {
		return fmt.Errorf("%w: max apply retries must be positive", ErrInvalidConfig)
	}

	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("%w: retry base delay must not be negative", ErrInvalidConfig)
	}

	return nil
}
