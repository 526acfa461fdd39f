// Package retry runs failed operations again later with exponential backoff,
// decoupled from the caller: scheduling a job returns immediately and the
// attempts fire as independent units of work. A job that exhausts its
// attempts is handed to the dead-letter sink exactly once.
package retry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ghuser/fulfillment/pkg/deadletter"
	"github.com/ghuser/fulfillment/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// Job is one retryable unit of work.
type Job struct {
	// Name identifies the operation in logs and dead letters.
	Name string
	// Key is the business identifier (order id, event id).
	Key string
	// Payload is durable context recorded with a dead letter.
	Payload json.RawMessage
	// Attempt executes one try. attempt starts at 1.
	Attempt func(ctx context.Context, attempt int) error
	// OnExhausted runs after the job is dead-lettered, with the last error.
	// Optional; used to emit a terminal failure event.
	OnExhausted func(ctx context.Context, lastErr error)
}

// Config tunes the backoff curve: delay = BaseDelay * Multiplier^attempt,
// capped at MaxDelay, jittered.
type Config struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
}

// Scheduler executes Jobs asynchronously with backoff between attempts.
type Scheduler struct {
	cfg  Config
	sink deadletter.Sink
	log  logger.Logger
	wg   sync.WaitGroup
}

// NewScheduler returns a Scheduler routing exhausted jobs to sink.
func NewScheduler(cfg Config, sink deadletter.Sink, log logger.Logger) *Scheduler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}
	return &Scheduler{cfg: cfg, sink: sink, log: log}
}

// Go schedules the job and returns immediately. The first attempt runs
// without delay; each subsequent attempt waits the backoff delay. Attempts
// stop on the first nil return.
func (s *Scheduler) Go(ctx context.Context, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, job)
	}()
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.BaseDelay
	bo.MaxInterval = s.cfg.MaxDelay
	bo.Multiplier = s.cfg.Multiplier

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		lastErr = job.Attempt(ctx, attempt)
		if lastErr == nil {
			return
		}

		if attempt < s.cfg.MaxAttempts {
			delay := bo.NextBackOff()
			s.log.WarnContext(ctx, "retry: attempt failed, backing off",
				"job", job.Name,
				"key", job.Key,
				"attempt", attempt,
				"max_attempts", s.cfg.MaxAttempts,
				"next_delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				s.deadLetter(context.WithoutCancel(ctx), job, attempt, ctx.Err())
				return
			case <-time.After(delay):
			}
		}
	}

	s.deadLetter(ctx, job, s.cfg.MaxAttempts, lastErr)
	if job.OnExhausted != nil {
		job.OnExhausted(ctx, lastErr)
	}
}

func (s *Scheduler) deadLetter(ctx context.Context, job Job, attempts int, lastErr error) {
	err := s.sink.Sink(ctx, deadletter.Entry{
		Source:     job.Name,
		Kind:       "retry_exhausted",
		Key:        job.Key,
		Payload:    job.Payload,
		Reason:     lastErr.Error(),
		Attempts:   attempts,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "retry: failed to record dead letter",
			"job", job.Name, "key", job.Key, "error", err)
	}
}

// Close waits for in-flight jobs to finish, up to 30 s.
func (s *Scheduler) Close() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		s.log.Error("retry: timed out waiting for in-flight jobs")
	}
}
