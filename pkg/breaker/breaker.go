// Package breaker provides per-dependency circuit breakers for outbound calls
// to external gateways. One Breaker per dependency, never shared across
// unrelated dependencies.
//
// State machine (sony/gobreaker underneath):
//   - closed: calls pass through; failures counted over a trailing window
//   - open: calls fail fast with ErrOpen for the cooldown duration
//   - half-open: a bounded number of probe calls; all succeeding closes the
//     breaker, any failure reopens it and restarts the cooldown
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ghuser/fulfillment/pkg/logger"
	"github.com/ghuser/fulfillment/pkg/telemetry"
)

// ErrOpen is returned when the breaker rejects a call without invoking the
// dependency. Callers classify it as a transient failure.
var ErrOpen = errors.New("circuit breaker open")

// Config tunes one breaker instance.
type Config struct {
	// Name identifies the protected dependency in logs and metrics.
	Name string

	// Window is the trailing window over which the failure ratio is measured
	// while the breaker is closed.
	Window time.Duration

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// FailureRatio trips the breaker when at least MinRequests calls were
	// made in the window and this fraction of them failed.
	FailureRatio float64

	// MinRequests is the minimum call count in the window before the ratio
	// is considered.
	MinRequests uint

	// HalfOpenProbes is the number of probe calls admitted while half-open.
	HalfOpenProbes uint

	// Classify reports whether err counts as a breaker failure. Business
	// rejections (a declined card) must return false — they prove the
	// dependency is healthy. nil means every non-nil error counts.
	Classify func(err error) bool
}

// Breaker wraps a dependency call of type T behind the circuit state machine.
type Breaker[T any] struct {
	cb  *gobreaker.CircuitBreaker[T]
	log logger.Logger
}

// New constructs a Breaker from cfg.
func New[T any](cfg Config, log logger.Logger) *Breaker[T] {
	classify := cfg.Classify
	if classify == nil {
		classify = func(err error) bool { return err != nil }
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: uint32(cfg.HalfOpenProbes),
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			telemetry.BreakerState.WithLabelValues(name).Set(stateValue(to))
			log.Warn("breaker: state change",
				"dependency", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return !classify(err)
		},
	}

	return &Breaker[T]{
		cb:  gobreaker.NewCircuitBreaker[T](settings),
		log: log,
	}
}

// Execute runs fn through the breaker. When the breaker is open or half-open
// probes are exhausted, fn is not invoked and ErrOpen is returned.
func (b *Breaker[T]) Execute(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (T, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, ErrOpen
	}
	return v, err
}

// State returns the current breaker state name ("closed", "half-open", "open").
func (b *Breaker[T]) State() string {
	return b.cb.State().String()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
