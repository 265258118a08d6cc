// Package resilience retries transient failures of outbound calls and
// trips a circuit breaker per operation when a dependency stays down.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Verdict classifies one failed attempt.
type Verdict int

const (
	// Fatal stops retrying; the failure counts against the breaker.
	Fatal Verdict = iota
	// Retry allows another attempt; the failure counts against the
	// breaker.
	Retry
	// Ignore stops retrying without charging the breaker, for
	// caller-side causes like a canceled context.
	Ignore
)

// Classifier decides the verdict for a non-nil error.
type Classifier func(err error) Verdict

// Guard runs callbacks under a retry policy and a lazily-created
// circuit breaker per operation name.
type Guard struct {
	policy Policy

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewGuard(policy Policy) *Guard {
	return &Guard{
		policy:   policy.withDefaults(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Run executes fn under the guard's policy. A nil classifier treats
// every failure as Fatal.
func (g *Guard) Run(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return errors.New("resilience: nil callback for " + op)
	}
	if classify == nil {
		classify = func(error) Verdict { return Fatal }
	}

	if !g.policy.BreakerEnabled {
		return g.attempt(ctx, op, fn, classify)
	}

	_, err := g.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, g.attempt(ctx, op, fn, classify)
	})
	return err
}

func (g *Guard) attempt(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if classify(err) != Retry || attempt == g.policy.MaxAttempts {
			return err
		}

		delay := g.delayFor(attempt)
		slog.Warn("retrying operation",
			"op", op,
			"attempt", attempt,
			"of", g.policy.MaxAttempts,
			"delay", delay.String(),
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// delayFor grows the base delay geometrically with the attempt number,
// capped at the policy maximum.
func (g *Guard) delayFor(attempt int) time.Duration {
	delay := g.policy.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * g.policy.DelayFactor)
		if delay >= g.policy.MaxDelay {
			return g.policy.MaxDelay
		}
	}
	return delay
}

func (g *Guard) breaker(op string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[op]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: g.policy.HalfOpenProbes,
		Timeout:     g.policy.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= g.policy.TripAfter &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= g.policy.TripRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || classify(err) == Ignore
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit state change", "op", name, "from", from.String(), "to", to.String())
		},
	})
	g.breakers[op] = cb
	return cb
}

// IsCircuitOpen reports whether err means the breaker refused the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
