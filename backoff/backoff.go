// Package backoff computes retry delays for failed timeout jobs.
//
// A timeout that fails usually failed because the chat platform was
// unavailable or rate limited. Strategies are stateless and safe for
// concurrent use; an error that carries its own retry hint (a Retry-After
// header, for instance) overrides the strategy through DelayFor.
package backoff

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(attempt int) time.Duration

// Delay calls f.
func (f StrategyFunc) Delay(attempt int) time.Duration { return f(attempt) }

// RetryAfter is implemented by errors that know when the failed call may
// be retried.
type RetryAfter interface {
	RetryAfter() time.Duration
}

// DelayFor returns the delay before retry attempt, preferring a positive
// hint from any RetryAfter in err's chain over s.
func DelayFor(s Strategy, attempt int, err error) time.Duration {
	var ra RetryAfter
	if errors.As(err, &ra) {
		if d := ra.RetryAfter(); d > 0 {
			return d
		}
	}
	return s.Delay(attempt)
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return time.Duration(exponential(e.Initial, e.Max, attempt))
}

func exponential(initial, maxDelay time.Duration, attempt int) float64 {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (equal jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter spreads retries of many timeouts that failed
// together, e.g. during a platform outage. Half of the exponential delay
// is kept and the other half is random, so a retry never fires
// immediately.
// Delay = d/2 + random[0, d/2] where d = min(Initial * 2^(attempt-1), Max).
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewExponentialWithJitter creates an exponential backoff with equal
// jitter. A nil rnd uses the global source.
func NewExponentialWithJitter(initial, maxDelay time.Duration, rnd *rand.Rand) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay, rnd: rnd}
}

// Delay returns a duration in [d/2, d].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	d := exponential(e.Initial, e.Max, attempt)
	return time.Duration(d/2 + e.float64()*d/2)
}

func (e *ExponentialWithJitter) float64() float64 {
	if e.rnd == nil {
		return rand.Float64() //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rnd.Float64()
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the backoff used for timeout jobs: equal jitter
// from 2s up to 30s, well inside a candidate's response window.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(2*time.Second, 30*time.Second, nil)
}
