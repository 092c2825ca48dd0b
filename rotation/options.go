package rotation

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/xraph/bystander/ext"
	"github.com/xraph/bystander/request"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRand sets the source used to shuffle candidates. A seeded source
// makes rotation order reproducible in tests.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rand = r }
}

// WithLocker sets the per-request lock. Defaults to a MemoryLocker.
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithRequestTTL sets how long an untouched request survives.
func WithRequestTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// WithResponseTimeout sets how long each candidate has to answer.
func WithResponseTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMinCandidates raises the smallest candidate list Start accepts.
// Values below request.MinCandidates are ignored.
func WithMinCandidates(n int) Option {
	return func(e *Engine) {
		if n >= request.MinCandidates {
			e.minCandidates = n
		}
	}
}

// WithExtensions sets the registry notified of lifecycle events.
func WithExtensions(r *ext.Registry) Option {
	return func(e *Engine) { e.extensions = r }
}

// WithClock overrides time.Now for entity timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
