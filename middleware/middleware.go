package middleware

import (
	"context"

	"github.com/xraph/bystander/job"
)

// Handler runs the job itself, typically the response-timeout handler that
// advances a request to its next candidate.
type Handler func(ctx context.Context) error

// Middleware wraps one attempt of j. It must call next to run the rest of
// the chain; returning without doing so skips the handler.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes mws so that mws[0] runs outermost:
//
//	Chain(a, b, c) runs a -> b -> c -> handler
//
// The chain installs the outcome slot SetOutcome writes to, so every
// member reports the same outcome for the attempt.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, _ = withOutcome(ctx)
		return chainFrom(ctx, j, mws, next)
	}
}

func chainFrom(ctx context.Context, j *job.Job, mws []Middleware, last Handler) error {
	if len(mws) == 0 {
		return last(ctx)
	}
	return mws[0](ctx, j, func(ctx context.Context) error {
		return chainFrom(ctx, j, mws[1:], last)
	})
}
