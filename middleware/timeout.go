package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/bystander/job"
)

// Timeout returns middleware that enforces a per-job execution deadline.
// A job's own Timeout wins; jobs without one get fallback. A zero
// fallback leaves such jobs unbounded.
func Timeout(logger *slog.Logger, fallback time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		d := j.Timeout
		if d <= 0 {
			d = fallback
		}
		if d <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		err := next(ctx)
		if errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn("job exceeded its deadline",
				slog.String("job_id", j.ID.String()),
				slog.String("request_id", j.RequestID),
				slog.Duration("timeout", d),
			)
		}
		return err
	}
}
