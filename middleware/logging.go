package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/bystander/job"
)

// Logging logs each attempt once it finishes, with the request it belongs
// to and the outcome the handler reported. A successful stale timeout logs
// at debug level since nothing happened.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, o := withOutcome(ctx)
		log := logger.With(
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("request_id", j.RequestID),
			slog.Int("attempt", j.RetryCount+1),
		)

		start := time.Now()
		err := next(ctx)
		attrs := []any{
			slog.String("outcome", o.label(err)),
			slog.Duration("elapsed", time.Since(start)),
		}

		switch {
		case err != nil:
			log.Error("job attempt failed", append(attrs, slog.String("error", err.Error()))...)
		case o.name == "stale" || o.name == "expired":
			log.Debug("job attempt was a no-op", attrs...)
		default:
			log.Info("job attempt done", attrs...)
		}
		return err
	}
}
