package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/job"
)

// Recover turns a panic in a timeout handler into an error wrapping
// bystander.ErrHandlerPanic, so the executor treats it like any other
// failure and the job is retried or failed. The stack goes to the log only.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("job handler panicked",
				slog.String("job_name", j.Name),
				slog.String("job_id", j.ID.String()),
				slog.String("request_id", j.RequestID),
				slog.Int("attempt", j.RetryCount+1),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			retErr = fmt.Errorf("%w: %s for request %s: %v", bystander.ErrHandlerPanic, j.Name, j.RequestID, r)
		}()
		return next(ctx)
	}
}
