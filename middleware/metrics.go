package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/bystander/job"
)

// Metric names recorded by Metrics.
const (
	MetricAttempts = "bystander.job.attempts"
	MetricDuration = "bystander.job.duration"
	MetricLateness = "bystander.job.lateness"
)

// Metrics records attempts on the global MeterProvider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(instrumentationName))
}

// MetricsWithMeter records attempts on meter:
//
//   - bystander.job.attempts counts attempts by job_name, queue and outcome
//   - bystander.job.duration is handler time in seconds, same attributes
//   - bystander.job.lateness is how long after RunAt the attempt began,
//     by job_name and queue
//
// The outcome is what the handler passed to SetOutcome ("advanced",
// "stale", "given_up", ...), "ok" when it named none and "error" on failure.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instrument errors still yield usable noop instruments.
	attempts, _ := meter.Int64Counter(MetricAttempts,
		metric.WithDescription("Job attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	duration, _ := meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Time spent in the job handler"),
		metric.WithUnit("s"),
	)
	lateness, _ := meter.Float64Histogram(MetricLateness,
		metric.WithDescription("Delay between a job's RunAt and the start of the attempt"),
		metric.WithUnit("s"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, o := withOutcome(ctx)
		where := []attribute.KeyValue{
			attribute.String("job_name", j.Name),
			attribute.String("queue", j.Queue),
		}

		start := time.Now()
		if !j.RunAt.IsZero() {
			lateness.Record(ctx, max(start.Sub(j.RunAt).Seconds(), 0), metric.WithAttributes(where...))
		}

		err := next(ctx)

		attrs := metric.WithAttributes(append(where, attribute.String("outcome", o.label(err)))...)
		attempts.Add(ctx, 1, attrs)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		return err
	}
}
