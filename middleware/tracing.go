package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/bystander/job"
)

const instrumentationName = "github.com/xraph/bystander"

// Tracing wraps each attempt in a span named after the job on the global
// TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer is Tracing on an explicit tracer.
//
// The span carries bystander.request_id, bystander.job.id,
// bystander.job.name, bystander.queue and bystander.attempt when it starts,
// and bystander.outcome when the attempt ends.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, o := withOutcome(ctx)
		ctx, span := tracer.Start(ctx, j.Name,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("bystander.request_id", j.RequestID),
				attribute.String("bystander.job.id", j.ID.String()),
				attribute.String("bystander.job.name", j.Name),
				attribute.String("bystander.queue", j.Queue),
				attribute.Int("bystander.attempt", j.RetryCount+1),
			),
		)
		defer span.End()

		err := next(ctx)
		span.SetAttributes(attribute.String("bystander.outcome", o.label(err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}
