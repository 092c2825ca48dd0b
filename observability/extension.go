package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/bystander/ext"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/request"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/xraph/bystander/observability"

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.RequestStarted    = (*MetricsExtension)(nil)
	_ ext.RequestAdvanced   = (*MetricsExtension)(nil)
	_ ext.RejectionRecorded = (*MetricsExtension)(nil)
	_ ext.RequestAccepted   = (*MetricsExtension)(nil)
	_ ext.RequestExhausted  = (*MetricsExtension)(nil)
	_ ext.ResponseExpired   = (*MetricsExtension)(nil)
	_ ext.JobScheduled      = (*MetricsExtension)(nil)
	_ ext.JobCompleted      = (*MetricsExtension)(nil)
	_ ext.JobRetrying       = (*MetricsExtension)(nil)
	_ ext.JobFailed         = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters through an OTel meter.
// Register it as an extension to track how requests move through their
// candidates and how the timeout jobs behind them fare.
type MetricsExtension struct {
	RequestStarted   metric.Int64Counter
	RequestAdvanced  metric.Int64Counter
	RejectionStray   metric.Int64Counter
	RequestAccepted  metric.Int64Counter
	RequestExhausted metric.Int64Counter
	ResponseExpired  metric.Int64Counter
	JobScheduled     metric.Int64Counter
	JobCompleted     metric.Int64Counter
	JobRetried       metric.Int64Counter
	JobFailed        metric.Int64Counter
	JobDuration      metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Use an sdkmetric ManualReader-backed meter in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	return &MetricsExtension{
		RequestStarted:   counter(meter, "bystander.request.started", "Requests handed to their first candidate"),
		RequestAdvanced:  counter(meter, "bystander.request.advanced", "Hand-offs to the next candidate"),
		RejectionStray:   counter(meter, "bystander.request.rejections_recorded", "Rejections from someone other than the holder"),
		RequestAccepted:  counter(meter, "bystander.request.accepted", "Requests accepted by a user"),
		RequestExhausted: counter(meter, "bystander.request.exhausted", "Requests that ran out of candidates"),
		ResponseExpired:  counter(meter, "bystander.response.expired", "Answers received for requests that no longer exist"),
		JobScheduled:     counter(meter, "bystander.job.scheduled", "Timeout jobs enqueued"),
		JobCompleted:     counter(meter, "bystander.job.completed", "Timeout jobs completed"),
		JobRetried:       counter(meter, "bystander.job.retried", "Timeout jobs scheduled for retry"),
		JobFailed:        counter(meter, "bystander.job.failed", "Timeout jobs that failed terminally"),
		JobDuration:      histogram(meter, "bystander.job.completed.duration", "Duration of completed timeout jobs in seconds"),
	}
}

// counter creates an Int64Counter. On error the OTel API returns a noop
// instrument, so the extension keeps working.
func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
	return c
}

func histogram(meter metric.Meter, name, desc string) metric.Float64Histogram {
	h, _ := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	return h
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Request lifecycle hooks ─────────────────────────

// OnRequestStarted implements ext.RequestStarted.
func (m *MetricsExtension) OnRequestStarted(ctx context.Context, _ *request.Request) error {
	m.RequestStarted.Add(ctx, 1)
	return nil
}

// OnRequestAdvanced implements ext.RequestAdvanced.
func (m *MetricsExtension) OnRequestAdvanced(ctx context.Context, _ *request.Request, _ string, reason ext.Reason) error {
	m.RequestAdvanced.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	return nil
}

// OnRejectionRecorded implements ext.RejectionRecorded.
func (m *MetricsExtension) OnRejectionRecorded(ctx context.Context, _ *request.Request, _ string) error {
	m.RejectionStray.Add(ctx, 1)
	return nil
}

// OnRequestAccepted implements ext.RequestAccepted.
func (m *MetricsExtension) OnRequestAccepted(ctx context.Context, r *request.Request, user string) error {
	holder := "other"
	if r != nil && r.Current == user {
		holder = "holder"
	}
	m.RequestAccepted.Add(ctx, 1, metric.WithAttributes(attribute.String("by", holder)))
	return nil
}

// OnRequestExhausted implements ext.RequestExhausted.
func (m *MetricsExtension) OnRequestExhausted(ctx context.Context, _ *request.Request, reason ext.Reason) error {
	m.RequestExhausted.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	return nil
}

// OnResponseExpired implements ext.ResponseExpired.
func (m *MetricsExtension) OnResponseExpired(ctx context.Context, _ id.RequestID, _ string) error {
	m.ResponseExpired.Add(ctx, 1)
	return nil
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobScheduled implements ext.JobScheduled.
func (m *MetricsExtension) OnJobScheduled(ctx context.Context, j *job.Job) error {
	m.JobScheduled.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	m.JobCompleted.Add(ctx, 1, queueAttr(j))
	m.JobDuration.Record(ctx, elapsed.Seconds(), queueAttr(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, queueAttr(j))
	return nil
}

func queueAttr(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("queue", j.Queue))
}
