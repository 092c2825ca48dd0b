package middleware_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/bystander/middleware"
	"github.com/xraph/bystander/scheduler"
)

func spanAttr(s sdktrace.ReadOnlySpan, key string) attribute.Value {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestTracing_SpanPerTimeoutAttempt(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	chain := middleware.Chain(middleware.TracingWithTracer(tp.Tracer("test")))

	f := newTimeouts(t)
	j := f.start(t, "u1", "u2", "u3")
	for range 2 {
		if err := f.fire(chain, j); err != nil {
			t.Fatal(err)
		}
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	for i, want := range []string{"advanced", "stale"} {
		s := spans[i]
		if s.Name() != scheduler.JobName {
			t.Errorf("span %d name = %q", i, s.Name())
		}
		if got := spanAttr(s, "bystander.outcome").AsString(); got != want {
			t.Errorf("span %d outcome = %q, want %q", i, got, want)
		}
		if got := spanAttr(s, "bystander.request_id").AsString(); got != j.RequestID {
			t.Errorf("span %d request_id = %q, want %q", i, got, j.RequestID)
		}
		if got := spanAttr(s, "bystander.job.id").AsString(); got != j.ID.String() {
			t.Errorf("span %d job.id = %q", i, got)
		}
		if got := spanAttr(s, "bystander.attempt").AsInt64(); got != 1 {
			t.Errorf("span %d attempt = %d", i, got)
		}
		if s.Status().Code != codes.Ok {
			t.Errorf("span %d status = %v", i, s.Status())
		}
	}
}

func TestTracing_FailedAttempt(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	chain := middleware.Chain(middleware.TracingWithTracer(tp.Tracer("test")))

	f := newTimeouts(t)
	if err := f.fire(chain, brokenTimeout()); err == nil {
		t.Fatal("expected error")
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status())
	}
	if got := spanAttr(s, "bystander.outcome").AsString(); got != "error" {
		t.Errorf("outcome = %q", got)
	}
	if len(s.Events()) == 0 {
		t.Error("error was not recorded on the span")
	}
}

func TestMetrics_AttemptsByOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	chain := middleware.Chain(middleware.MetricsWithMeter(mp.Meter("test")))

	f := newTimeouts(t)
	first := f.start(t, "u1", "u2")
	if err := f.fire(chain, first); err != nil { // u1 timed out, u2 prompted
		t.Fatal(err)
	}
	if err := f.fire(chain, first); err != nil { // redelivered, nothing to do
		t.Fatal(err)
	}
	if err := f.fire(chain, f.claim(t)); err != nil { // u2 timed out too
		t.Fatal(err)
	}
	if err := f.fire(chain, brokenTimeout()); err == nil {
		t.Fatal("expected error")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	metrics := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metrics[m.Name] = m.Data
		}
	}

	attempts, ok := metrics[middleware.MetricAttempts].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s missing or not an int64 sum", middleware.MetricAttempts)
	}
	byOutcome := map[string]int64{}
	for _, dp := range attempts.DataPoints {
		v, _ := dp.Attributes.Value("outcome")
		byOutcome[v.AsString()] += dp.Value
	}
	want := map[string]int64{"advanced": 1, "stale": 1, "given_up": 1, "error": 1}
	for k, n := range want {
		if byOutcome[k] != n {
			t.Errorf("attempts[%s] = %d, want %d (all: %v)", k, byOutcome[k], n, byOutcome)
		}
	}

	duration, ok := metrics[middleware.MetricDuration].(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("%s missing", middleware.MetricDuration)
	}
	var durations uint64
	for _, dp := range duration.DataPoints {
		durations += dp.Count
	}
	if durations != 4 {
		t.Errorf("duration samples = %d, want 4", durations)
	}

	// The broken job has no RunAt and records no lateness.
	lateness, ok := metrics[middleware.MetricLateness].(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("%s missing", middleware.MetricLateness)
	}
	var late uint64
	var lateSum float64
	for _, dp := range lateness.DataPoints {
		late += dp.Count
		lateSum += dp.Sum
	}
	if late != 3 {
		t.Errorf("lateness samples = %d, want 3", late)
	}
	if floor := 3 * (lateBy.Seconds() - 300); lateSum < floor {
		t.Errorf("lateness sum = %.0fs, want at least %.0fs", lateSum, floor)
	}
}

func TestOutcomeSharedAcrossChain(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	chain := middleware.Chain(
		middleware.TracingWithTracer(tp.Tracer("test")),
		middleware.MetricsWithMeter(mp.Meter("test")),
		middleware.Logging(quietLogger()),
	)

	f := newTimeouts(t)
	if err := f.fire(chain, f.start(t, "u1", "u2", "u3")); err != nil {
		t.Fatal(err)
	}

	if got := spanAttr(sr.Ended()[0], "bystander.outcome").AsString(); got != "advanced" {
		t.Errorf("span outcome = %q", got)
	}
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != middleware.MetricAttempts {
				continue
			}
			dp := m.Data.(metricdata.Sum[int64]).DataPoints[0]
			if v, _ := dp.Attributes.Value("outcome"); v.AsString() != "advanced" {
				t.Errorf("metric outcome = %q", v.AsString())
			}
		}
	}
}
