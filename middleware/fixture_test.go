package middleware_test

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/xraph/bystander"
	gwmemory "github.com/xraph/bystander/gateway/memory"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/middleware"
	"github.com/xraph/bystander/rotation"
	"github.com/xraph/bystander/scheduler"
	"github.com/xraph/bystander/store/memory"
)

// lateBy is how far in the past armed timeouts fall due, so the store hands
// them out immediately.
const lateBy = time.Hour

// timeouts runs a real rotation engine whose timeouts land in a memory
// store, so tests can fire them through a middleware chain by hand.
type timeouts struct {
	store    *memory.Store
	engine   *rotation.Engine
	registry *job.Registry
}

func newTimeouts(t *testing.T) *timeouts {
	t.Helper()
	st := memory.New()
	sched := scheduler.New(st, scheduler.WithClock(func() time.Time { return time.Now().Add(-lateBy) }))
	eng := rotation.New(st, sched, gwmemory.New(gwmemory.Directory{}),
		rotation.WithRand(rand.New(rand.NewPCG(1, 2))),
		rotation.WithLogger(quietLogger()),
	)
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, scheduler.Definition(eng))
	return &timeouts{store: st, engine: eng, registry: reg}
}

// start begins a request over candidates and returns the timeout armed for
// its first holder.
func (f *timeouts) start(t *testing.T, candidates ...string) *job.Job {
	t.Helper()
	if _, err := f.engine.Start(context.Background(), candidates, "req", "C1", "water the plants"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return f.claim(t)
}

// claim dequeues the single timeout that is due.
func (f *timeouts) claim(t *testing.T) *job.Job {
	t.Helper()
	jobs, err := f.store.DequeueJobs(context.Background(), []string{bystander.DefaultQueue}, 10)
	if err != nil {
		t.Fatalf("DequeueJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("claimed %d timeouts, want 1", len(jobs))
	}
	return jobs[0]
}

// fire runs j through chain and the registered timeout handler.
func (f *timeouts) fire(chain middleware.Middleware, j *job.Job) error {
	handler, _ := f.registry.Get(j.Name)
	return chain(context.Background(), j, func(ctx context.Context) error {
		return handler(ctx, j.Payload)
	})
}

func (f *timeouts) holder(t *testing.T, j *job.Job) string {
	t.Helper()
	reqID, err := id.ParseRequestID(j.RequestID)
	if err != nil {
		t.Fatal(err)
	}
	r, err := f.store.GetRequest(context.Background(), reqID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	return r.Current
}

// brokenTimeout is a timeout job whose payload names no valid request.
func brokenTimeout() *job.Job {
	return &job.Job{
		ID:      id.NewJobID(),
		Name:    scheduler.JobName,
		Queue:   bystander.DefaultQueue,
		Payload: []byte(`{"request_id":"not-a-request","candidate_id":"u1"}`),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
