// Package scheduler arms rotation timeouts as delayed jobs.
//
// Each armed timeout is one job named JobName on the timeouts queue,
// carrying the request and the candidate it was armed for. Jobs are never
// cancelled: when one fires after the request moved on, the rotation
// engine recognises it as stale and does nothing.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/ext"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/middleware"
	"github.com/xraph/bystander/rotation"
)

// JobName is the job name of an armed timeout.
const JobName = "bystander.timeout"

var _ rotation.Scheduler = (*Scheduler)(nil)

// TimeoutPayload is the job payload of an armed timeout.
type TimeoutPayload struct {
	RequestID   string `json:"request_id"`
	CandidateID string `json:"candidate_id"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithQueue sets the queue timeouts are enqueued on.
func WithQueue(q string) Option {
	return func(s *Scheduler) { s.queue = q }
}

// WithMaxRetries sets how often a failed timeout is retried.
func WithMaxRetries(n int) Option {
	return func(s *Scheduler) { s.maxRetries = n }
}

// WithExtensions sets the registry notified of scheduled jobs.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Scheduler) { s.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now when computing RunAt.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler implements rotation.Scheduler on top of a job.Store.
type Scheduler struct {
	store      job.Store
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time
	queue      string
	maxRetries int
}

// New returns a Scheduler that enqueues into store.
func New(store job.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      store,
		logger:     slog.Default(),
		now:        time.Now,
		queue:      bystander.DefaultQueue,
		maxRetries: job.DefaultOptions().MaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule enqueues a timeout for candidateID that becomes due after delay.
func (s *Scheduler) Schedule(ctx context.Context, delay time.Duration, requestID id.RequestID, candidateID string) error {
	payload, err := json.Marshal(TimeoutPayload{
		RequestID:   requestID.String(),
		CandidateID: candidateID,
	})
	if err != nil {
		return fmt.Errorf("scheduler: marshal payload: %w", err)
	}

	j := job.New(JobName, payload,
		job.WithQueue(s.queue),
		job.WithRunAt(s.now().Add(delay)),
		job.WithMaxRetries(s.maxRetries),
		job.WithRequest(requestID.String()),
	)
	if err := s.store.EnqueueJob(ctx, j); err != nil {
		return fmt.Errorf("scheduler: enqueue timeout: %w", err)
	}

	s.extensions.EmitJobScheduled(ctx, j)
	s.logger.Debug("timeout armed",
		slog.String("job_id", j.ID.String()),
		slog.String("request_id", requestID.String()),
		slog.String("candidate", candidateID),
		slog.Time("run_at", j.RunAt),
	)
	return nil
}

// TimeoutHandler receives fired timeouts. *rotation.Engine implements it.
type TimeoutHandler interface {
	OnTimeout(ctx context.Context, requestID id.RequestID, expected string) (rotation.Result, error)
}

// Definition returns the job definition that delivers fired timeouts to h.
// Register it with the registry of the worker pool that polls the timeouts
// queue. The rotation outcome of each delivery is reported to the
// middleware chain through middleware.SetOutcome.
func Definition(h TimeoutHandler, opts ...job.Option) *job.Definition[TimeoutPayload] {
	return job.NewDefinition(JobName, func(ctx context.Context, p TimeoutPayload) error {
		requestID, err := id.ParseRequestID(p.RequestID)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		res, err := h.OnTimeout(ctx, requestID, p.CandidateID)
		if err != nil {
			return err
		}
		middleware.SetOutcome(ctx, res.Outcome.String())
		return nil
	}, opts...)
}
