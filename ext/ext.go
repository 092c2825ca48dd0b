// Package ext defines the extension system for Bystander.
//
// Extensions are notified of lifecycle events (a request started, moved
// to the next candidate, was accepted, a timeout job failed, ...) and can
// react to them: logging, metrics, audit trails.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about:
//
//	type auditLog struct{}
//
//	func (auditLog) Name() string { return "audit" }
//
//	func (auditLog) OnRequestAccepted(ctx context.Context, r *request.Request, user string) error {
//	    log.Printf("%s accepted %s", user, r.ID)
//	    return nil
//	}
package ext

import (
	"context"
	"time"

	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/request"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// Reason says why a request moved to another candidate or ended without
// an acceptance.
type Reason string

const (
	ReasonRejected Reason = "rejected"
	ReasonTimeout  Reason = "timeout"
)

// ──────────────────────────────────────────────────
// Request lifecycle hooks
// ──────────────────────────────────────────────────

// RequestStarted is called after a request is persisted and its first
// candidate prompted.
type RequestStarted interface {
	OnRequestStarted(ctx context.Context, r *request.Request) error
}

// RequestAdvanced is called when the task moves from one candidate to
// the next.
type RequestAdvanced interface {
	OnRequestAdvanced(ctx context.Context, r *request.Request, from string, reason Reason) error
}

// RejectionRecorded is called when someone other than the current holder
// declines. The holder does not change.
type RejectionRecorded interface {
	OnRejectionRecorded(ctx context.Context, r *request.Request, user string) error
}

// RequestAccepted is called after an acceptance is announced.
type RequestAccepted interface {
	OnRequestAccepted(ctx context.Context, r *request.Request, user string) error
}

// RequestExhausted is called when no candidate is left. reason is
// ReasonRejected when everyone declined and ReasonTimeout when the last
// holder never answered.
type RequestExhausted interface {
	OnRequestExhausted(ctx context.Context, r *request.Request, reason Reason) error
}

// ResponseExpired is called when an answer arrives for a request that no
// longer exists.
type ResponseExpired interface {
	OnResponseExpired(ctx context.Context, requestID id.RequestID, user string) error
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobScheduled is called after a timeout job is enqueued.
type JobScheduled interface {
	OnJobScheduled(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
