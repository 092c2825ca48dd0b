package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/request"
)

// hookEntry pairs a hook implementation with the extension name captured
// at registration time.
type hookEntry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// A nil *Registry is valid and drops every event.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	requestStarted    []hookEntry[RequestStarted]
	requestAdvanced   []hookEntry[RequestAdvanced]
	rejectionRecorded []hookEntry[RejectionRecorded]
	requestAccepted   []hookEntry[RequestAccepted]
	requestExhausted  []hookEntry[RequestExhausted]
	responseExpired   []hookEntry[ResponseExpired]
	jobScheduled      []hookEntry[JobScheduled]
	jobStarted        []hookEntry[JobStarted]
	jobCompleted      []hookEntry[JobCompleted]
	jobRetrying       []hookEntry[JobRetrying]
	jobFailed         []hookEntry[JobFailed]
	shutdown          []hookEntry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// cache appends e to *dst when it implements H.
func cache[H any](dst *[]hookEntry[H], name string, e Extension) {
	if h, ok := e.(H); ok {
		*dst = append(*dst, hookEntry[H]{name: name, hook: h})
	}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	cache(&r.requestStarted, name, e)
	cache(&r.requestAdvanced, name, e)
	cache(&r.rejectionRecorded, name, e)
	cache(&r.requestAccepted, name, e)
	cache(&r.requestExhausted, name, e)
	cache(&r.responseExpired, name, e)
	cache(&r.jobScheduled, name, e)
	cache(&r.jobStarted, name, e)
	cache(&r.jobCompleted, name, e)
	cache(&r.jobRetrying, name, e)
	cache(&r.jobFailed, name, e)
	cache(&r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	if r == nil {
		return nil
	}
	return r.extensions
}

// ──────────────────────────────────────────────────
// Request event emitters
// ──────────────────────────────────────────────────

// EmitRequestStarted notifies all extensions that implement RequestStarted.
func (r *Registry) EmitRequestStarted(ctx context.Context, req *request.Request) {
	if r == nil {
		return
	}
	for _, e := range r.requestStarted {
		if err := e.hook.OnRequestStarted(ctx, req); err != nil {
			r.logHookError("OnRequestStarted", e.name, err)
		}
	}
}

// EmitRequestAdvanced notifies all extensions that implement RequestAdvanced.
func (r *Registry) EmitRequestAdvanced(ctx context.Context, req *request.Request, from string, reason Reason) {
	if r == nil {
		return
	}
	for _, e := range r.requestAdvanced {
		if err := e.hook.OnRequestAdvanced(ctx, req, from, reason); err != nil {
			r.logHookError("OnRequestAdvanced", e.name, err)
		}
	}
}

// EmitRejectionRecorded notifies all extensions that implement RejectionRecorded.
func (r *Registry) EmitRejectionRecorded(ctx context.Context, req *request.Request, user string) {
	if r == nil {
		return
	}
	for _, e := range r.rejectionRecorded {
		if err := e.hook.OnRejectionRecorded(ctx, req, user); err != nil {
			r.logHookError("OnRejectionRecorded", e.name, err)
		}
	}
}

// EmitRequestAccepted notifies all extensions that implement RequestAccepted.
func (r *Registry) EmitRequestAccepted(ctx context.Context, req *request.Request, user string) {
	if r == nil {
		return
	}
	for _, e := range r.requestAccepted {
		if err := e.hook.OnRequestAccepted(ctx, req, user); err != nil {
			r.logHookError("OnRequestAccepted", e.name, err)
		}
	}
}

// EmitRequestExhausted notifies all extensions that implement RequestExhausted.
func (r *Registry) EmitRequestExhausted(ctx context.Context, req *request.Request, reason Reason) {
	if r == nil {
		return
	}
	for _, e := range r.requestExhausted {
		if err := e.hook.OnRequestExhausted(ctx, req, reason); err != nil {
			r.logHookError("OnRequestExhausted", e.name, err)
		}
	}
}

// EmitResponseExpired notifies all extensions that implement ResponseExpired.
func (r *Registry) EmitResponseExpired(ctx context.Context, requestID id.RequestID, user string) {
	if r == nil {
		return
	}
	for _, e := range r.responseExpired {
		if err := e.hook.OnResponseExpired(ctx, requestID, user); err != nil {
			r.logHookError("OnResponseExpired", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobScheduled notifies all extensions that implement JobScheduled.
func (r *Registry) EmitJobScheduled(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.jobScheduled {
		if err := e.hook.OnJobScheduled(ctx, j); err != nil {
			r.logHookError("OnJobScheduled", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	if r == nil {
		return
	}
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	if r == nil {
		return
	}
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextRunAt); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	if r == nil {
		return
	}
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	if r == nil {
		return
	}
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block a rotation.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
