// Package rotation moves a task through its candidates.
//
// A request is started with a shuffled candidate list; the first candidate
// is prompted privately and a timeout is armed. Each later event (accept,
// reject, timeout) loads the request, applies one transition and either
// persists it or deletes it:
//
//	Start            -> prompt Candidates[0], arm timeout
//	Accept           -> announce in channel, delete
//	Reject (holder)  -> prompt next, arm timeout | everyone declined, delete
//	Reject (other)   -> record rejection, persist
//	Timeout (holder) -> prompt next, arm timeout | give up, delete
//	Timeout (other)  -> stale, ignore
//
// Events for a request that no longer exists report OutcomeExpired.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/ext"
	"github.com/xraph/bystander/gateway"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/request"
)

// Scheduler arms a one-shot timeout for a candidate. Armed timeouts are
// never cancelled; OnTimeout discards the ones that went stale.
type Scheduler interface {
	Schedule(ctx context.Context, delay time.Duration, requestID id.RequestID, candidateID string) error
}

// Engine applies rotation transitions. It is safe for concurrent use.
type Engine struct {
	store     request.Store
	scheduler Scheduler
	notifier  gateway.Notifier

	locker     Locker
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand

	ttl           time.Duration
	timeout       time.Duration
	minCandidates int
}

// New creates an Engine.
func New(store request.Store, scheduler Scheduler, notifier gateway.Notifier, opts ...Option) *Engine {
	cfg := bystander.DefaultConfig()
	e := &Engine{
		store:         store,
		scheduler:     scheduler,
		notifier:      notifier,
		locker:        NewMemoryLocker(),
		logger:        slog.Default(),
		now:           time.Now,
		ttl:           cfg.RequestTTL,
		timeout:       cfg.ResponseTimeout,
		minCandidates: cfg.MinCandidates,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResponseTimeout returns how long each candidate has to answer.
func (e *Engine) ResponseTimeout() time.Duration { return e.timeout }

// MinCandidates returns the smallest candidate list Start accepts.
func (e *Engine) MinCandidates() int { return max(e.minCandidates, request.MinCandidates) }

// Start creates a request for candidates, prompts the first one after
// shuffling and arms its timeout.
func (e *Engine) Start(ctx context.Context, candidates []string, requesterID, channelID, text string) (Result, error) {
	if len(candidates) < max(e.minCandidates, request.MinCandidates) {
		return Result{}, fmt.Errorf("%w: got %d", bystander.ErrInsufficientCandidates, len(candidates))
	}

	now := e.now()
	r := &request.Request{
		Entity:      bystander.Entity{CreatedAt: now, UpdatedAt: now},
		ID:          id.NewRequestID(),
		RequesterID: requesterID,
		ChannelID:   channelID,
		Text:        text,
		Candidates:  e.shuffle(candidates),
		Rejected:    []string{},
	}
	r.Current = r.Candidates[0]

	unlock, err := e.locker.Lock(ctx, r.ID)
	if err != nil {
		return Result{}, fmt.Errorf("rotation: lock %s: %w", r.ID, err)
	}
	defer unlock()

	if err := e.store.PutRequest(ctx, r, e.ttl); err != nil {
		return Result{}, fmt.Errorf("rotation: persist %s: %w", r.ID, err)
	}
	if err := e.arm(ctx, r); err != nil {
		e.discard(ctx, r)
		return Result{}, err
	}
	if err := e.prompt(ctx, r); err != nil {
		e.discard(ctx, r)
		return Result{}, err
	}

	e.extensions.EmitRequestStarted(ctx, r)
	e.logger.Info("request started",
		slog.String("request_id", r.ID.String()),
		slog.String("requester", requesterID),
		slog.String("channel", channelID),
		slog.Int("candidates", len(r.Candidates)),
		slog.String("current", r.Current),
	)
	return e.result(OutcomeStarted, r, r.Current), nil
}

// Accept resolves the request in favour of userID. Anyone with the
// request id may accept, not only the current holder.
func (e *Engine) Accept(ctx context.Context, requestID id.RequestID, userID, channelID string) (Result, error) {
	unlock, err := e.locker.Lock(ctx, requestID)
	if err != nil {
		return Result{}, fmt.Errorf("rotation: lock %s: %w", requestID, err)
	}
	defer unlock()

	r, err := e.store.GetRequest(ctx, requestID)
	if errors.Is(err, bystander.ErrRequestNotFound) {
		return e.expired(ctx, requestID, userID, channelID)
	}
	if err != nil {
		return Result{}, fmt.Errorf("rotation: load %s: %w", requestID, err)
	}

	msg := gateway.AcceptedMessage(userID, r.RequesterID, r.Text)
	if err := e.notifier.PostChannel(ctx, r.ChannelID, msg); err != nil {
		return Result{}, bystander.NewGatewayError("post_channel", err)
	}
	if err := e.store.DeleteRequest(ctx, requestID); err != nil {
		return Result{}, fmt.Errorf("rotation: delete %s: %w", requestID, err)
	}

	if userID != r.Current {
		e.logger.Debug("request accepted by non-holder",
			slog.String("request_id", requestID.String()),
			slog.String("user", userID),
			slog.String("current", r.Current),
		)
	}
	e.extensions.EmitRequestAccepted(ctx, r, userID)
	e.logger.Info("request accepted",
		slog.String("request_id", requestID.String()),
		slog.String("user", userID),
	)
	return e.result(OutcomeAccepted, r, userID), nil
}

// Reject records that userID declined. When userID holds the task it
// moves to the next candidate; otherwise only the rejection is stored.
func (e *Engine) Reject(ctx context.Context, requestID id.RequestID, userID, channelID string) (Result, error) {
	unlock, err := e.locker.Lock(ctx, requestID)
	if err != nil {
		return Result{}, fmt.Errorf("rotation: lock %s: %w", requestID, err)
	}
	defer unlock()

	r, err := e.store.GetRequest(ctx, requestID)
	if errors.Is(err, bystander.ErrRequestNotFound) {
		return e.expired(ctx, requestID, userID, channelID)
	}
	if err != nil {
		return Result{}, fmt.Errorf("rotation: load %s: %w", requestID, err)
	}

	r.Reject(userID)
	if userID != r.Current {
		r.Touch(e.now())
		if err := e.store.PutRequest(ctx, r, e.ttl); err != nil {
			return Result{}, fmt.Errorf("rotation: persist %s: %w", requestID, err)
		}
		e.extensions.EmitRejectionRecorded(ctx, r, userID)
		e.logger.Debug("rejection recorded",
			slog.String("request_id", requestID.String()),
			slog.String("user", userID),
			slog.String("current", r.Current),
		)
		return e.result(OutcomeRecorded, r, r.Current), nil
	}

	return e.advance(ctx, r, ext.ReasonRejected)
}

// OnTimeout fires when expected's response window closes. It is a no-op
// when the request is gone or someone else already holds the task.
func (e *Engine) OnTimeout(ctx context.Context, requestID id.RequestID, expected string) (Result, error) {
	unlock, err := e.locker.Lock(ctx, requestID)
	if err != nil {
		return Result{}, fmt.Errorf("rotation: lock %s: %w", requestID, err)
	}
	defer unlock()

	r, err := e.store.GetRequest(ctx, requestID)
	if errors.Is(err, bystander.ErrRequestNotFound) {
		e.logger.Debug("timeout for missing request",
			slog.String("request_id", requestID.String()),
			slog.String("candidate", expected),
		)
		return Result{Outcome: OutcomeExpired, RequestID: requestID}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("rotation: load %s: %w", requestID, err)
	}

	if r.Current != expected {
		e.logger.Debug("stale timeout",
			slog.String("request_id", requestID.String()),
			slog.String("candidate", expected),
			slog.String("current", r.Current),
		)
		return e.result(OutcomeStale, r, r.Current), nil
	}

	return e.advance(ctx, r, ext.ReasonTimeout)
}

// advance hands the task to the candidate after r.Current, or ends the
// request when none is left.
func (e *Engine) advance(ctx context.Context, r *request.Request, reason ext.Reason) (Result, error) {
	from := r.Current
	next := r.Next()

	if next == "" {
		return e.exhaust(ctx, r, reason)
	}

	// Arm before saving: a timeout armed for a move that was never saved
	// fires as stale, and a saved holder always has a timeout.
	r.Current = next
	if err := e.arm(ctx, r); err != nil {
		r.Current = from
		return Result{}, err
	}
	r.Touch(e.now())
	if err := e.store.PutRequest(ctx, r, e.ttl); err != nil {
		return Result{}, fmt.Errorf("rotation: persist %s: %w", r.ID, err)
	}
	if err := e.prompt(ctx, r); err != nil {
		return Result{}, err
	}

	e.extensions.EmitRequestAdvanced(ctx, r, from, reason)
	e.logger.Info("request advanced",
		slog.String("request_id", r.ID.String()),
		slog.String("from", from),
		slog.String("to", next),
		slog.String("reason", string(reason)),
	)
	return e.result(OutcomeAdvanced, r, next), nil
}

// exhaust tells the requester nobody took the task and deletes the
// request. The requester is notified before deletion so a failed notice
// can be retried against the same state.
func (e *Engine) exhaust(ctx context.Context, r *request.Request, reason ext.Reason) (Result, error) {
	outcome := OutcomeAborted
	msg := gateway.AbortedMessage(r.Text)
	if reason == ext.ReasonTimeout {
		outcome = OutcomeGivenUp
		msg = gateway.GivenUpMessage(r.RequesterID, len(r.Candidates))
	}

	if err := e.notifier.NotifyUser(ctx, r.ChannelID, r.RequesterID, msg); err != nil {
		return Result{}, bystander.NewGatewayError("notify_user", err)
	}
	if err := e.store.DeleteRequest(ctx, r.ID); err != nil {
		return Result{}, fmt.Errorf("rotation: delete %s: %w", r.ID, err)
	}

	r.Current = ""
	e.extensions.EmitRequestExhausted(ctx, r, reason)
	e.logger.Info("request exhausted",
		slog.String("request_id", r.ID.String()),
		slog.String("outcome", outcome.String()),
		slog.Int("rejected", len(r.Rejected)),
	)
	return e.result(outcome, r, ""), nil
}

// expired answers a response to a request that no longer exists.
func (e *Engine) expired(ctx context.Context, requestID id.RequestID, userID, channelID string) (Result, error) {
	res := Result{Outcome: OutcomeExpired, RequestID: requestID}
	e.extensions.EmitResponseExpired(ctx, requestID, userID)
	e.logger.Debug("response to expired request",
		slog.String("request_id", requestID.String()),
		slog.String("user", userID),
	)
	if err := e.notifier.NotifyUser(ctx, channelID, userID, gateway.ExpiredMessage()); err != nil {
		return res, bystander.NewGatewayError("notify_user", err)
	}
	return res, nil
}

func (e *Engine) prompt(ctx context.Context, r *request.Request) error {
	msg := gateway.PromptMessage(r.ID.String(), r.Current, r.RequesterID, r.Text)
	if err := e.notifier.NotifyUser(ctx, r.ChannelID, r.Current, msg); err != nil {
		return bystander.NewGatewayError("notify_user", err)
	}
	return nil
}

func (e *Engine) arm(ctx context.Context, r *request.Request) error {
	if err := e.scheduler.Schedule(ctx, e.timeout, r.ID, r.Current); err != nil {
		return fmt.Errorf("rotation: schedule timeout for %s: %w", r.ID, err)
	}
	return nil
}

// discard removes a request whose start failed half way.
func (e *Engine) discard(ctx context.Context, r *request.Request) {
	if err := e.store.DeleteRequest(ctx, r.ID); err != nil {
		e.logger.Warn("failed to discard request",
			slog.String("request_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) shuffle(candidates []string) []string {
	out := make([]string, len(candidates))
	copy(out, candidates)

	swap := func(i, j int) { out[i], out[j] = out[j], out[i] }
	if e.rand == nil {
		rand.Shuffle(len(out), swap)
		return out
	}
	e.randMu.Lock()
	e.rand.Shuffle(len(out), swap)
	e.randMu.Unlock()
	return out
}

func (e *Engine) result(o Outcome, r *request.Request, holder string) Result {
	return Result{Outcome: o, RequestID: r.ID, Request: r.Clone(), Holder: holder}
}
