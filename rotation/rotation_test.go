package rotation_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/gateway"
	gwmemory "github.com/xraph/bystander/gateway/memory"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/request"
	"github.com/xraph/bystander/rotation"
	"github.com/xraph/bystander/store/memory"
)

type armed struct {
	delay     time.Duration
	requestID string
	candidate string
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []armed
	err   error
}

func (s *fakeScheduler) Schedule(_ context.Context, delay time.Duration, requestID id.RequestID, candidateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, armed{delay, requestID.String(), candidateID})
	return nil
}

func (s *fakeScheduler) candidates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.candidate
	}
	return out
}

type harness struct {
	store  *memory.Store
	sched  *fakeScheduler
	gw     *gwmemory.Gateway
	engine *rotation.Engine
}

func newHarness(t *testing.T, opts ...rotation.Option) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		sched: &fakeScheduler{},
		gw:    gwmemory.New(gwmemory.Directory{}),
	}
	opts = append([]rotation.Option{rotation.WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	h.engine = rotation.New(h.store, h.sched, h.gw, opts...)
	return h
}

// start begins a request and returns its id and post-shuffle order.
func (h *harness) start(t *testing.T, candidates ...string) (id.RequestID, []string) {
	t.Helper()
	res, err := h.engine.Start(context.Background(), candidates, "r", "C1", "water the plants")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Outcome != rotation.OutcomeStarted {
		t.Fatalf("Start outcome = %s", res.Outcome)
	}
	return res.RequestID, res.Request.Candidates
}

func (h *harness) load(t *testing.T, reqID id.RequestID) *request.Request {
	t.Helper()
	r, err := h.store.GetRequest(context.Background(), reqID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	checkInvariants(t, r)
	return r
}

func (h *harness) gone(t *testing.T, reqID id.RequestID) {
	t.Helper()
	if _, err := h.store.GetRequest(context.Background(), reqID); !errors.Is(err, bystander.ErrRequestNotFound) {
		t.Fatalf("request should be deleted, GetRequest err = %v", err)
	}
}

func checkInvariants(t *testing.T, r *request.Request) {
	t.Helper()
	if err := r.Validate(); err != nil {
		t.Fatalf("invariant violated: %v (%+v)", err, r)
	}
	seen := map[string]bool{}
	for _, c := range r.Candidates {
		if seen[c] {
			t.Fatalf("duplicate candidate %q", c)
		}
		seen[c] = true
	}
}

// ──────────────────────────────────────────────────
// Start
// ──────────────────────────────────────────────────

func TestStart(t *testing.T) {
	h := newHarness(t)
	reqID, order := h.start(t, "u1", "u2", "u3")

	r := h.load(t, reqID)
	if r.Current != order[0] {
		t.Fatalf("Current = %q, want first candidate %q", r.Current, order[0])
	}
	if len(r.Rejected) != 0 {
		t.Fatalf("Rejected = %v, want empty", r.Rejected)
	}
	if r.RequesterID != "r" || r.ChannelID != "C1" || r.Text != "water the plants" {
		t.Fatalf("request fields not stored: %+v", r)
	}
	if reqID.Prefix() != id.PrefixRequest {
		t.Fatalf("request id prefix = %q", reqID.Prefix())
	}

	sorted := slices.Clone(order)
	slices.Sort(sorted)
	if !slices.Equal(sorted, []string{"u1", "u2", "u3"}) {
		t.Fatalf("shuffled candidates %v are not a permutation of the input", order)
	}

	if got := h.gw.Prompts(); !slices.Equal(got, []string{order[0]}) {
		t.Fatalf("prompted %v, want [%s]", got, order[0])
	}
	prompt := h.gw.DeliveriesTo(order[0])[0]
	if prompt.ChannelID != "C1" || prompt.Message.Prompt.CallbackID != reqID.String() {
		t.Fatalf("prompt delivery = %+v", prompt)
	}
	if prompt.Message.Quote != "water the plants" {
		t.Fatalf("prompt quote = %q", prompt.Message.Quote)
	}

	if len(h.sched.calls) != 1 {
		t.Fatalf("armed %d timeouts, want 1", len(h.sched.calls))
	}
	call := h.sched.calls[0]
	if call.candidate != order[0] || call.requestID != reqID.String() || call.delay != 2*time.Minute {
		t.Fatalf("armed %+v", call)
	}
}

func TestStartInsufficientCandidates(t *testing.T) {
	for _, candidates := range [][]string{nil, {"u1"}} {
		h := newHarness(t)
		_, err := h.engine.Start(context.Background(), candidates, "r", "C1", "x")
		if !errors.Is(err, bystander.ErrInsufficientCandidates) {
			t.Fatalf("Start(%v) err = %v, want ErrInsufficientCandidates", candidates, err)
		}
		if h.store.RequestCount() != 0 || len(h.gw.Deliveries()) != 0 || len(h.sched.calls) != 0 {
			t.Fatalf("Start(%v) left side effects", candidates)
		}
	}
}

func TestStartMinCandidatesOption(t *testing.T) {
	h := newHarness(t, rotation.WithMinCandidates(3))
	_, err := h.engine.Start(context.Background(), []string{"u1", "u2"}, "r", "C1", "x")
	if !errors.Is(err, bystander.ErrInsufficientCandidates) {
		t.Fatalf("err = %v, want ErrInsufficientCandidates", err)
	}
	if h.engine.MinCandidates() != 3 {
		t.Fatalf("MinCandidates = %d", h.engine.MinCandidates())
	}
}

func TestStartMinCandidatesFloor(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		h := newHarness(t, rotation.WithMinCandidates(n))
		if got := h.engine.MinCandidates(); got != request.MinCandidates {
			t.Fatalf("WithMinCandidates(%d): MinCandidates = %d", n, got)
		}
		_, err := h.engine.Start(context.Background(), []string{"solo"}, "r", "C1", "x")
		if !errors.Is(err, bystander.ErrInsufficientCandidates) {
			t.Fatalf("WithMinCandidates(%d): Start(solo) err = %v", n, err)
		}
		if h.store.RequestCount() != 0 || len(h.gw.Deliveries()) != 0 || len(h.sched.calls) != 0 {
			t.Fatalf("WithMinCandidates(%d): single-candidate start left side effects", n)
		}
	}
}

func TestStartSeededShuffleIsDeterministic(t *testing.T) {
	candidates := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	orders := make([][]string, 2)
	for i := range orders {
		h := newHarness(t, rotation.WithRand(rand.New(rand.NewPCG(42, 7))))
		_, orders[i] = h.start(t, candidates...)
	}
	if !slices.Equal(orders[0], orders[1]) {
		t.Fatalf("same seed produced %v and %v", orders[0], orders[1])
	}
}

func TestStartDoesNotMutateInput(t *testing.T) {
	h := newHarness(t)
	in := []string{"a", "b", "c", "d", "e"}
	h.start(t, in...)
	if !slices.Equal(in, []string{"a", "b", "c", "d", "e"}) {
		t.Fatalf("input slice reordered: %v", in)
	}
}

func TestStartGatewayFailureDiscardsRequest(t *testing.T) {
	h := newHarness(t)
	h.gw.FailOn(gwmemory.OpNotifyUser, errors.New("slack down"))

	_, err := h.engine.Start(context.Background(), []string{"u1", "u2"}, "r", "C1", "x")
	var ge *bystander.GatewayError
	if !errors.As(err, &ge) || ge.Op != "notify_user" {
		t.Fatalf("err = %v, want GatewayError(notify_user)", err)
	}
	if h.store.RequestCount() != 0 {
		t.Fatal("request persisted after failed prompt")
	}
}

func TestStartSchedulerFailure(t *testing.T) {
	h := newHarness(t)
	h.sched.err = errors.New("queue full")

	if _, err := h.engine.Start(context.Background(), []string{"u1", "u2"}, "r", "C1", "x"); err == nil {
		t.Fatal("expected error when the timeout cannot be armed")
	}
	if h.store.RequestCount() != 0 || len(h.gw.Deliveries()) != 0 {
		t.Fatal("failed start left a request or prompted someone")
	}
}

// ──────────────────────────────────────────────────
// Scenarios
// ──────────────────────────────────────────────────

func TestRejectByHolderAdvances(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")

	res, err := h.engine.Reject(context.Background(), reqID, u[0], "C1")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if res.Outcome != rotation.OutcomeAdvanced || res.Holder != u[1] {
		t.Fatalf("result = %s holder %q, want advanced to %q", res.Outcome, res.Holder, u[1])
	}

	r := h.load(t, reqID)
	if r.Current != u[1] || !slices.Equal(r.Rejected, []string{u[0]}) {
		t.Fatalf("Current = %q Rejected = %v", r.Current, r.Rejected)
	}
	if got := h.sched.candidates(); !slices.Equal(got, []string{u[0], u[1]}) {
		t.Fatalf("armed %v", got)
	}
	if got := h.gw.Prompts(); !slices.Equal(got, []string{u[0], u[1]}) {
		t.Fatalf("prompted %v", got)
	}
}

func TestRejectByNonHolderIsRecorded(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")
	if _, err := h.engine.Reject(context.Background(), reqID, u[0], "C1"); err != nil {
		t.Fatal(err)
	}
	deliveries := len(h.gw.Deliveries())
	arms := len(h.sched.calls)

	res, err := h.engine.Reject(context.Background(), reqID, u[2], "C1")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if res.Outcome != rotation.OutcomeRecorded || res.Holder != u[1] {
		t.Fatalf("result = %s holder %q", res.Outcome, res.Holder)
	}

	r := h.load(t, reqID)
	if r.Current != u[1] {
		t.Fatalf("Current = %q, want unchanged %q", r.Current, u[1])
	}
	if !slices.Equal(r.Rejected, []string{u[0], u[2]}) {
		t.Fatalf("Rejected = %v, want [%s %s]", r.Rejected, u[0], u[2])
	}
	if len(h.gw.Deliveries()) != deliveries || len(h.sched.calls) != arms {
		t.Fatal("rejection by a non-holder notified someone or re-armed a timeout")
	}
}

func TestRejectAdvanceToLastCandidate(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")
	ctx := context.Background()

	h.engine.Reject(ctx, reqID, u[0], "C1")
	res, err := h.engine.Reject(ctx, reqID, u[1], "C1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != rotation.OutcomeAdvanced || res.Holder != u[2] {
		t.Fatalf("result = %s holder %q, want advanced to %q", res.Outcome, res.Holder, u[2])
	}
	if r := h.load(t, reqID); r.Current != u[2] {
		t.Fatalf("Current = %q", r.Current)
	}
}

func TestRejectEveryoneDeclinedAborts(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")
	ctx := context.Background()

	h.engine.Reject(ctx, reqID, u[0], "C1")
	h.engine.Reject(ctx, reqID, u[2], "C1") // out of turn
	res, err := h.engine.Reject(ctx, reqID, u[1], "C1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != rotation.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if !res.Outcome.Terminal() || res.Holder != "" {
		t.Fatalf("result = %+v", res)
	}
	h.gone(t, reqID)

	notes := h.gw.DeliveriesTo("r")
	if len(notes) != 1 || notes[0].Message.Text != gateway.AbortedMessage("").Text {
		t.Fatalf("requester deliveries = %+v", notes)
	}
	if notes[0].Message.Quote != "water the plants" {
		t.Fatalf("abort quote = %q", notes[0].Message.Quote)
	}
}

func TestRejectNeverWrapsAround(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// u1 timed out (never declined); u2 and u3 decline. u1 is not asked again.
	reqID, u := h.start(t, "u1", "u2", "u3")
	if res, _ := h.engine.OnTimeout(ctx, reqID, u[0]); res.Outcome != rotation.OutcomeAdvanced {
		t.Fatalf("timeout outcome = %s", res.Outcome)
	}
	h.engine.Reject(ctx, reqID, u[1], "C1")
	res, err := h.engine.Reject(ctx, reqID, u[2], "C1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != rotation.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if n := len(h.gw.DeliveriesTo(u[0])); n != 1 {
		t.Fatalf("first candidate prompted %d times, want 1", n)
	}
}

func TestRejectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3", "u4")
	ctx := context.Background()

	h.engine.Reject(ctx, reqID, u[3], "C1")
	h.engine.Reject(ctx, reqID, u[3], "C1")
	if r := h.load(t, reqID); !slices.Equal(r.Rejected, []string{u[3]}) {
		t.Fatalf("Rejected = %v", r.Rejected)
	}
}

func TestStaleTimeoutIsNoOp(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")
	ctx := context.Background()
	h.engine.Reject(ctx, reqID, u[0], "C1")

	before := h.load(t, reqID)
	deliveries := len(h.gw.Deliveries())

	res, err := h.engine.OnTimeout(ctx, reqID, u[0])
	if err != nil {
		t.Fatalf("OnTimeout: %v", err)
	}
	if res.Outcome != rotation.OutcomeStale {
		t.Fatalf("outcome = %s, want stale", res.Outcome)
	}
	after := h.load(t, reqID)
	if after.Current != before.Current || !slices.Equal(after.Rejected, before.Rejected) ||
		!after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("stale timeout changed the request: %+v -> %+v", before, after)
	}
	if len(h.gw.Deliveries()) != deliveries {
		t.Fatal("stale timeout sent a notification")
	}
}

func TestTimeoutAdvancesWithoutRejecting(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")

	res, err := h.engine.OnTimeout(context.Background(), reqID, u[0])
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != rotation.OutcomeAdvanced || res.Holder != u[1] {
		t.Fatalf("result = %s holder %q", res.Outcome, res.Holder)
	}
	r := h.load(t, reqID)
	if r.Current != u[1] || len(r.Rejected) != 0 {
		t.Fatalf("Current = %q Rejected = %v", r.Current, r.Rejected)
	}
}

func TestTimeoutOfLastHolderGivesUp(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")
	ctx := context.Background()

	for i, want := range []rotation.Outcome{rotation.OutcomeAdvanced, rotation.OutcomeAdvanced, rotation.OutcomeGivenUp} {
		res, err := h.engine.OnTimeout(ctx, reqID, u[i])
		if err != nil {
			t.Fatalf("timeout %d: %v", i, err)
		}
		if res.Outcome != want {
			t.Fatalf("timeout %d outcome = %s, want %s", i, res.Outcome, want)
		}
	}
	h.gone(t, reqID)

	notes := h.gw.DeliveriesTo("r")
	if len(notes) != 1 || notes[0].Message.Text != gateway.GivenUpMessage("r", 3).Text {
		t.Fatalf("requester deliveries = %+v", notes)
	}
}

func TestAcceptByAnyUser(t *testing.T) {
	// Accept does not check that the responder holds the task. Anyone
	// holding the request id resolves it in their own name.
	for _, who := range []string{"holder", "other candidate", "stranger"} {
		t.Run(who, func(t *testing.T) {
			h := newHarness(t)
			reqID, u := h.start(t, "u1", "u2", "u3")

			user := map[string]string{"holder": u[0], "other candidate": u[2], "stranger": "zz"}[who]
			res, err := h.engine.Accept(context.Background(), reqID, user, "C9")
			if err != nil {
				t.Fatalf("Accept: %v", err)
			}
			if res.Outcome != rotation.OutcomeAccepted || res.Holder != user {
				t.Fatalf("result = %s holder %q, want accepted by %q", res.Outcome, res.Holder, user)
			}
			h.gone(t, reqID)

			var posted []gwmemory.Delivery
			for _, d := range h.gw.Deliveries() {
				if !d.Private() {
					posted = append(posted, d)
				}
			}
			if len(posted) != 1 {
				t.Fatalf("channel posts = %d, want 1", len(posted))
			}
			want := gateway.AcceptedMessage(user, "r", "water the plants")
			if posted[0].ChannelID != "C1" || posted[0].Message.Text != want.Text || posted[0].Message.Quote != want.Quote {
				t.Fatalf("channel post = %+v", posted[0])
			}
		})
	}
}

func TestMissingRequestIsExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	missing := id.NewRequestID()

	ops := map[string]func() (rotation.Result, error){
		"accept":  func() (rotation.Result, error) { return h.engine.Accept(ctx, missing, "u1", "C1") },
		"reject":  func() (rotation.Result, error) { return h.engine.Reject(ctx, missing, "u1", "C1") },
		"timeout": func() (rotation.Result, error) { return h.engine.OnTimeout(ctx, missing, "u1") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			res, err := op()
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if res.Outcome != rotation.OutcomeExpired || res.Request != nil {
				t.Fatalf("result = %+v", res)
			}
			if !errors.Is(res.Err(), bystander.ErrRequestExpired) {
				t.Fatalf("Err() = %v", res.Err())
			}
		})
	}

	if h.store.RequestCount() != 0 || len(h.sched.calls) != 0 {
		t.Fatal("expired responses mutated state")
	}
	// Responders are told; the timeout is silent.
	if n := len(h.gw.DeliveriesTo("u1")); n != 2 {
		t.Fatalf("expiry notices = %d, want 2", n)
	}
	for _, d := range h.gw.DeliveriesTo("u1") {
		if d.Message.Text != gateway.ExpiredMessage().Text {
			t.Fatalf("notice = %q", d.Message.Text)
		}
	}
}

func TestResponseAfterAcceptIsExpired(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2")
	ctx := context.Background()

	h.engine.Accept(ctx, reqID, u[0], "C1")
	res, err := h.engine.Reject(ctx, reqID, u[1], "C1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != rotation.OutcomeExpired {
		t.Fatalf("outcome = %s, want expired", res.Outcome)
	}
	if res, _ := h.engine.OnTimeout(ctx, reqID, u[0]); res.Outcome != rotation.OutcomeExpired {
		t.Fatalf("timeout outcome = %s, want expired", res.Outcome)
	}
}

// ──────────────────────────────────────────────────
// Failures
// ──────────────────────────────────────────────────

func TestAcceptGatewayFailureKeepsRequest(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2")
	h.gw.FailOn(gwmemory.OpPostChannel, errors.New("rate limited"))

	_, err := h.engine.Accept(context.Background(), reqID, u[0], "C1")
	if !bystander.IsGatewayError(err) {
		t.Fatalf("err = %v, want GatewayError", err)
	}
	h.load(t, reqID)
}

func TestExhaustGatewayFailureKeepsRequest(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2")
	ctx := context.Background()
	h.engine.OnTimeout(ctx, reqID, u[0])

	h.gw.FailOn(gwmemory.OpNotifyUser, errors.New("rate limited"))
	if _, err := h.engine.OnTimeout(ctx, reqID, u[1]); !bystander.IsGatewayError(err) {
		t.Fatalf("err = %v, want GatewayError", err)
	}
	if r := h.load(t, reqID); r.Current != u[1] {
		t.Fatalf("Current = %q", r.Current)
	}

	// A retry once the platform recovers completes the give-up.
	h.gw.FailOn(gwmemory.OpNotifyUser, nil)
	res, err := h.engine.OnTimeout(ctx, reqID, u[1])
	if err != nil || res.Outcome != rotation.OutcomeGivenUp {
		t.Fatalf("retry = %s, %v", res.Outcome, err)
	}
	h.gone(t, reqID)
}

func TestAdvanceSchedulerFailureKeepsHolder(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")
	h.sched.err = errors.New("queue full")

	if _, err := h.engine.Reject(context.Background(), reqID, u[0], "C1"); err == nil {
		t.Fatal("expected error when the next timeout cannot be armed")
	}
	if r := h.load(t, reqID); r.Current != u[0] {
		t.Fatalf("Current = %q, want %q until a timeout covers the move", r.Current, u[0])
	}
	if got := h.gw.Prompts(); !slices.Equal(got, []string{u[0]}) {
		t.Fatalf("prompted %v", got)
	}

	// The timeout armed for u[0] is still live and moves the request on.
	h.sched.err = nil
	res, err := h.engine.OnTimeout(context.Background(), reqID, u[0])
	if err != nil || res.Outcome != rotation.OutcomeAdvanced || res.Holder != u[1] {
		t.Fatalf("OnTimeout = %s holder %q, %v", res.Outcome, res.Holder, err)
	}
	if got := h.sched.candidates(); !slices.Equal(got, []string{u[0], u[1]}) {
		t.Fatalf("armed %v", got)
	}
}

func TestTimeoutSchedulerFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")
	h.sched.err = errors.New("queue full")

	if _, err := h.engine.OnTimeout(context.Background(), reqID, u[0]); err == nil {
		t.Fatal("expected error")
	}
	h.sched.err = nil
	res, err := h.engine.OnTimeout(context.Background(), reqID, u[0])
	if err != nil || res.Outcome != rotation.OutcomeAdvanced {
		t.Fatalf("retried timeout = %s, %v; want advanced, not stale", res.Outcome, err)
	}
	if r := h.load(t, reqID); r.Current != u[1] {
		t.Fatalf("Current = %q", r.Current)
	}
}

func TestAdvancePromptFailureStillArmsTimeout(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3")
	h.gw.FailOn(gwmemory.OpNotifyUser, errors.New("user_not_found"))

	if _, err := h.engine.Reject(context.Background(), reqID, u[0], "C1"); !bystander.IsGatewayError(err) {
		t.Fatalf("err = %v, want GatewayError", err)
	}
	if r := h.load(t, reqID); r.Current != u[1] {
		t.Fatalf("Current = %q, want %q", r.Current, u[1])
	}
	if got := h.sched.candidates(); !slices.Equal(got, []string{u[0], u[1]}) {
		t.Fatalf("armed %v; the rotation must keep moving after a failed prompt", got)
	}
}

// ──────────────────────────────────────────────────
// Concurrency
// ──────────────────────────────────────────────────

func TestConcurrentTimeoutsAdvanceOnce(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "u1", "u2", "u3", "u4")
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[rotation.Outcome]int{}
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.engine.OnTimeout(ctx, reqID, u[0])
			if err != nil {
				t.Errorf("OnTimeout: %v", err)
				return
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if outcomes[rotation.OutcomeAdvanced] != 1 || outcomes[rotation.OutcomeStale] != 7 {
		t.Fatalf("outcomes = %v, want one advance and seven stale", outcomes)
	}
	if r := h.load(t, reqID); r.Current != u[1] {
		t.Fatalf("Current = %q, want %q", r.Current, u[1])
	}
}

func TestConcurrentRejectionsAreAllRecorded(t *testing.T) {
	h := newHarness(t)
	reqID, u := h.start(t, "a", "b", "c", "d", "e", "f")
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, user := range u[1:] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.Reject(ctx, reqID, user, "C1"); err != nil {
				t.Errorf("Reject(%s): %v", user, err)
			}
		}()
	}
	wg.Wait()

	r := h.load(t, reqID)
	got := slices.Clone(r.Rejected)
	slices.Sort(got)
	want := slices.Clone(u[1:])
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Fatalf("Rejected = %v, want %v", got, want)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[rotation.Outcome]string{
		rotation.OutcomeStarted:  "started",
		rotation.OutcomeGivenUp:  "given_up",
		rotation.OutcomeExpired:  "expired",
		rotation.Outcome(99):     "unknown",
		rotation.OutcomeAccepted: "accepted",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}
