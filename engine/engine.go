package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/backoff"
	"github.com/xraph/bystander/candidate"
	"github.com/xraph/bystander/ext"
	"github.com/xraph/bystander/gateway"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/job"
	mw "github.com/xraph/bystander/middleware"
	"github.com/xraph/bystander/observability"
	"github.com/xraph/bystander/queue"
	"github.com/xraph/bystander/request"
	"github.com/xraph/bystander/rotation"
	"github.com/xraph/bystander/scheduler"
	"github.com/xraph/bystander/store"
	"github.com/xraph/bystander/worker"
)

// Engine wraps a Bystander with typed subsystem access.
// Use Build() to create one from a Bystander.
type Engine struct {
	b          *bystander.Bystander
	store      store.Store
	gateway    gateway.Gateway
	extensions *ext.Registry
	registry   *job.Registry
	bo         backoff.Strategy
	pool       *worker.Pool
	mws        []mw.Middleware
	logger     *slog.Logger

	rotation  *rotation.Engine
	scheduler *scheduler.Scheduler
	resolver  *candidate.Resolver
	locker    rotation.Locker
	rand      *rand.Rand

	// Queue subsystem.
	queueConfigs []queue.Config
	globalRate   float64
	globalBurst  int
	queueManager *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the timeout job chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for failed timeout jobs.
// If not set, backoff.DefaultStrategy() is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithGlobalRateLimit caps how many timeout jobs per second the pool
// starts across all queues.
func WithGlobalRateLimit(rps float64, burst int) Option {
	return func(eng *Engine) {
		eng.globalRate = rps
		eng.globalBurst = burst
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// WithLocker replaces the per-request lock. Use a shared lock such as
// store/redis.Locker when several processes handle events.
func WithLocker(l rotation.Locker) Option {
	return func(eng *Engine) {
		eng.locker = l
	}
}

// WithRand seeds the candidate shuffle.
func WithRand(r *rand.Rand) Option {
	return func(eng *Engine) {
		eng.rand = r
	}
}

// Build creates an Engine from an existing Bystander and a chat gateway.
// The Bystander's store must implement store.Store.
func Build(b *bystander.Bystander, gw gateway.Gateway, opts ...Option) (*Engine, error) {
	logger := b.Logger()
	if b.Store() == nil {
		return nil, bystander.ErrNoStore
	}
	st, ok := b.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("bystander: store does not implement store.Store")
	}
	if gw == nil {
		return nil, fmt.Errorf("bystander: nil gateway")
	}

	eng := &Engine{
		b:          b,
		store:      st,
		gateway:    gw,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Default backoff strategy if none provided.
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/xraph/bystander")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/bystander")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/bystander/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	config := b.Config()

	// Timeouts go to the first polled queue so this pool fires what it arms.
	timeoutQueue := bystander.DefaultQueue
	if len(config.Queues) > 0 {
		timeoutQueue = config.Queues[0]
	}
	eng.scheduler = scheduler.New(st,
		scheduler.WithQueue(timeoutQueue),
		scheduler.WithExtensions(eng.extensions),
		scheduler.WithLogger(logger),
	)

	rotOpts := []rotation.Option{
		rotation.WithLogger(logger),
		rotation.WithExtensions(eng.extensions),
		rotation.WithRequestTTL(config.RequestTTL),
		rotation.WithResponseTimeout(config.ResponseTimeout),
		rotation.WithMinCandidates(config.MinCandidates),
	}
	if eng.locker != nil {
		rotOpts = append(rotOpts, rotation.WithLocker(eng.locker))
	}
	if eng.rand != nil {
		rotOpts = append(rotOpts, rotation.WithRand(eng.rand))
	}
	eng.rotation = rotation.New(st, eng.scheduler, gw, rotOpts...)
	eng.resolver = candidate.NewResolver(gw, logger)

	job.RegisterDefinition(eng.registry, scheduler.Definition(eng.rotation))

	// Build default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger, config.ResponseTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create executor and pool.
	executor := worker.NewExecutor(eng.registry, eng.extensions, st, eng.bo, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolQueues(config.Queues),
		worker.WithPollInterval(config.PollInterval),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithStaleJobThreshold(config.StaleJobThreshold),
	}

	// Create queue manager if any limit was configured.
	if len(eng.queueConfigs) > 0 || eng.globalRate > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		eng.queueManager.SetGlobalLimit(eng.globalRate, eng.globalBurst)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}

	eng.pool = worker.NewPool(
		st,
		executor,
		eng.extensions,
		logger,
		poolOpts...,
	)

	// Wire back into the Bystander.
	b.SetPool(eng.pool)
	b.SetExtensions(eng.extensions)

	return eng, nil
}

// CreateCommand is a new request as typed by a user, e.g. the text of a
// slash command.
type CreateCommand struct {
	RawText     string
	RequesterID string
	ChannelID   string
}

// Create parses the mentions in cmd, resolves them to eligible candidates
// and starts a rotation. When no request can be started the requester is
// told why in a private reply and the cause is returned.
func (eng *Engine) Create(ctx context.Context, cmd CreateCommand) (rotation.Result, error) {
	m := candidate.Parse(cmd.RawText)
	eng.logger.Info("request received",
		slog.String("requester", cmd.RequesterID),
		slog.String("channel", cmd.ChannelID),
		slog.Any("users", m.Users),
		slog.Any("groups", m.Groups),
		slog.String("text", m.Text),
	)

	candidates, err := eng.resolver.Resolve(ctx, m, cmd.RequesterID, cmd.ChannelID)
	if err != nil {
		eng.reply(ctx, cmd, gateway.FailureMessage(cause(err)))
		return rotation.Result{}, err
	}

	res, err := eng.rotation.Start(ctx, candidates, cmd.RequesterID, cmd.ChannelID, m.Text)
	switch {
	case err == nil:
	case errors.Is(err, bystander.ErrInsufficientCandidates):
		eng.reply(ctx, cmd, gateway.InsufficientCandidatesMessage(eng.rotation.MinCandidates()))
	case bystander.IsGatewayError(err):
		eng.reply(ctx, cmd, gateway.FailureMessage(cause(err)))
	}
	return res, err
}

// ResponseCommand is a candidate's answer to a prompt. RequestID is the
// prompt's callback id.
type ResponseCommand struct {
	RequestID string
	UserID    string
	ChannelID string
	Action    gateway.Action
}

// Respond routes an answer to Accept or Reject. An unknown action fails
// with ErrInvalidAction before anything is loaded.
func (eng *Engine) Respond(ctx context.Context, cmd ResponseCommand) (rotation.Result, error) {
	if !cmd.Action.Valid() {
		return rotation.Result{}, fmt.Errorf("%w: %q", bystander.ErrInvalidAction, cmd.Action)
	}

	// An id we never issued names no live request; the rotation engine
	// answers it with the same expiry notice as a vanished one.
	requestID, err := id.ParseRequestID(cmd.RequestID)
	if err != nil {
		eng.logger.Debug("unparseable callback id",
			slog.String("callback_id", cmd.RequestID),
			slog.String("error", err.Error()),
		)
		requestID = id.RequestID{}
	}

	if cmd.Action == gateway.ActionAccept {
		return eng.rotation.Accept(ctx, requestID, cmd.UserID, cmd.ChannelID)
	}
	return eng.rotation.Reject(ctx, requestID, cmd.UserID, cmd.ChannelID)
}

// Request loads a live request by its id string.
func (eng *Engine) Request(ctx context.Context, requestID string) (*request.Request, error) {
	rid, err := id.ParseRequestID(requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bystander.ErrRequestNotFound, err)
	}
	return eng.store.GetRequest(ctx, rid)
}

// reply tells the requester something privately. Delivery failures are
// logged; the caller already has an error to report.
func (eng *Engine) reply(ctx context.Context, cmd CreateCommand, msg gateway.Message) {
	if err := eng.gateway.NotifyUser(ctx, cmd.ChannelID, cmd.RequesterID, msg); err != nil {
		eng.logger.Warn("failed to reply to requester",
			slog.String("requester", cmd.RequesterID),
			slog.String("channel", cmd.ChannelID),
			slog.String("error", err.Error()),
		)
	}
}

// cause strips the GatewayError wrapper so the requester sees the
// platform's own message.
func cause(err error) error {
	var ge *bystander.GatewayError
	if errors.As(err, &ge) && ge.Err != nil {
		return ge.Err
	}
	return err
}

// Start begins firing timeouts by starting the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.b.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.b.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Bystander returns the underlying Bystander.
func (eng *Engine) Bystander() *bystander.Bystander { return eng.b }

// Store returns the composite store.
func (eng *Engine) Store() store.Store { return eng.store }

// Rotation returns the rotation engine.
func (eng *Engine) Rotation() *rotation.Engine { return eng.rotation }

// Scheduler returns the timeout scheduler.
func (eng *Engine) Scheduler() *scheduler.Scheduler { return eng.scheduler }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// QueueManager returns the queue manager, or nil if no queue limits
// were configured.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }
