package bystander

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Option configures a Bystander.
type Option func(*Bystander) error

// Storer is the minimal store interface held by the Bystander.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used by the engine package, which sits above the
// subsystem packages and can import them without a cycle.
type Storer interface {
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Bystander holds the configuration, logger and store shared by every
// subsystem. Create one with New and functional options, then hand it to
// engine.Build to wire the rotation engine and worker pool.
type Bystander struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	pool       poolRunner

	started bool
}

// New creates a new Bystander with the given options.
func New(opts ...Option) (*Bystander, error) {
	b := &Bystander{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Logger returns the configured logger.
func (b *Bystander) Logger() *slog.Logger { return b.logger }

// Store returns the configured store.
func (b *Bystander) Store() Storer { return b.store }

// Config returns a copy of the configuration.
func (b *Bystander) Config() Config { return b.config }

// SetPool sets the worker pool (called by the engine package).
func (b *Bystander) SetPool(p poolRunner) { b.pool = p }

// SetExtensions sets the extension emitter (called by the engine package).
func (b *Bystander) SetExtensions(e extensionEmitter) { b.extensions = e }

// Start begins processing timeout jobs.
func (b *Bystander) Start(ctx context.Context) error {
	if b.pool == nil {
		return ErrNoStore
	}
	if err := b.pool.Start(ctx); err != nil {
		return err
	}
	b.started = true
	return nil
}

// Stop gracefully shuts down the worker pool and closes the store.
func (b *Bystander) Stop(ctx context.Context) error {
	if b.pool != nil && b.started {
		if err := b.pool.Stop(ctx); err != nil {
			b.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
		b.started = false
	}
	if b.extensions != nil {
		b.extensions.EmitShutdown(ctx)
	}
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// WithStore sets the persistence backend.
// The store must implement Storer at minimum; engine.Build additionally
// requires store.Store.
func WithStore(s Storer) Option {
	return func(b *Bystander) error {
		b.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bystander) error {
		if l == nil {
			return errors.New("bystander: nil logger")
		}
		b.logger = l
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(b *Bystander) error {
		b.config = c
		return nil
	}
}

// WithRequestTTL sets how long an untouched request survives.
func WithRequestTTL(d time.Duration) Option {
	return func(b *Bystander) error {
		if d <= 0 {
			return errors.New("bystander: request ttl must be positive")
		}
		b.config.RequestTTL = d
		return nil
	}
}

// WithResponseTimeout sets how long a candidate has to answer.
func WithResponseTimeout(d time.Duration) Option {
	return func(b *Bystander) error {
		if d <= 0 {
			return errors.New("bystander: response timeout must be positive")
		}
		b.config.ResponseTimeout = d
		return nil
	}
}

// WithConcurrency sets the maximum number of concurrent timeout jobs.
func WithConcurrency(n int) Option {
	return func(b *Bystander) error {
		b.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the worker pool polls for due jobs.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bystander) error {
		b.config.PollInterval = d
		return nil
	}
}

// WithQueues sets the queues the worker pool polls.
func WithQueues(queues []string) Option {
	return func(b *Bystander) error {
		b.config.Queues = queues
		return nil
	}
}
