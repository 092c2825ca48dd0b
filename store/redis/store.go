package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/request"
)

// Compile-time interface checks.
var (
	_ request.Store = (*Store)(nil)
	_ job.Store     = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now for job due times and heartbeats. Request
// expiry always follows the Redis server clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJobRetention sets how long completed and failed jobs are kept.
// Zero keeps them until DeleteJob.
func WithJobRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// DefaultJobRetention is how long terminal jobs stay inspectable.
const DefaultJobRetention = 24 * time.Hour

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client    goredis.Cmdable
	logger    *slog.Logger
	now       func() time.Time
	retention time.Duration
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		logger:    slog.Default(),
		now:       time.Now,
		retention: DefaultJobRetention,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

func isRedisNil(err error) bool { return errors.Is(err, goredis.Nil) }
