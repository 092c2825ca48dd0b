package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/rotation"
)

var _ rotation.Locker = (*Locker)(nil)

// releaseLock deletes the lock only while it still carries our token.
var releaseLock = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockOption configures a Locker.
type LockOption func(*Locker)

// WithLockTTL bounds how long a crashed holder can keep a request locked.
func WithLockTTL(d time.Duration) LockOption {
	return func(l *Locker) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithRetryInterval sets how often a blocked Lock call retries.
func WithRetryInterval(d time.Duration) LockOption {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithLockLogger sets the logger used for release failures.
func WithLockLogger(logger *slog.Logger) LockOption {
	return func(l *Locker) { l.logger = logger }
}

// Locker is a rotation.Locker shared by every process talking to the same
// Redis. A lock expires after its TTL even if never released.
type Locker struct {
	client goredis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// NewLocker creates a Locker. Defaults: 30s TTL, 25ms retry interval.
func NewLocker(client goredis.Cmdable, opts ...LockOption) *Locker {
	l := &Locker{
		client: client,
		ttl:    30 * time.Second,
		retry:  25 * time.Millisecond,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Lock polls SET NX until the key is ours or ctx is done.
func (l *Locker) Lock(ctx context.Context, requestID id.RequestID) (func(), error) {
	key := lockKey(requestID.String())
	token := id.NewLockID().String()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("bystander/redis: acquire lock: %w", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", bystander.ErrLockHeld, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseLock.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("lock release failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
