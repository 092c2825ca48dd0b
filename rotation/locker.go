package rotation

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/id"
)

// Locker serialises the handlers of one request. Every engine operation
// holds the request's lock from load to persist or delete.
type Locker interface {
	// Lock blocks until the request's lock is held or ctx is done. A
	// context failure is reported wrapped in bystander.ErrLockHeld.
	Lock(ctx context.Context, requestID id.RequestID) (unlock func(), err error)
}

// NopLocker never blocks. With it two handlers racing on one request can
// load the same version and both advance; the last write wins and a
// superseded candidate may be prompted twice.
type NopLocker struct{}

// Lock implements Locker.
func (NopLocker) Lock(context.Context, id.RequestID) (func(), error) {
	return func() {}, nil
}

// MemoryLocker is a process-local keyed mutex. It protects one process
// only; deployments with several workers need a shared lock such as the
// one in store/redis.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock implements Locker.
func (l *MemoryLocker) Lock(ctx context.Context, requestID id.RequestID) (func(), error) {
	key := requestID.String()

	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, fmt.Errorf("%w: %w", bystander.ErrLockHeld, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.release(key, kl)
		})
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of requests with a held or awaited lock.
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
