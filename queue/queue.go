package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-queue rate limiting and concurrency.
type Config struct {
	// Name is the queue identifier (must match the job.Queue field).
	Name string `yaml:"name" mapstructure:"name"`

	// MaxConcurrency limits how many jobs from this queue may run
	// simultaneously in the local worker pool. Zero means no
	// queue-specific limit (pool-wide concurrency still applies).
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`

	// RateLimit is the maximum sustained jobs per second that may be
	// started from this queue. Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// queueState tracks runtime state for a single queue.
type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-queue and global rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queueState
	global *rate.Limiter
}

// NewManager creates a Manager with the given queue configurations.
// Queues not listed here have no queue-level limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		queues: make(map[string]*queueState, len(configs)),
	}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newQueueState(cfg)
	}
	return m
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func newQueueState(cfg Config) *queueState {
	return &queueState{config: cfg, limiter: newLimiter(cfg.RateLimit, cfg.RateBurst)}
}

// SetGlobalLimit sets a rate limit shared by all queues. A non-positive
// rps removes it.
func (m *Manager) SetGlobalLimit(rps float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = newLimiter(rps, burst)
}

// Acquire checks rate limits and concurrency for the given queue. If the
// job is allowed to proceed it increments the active counter and returns
// true. The caller MUST call Release when the job completes.
//
// Concurrency is checked before any token is taken, so a job refused for
// concurrency does not consume rate budget.
func (m *Manager) Acquire(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs != nil && qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
		return false
	}
	if qs != nil && qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	if m.global != nil && !m.global.Allow() {
		return false
	}

	if qs != nil {
		qs.active++
	}
	return true
}

// Release decrements the active job count for the queue.
func (m *Manager) Release(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qs := m.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetQueueConfig dynamically updates (or creates) a queue configuration.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.queues[cfg.Name]
	qs := newQueueState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		qs.active = existing.active
	}
	m.queues[cfg.Name] = qs
}

// ActiveCount returns the current number of active jobs for a queue.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
