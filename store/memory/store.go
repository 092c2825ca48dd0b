package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/request"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ request.Store = (*Store)(nil)
	_ job.Store     = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now. Request expiry and job due times are
// evaluated against it.
func WithClock(now func() time.Time) Option {
	return func(m *Store) {
		if now != nil {
			m.now = now
		}
	}
}

type storedRequest struct {
	req       *request.Request
	expiresAt time.Time
}

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	requests map[string]storedRequest
	jobs     map[string]*job.Job

	now    func() time.Time
	closed bool
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	m := &Store{
		requests: make(map[string]storedRequest),
		jobs:     make(map[string]*job.Job),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping fails once the store is closed.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return bystander.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Data is kept so tests can inspect it.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Request Store
// ──────────────────────────────────────────────────

// GetRequest returns a copy of the request, or ErrRequestNotFound when it
// was never stored, was deleted or has outlived its TTL.
func (m *Store) GetRequest(_ context.Context, requestID id.RequestID) (*request.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := requestID.String()
	sr, ok := m.requests[key]
	if !ok {
		return nil, bystander.ErrRequestNotFound
	}
	if !sr.expiresAt.After(m.now()) {
		delete(m.requests, key)
		return nil, bystander.ErrRequestNotFound
	}
	return sr.req.Clone(), nil
}

// PutRequest stores a copy of r and restarts its TTL.
func (m *Store) PutRequest(_ context.Context, r *request.Request, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return bystander.ErrStoreClosed
	}
	m.requests[r.ID.String()] = storedRequest{
		req:       r.Clone(),
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

// DeleteRequest removes a request. Deleting a missing request is not an
// error.
func (m *Store) DeleteRequest(_ context.Context, requestID id.RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, requestID.String())
	return nil
}

// RequestCount returns the number of live requests.
func (m *Store) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	n := 0
	for _, sr := range m.requests {
		if sr.expiresAt.After(now) {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return bystander.ErrStoreClosed
	}
	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return bystander.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DequeueJobs atomically claims up to limit due jobs from the given
// queues, sets them to running, and returns them.
func (m *Store) DequeueJobs(_ context.Context, queues []string, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := m.now().UTC()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if !j.Due(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		j.State = job.StateRunning
		n := now
		j.StartedAt = &n
		j.HeartbeatAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *j
		result[i] = &cp
	}

	return result, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, bystander.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return bystander.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = m.now().UTC()
	m.jobs[key] = &cp
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return bystander.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by RunAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].RunAt.Before(result[k].RunAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return bystander.ErrJobNotFound
	}
	now := m.now().UTC()
	j.HeartbeatAt = &now
	j.WorkerID = workerID
	return nil
}

// ReapStaleJobs returns running jobs whose last heartbeat is older than
// the given threshold.
func (m *Store) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().UTC().Add(-threshold)
	var stale []*job.Job
	for _, j := range m.jobs {
		if j.State != job.StateRunning {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			cp := *j
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}
