package job

import (
	"time"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting for its RunAt.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the job.
	StateRunning State = "running"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed and will not be retried.
	StateFailed State = "failed"
	// StateRetrying means the job failed but is scheduled for retry.
	StateRetrying State = "retrying"
)

// Terminal reports whether no further transition is expected.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job represents a deferred unit of work.
type Job struct {
	bystander.Entity

	ID          id.JobID      `json:"id"`
	Name        string        `json:"name"`
	Queue       string        `json:"queue"`
	Payload     []byte        `json:"payload"`
	State       State         `json:"state"`
	MaxRetries  int           `json:"max_retries"`
	RetryCount  int           `json:"retry_count"`
	LastError   string        `json:"last_error,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
	WorkerID    id.WorkerID   `json:"worker_id,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time    `json:"heartbeat_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// New builds a pending job from name, payload and options. RunAt defaults
// to now when neither WithRunAt nor WithDelay is given.
func New(name string, payload []byte, opts ...Option) *Job {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	now := time.Now().UTC()
	runAt := now
	switch {
	case !o.RunAt.IsZero():
		runAt = o.RunAt.UTC()
	case o.Delay > 0:
		runAt = now.Add(o.Delay)
	}

	return &Job{
		Entity:     bystander.Entity{CreatedAt: now, UpdatedAt: now},
		ID:         id.NewJobID(),
		Name:       name,
		Queue:      o.Queue,
		Payload:    payload,
		State:      StatePending,
		MaxRetries: o.MaxRetries,
		RequestID:  o.RequestID,
		RunAt:      runAt,
		Timeout:    o.Timeout,
	}
}

// Due reports whether the job may run at now.
func (j *Job) Due(now time.Time) bool {
	return j.RunAt.IsZero() || !j.RunAt.After(now)
}
