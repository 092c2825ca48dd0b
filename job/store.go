package job

import (
	"context"
	"time"

	"github.com/xraph/bystander/id"
)

// ListOpts pages and filters ListJobsByState.
type ListOpts struct {
	Queue  string // empty for every queue
	Offset int
	Limit  int // zero for no limit
}

// CountOpts filters CountJobs. Zero values match everything.
type CountOpts struct {
	Queue string
	State State
}

// Store persists armed timeouts and the other delayed jobs the worker pool
// fires.
type Store interface {
	// EnqueueJob saves j as pending. It fails with
	// bystander.ErrJobAlreadyExists when the id is taken.
	EnqueueJob(ctx context.Context, j *Job) error

	// DequeueJobs claims at most limit jobs from queues whose RunAt has
	// passed, earliest first. A claimed job is running with StartedAt and
	// HeartbeatAt set; no other caller can claim it until it is requeued.
	DequeueJobs(ctx context.Context, queues []string, limit int) ([]*Job, error)

	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob overwrites j. Pending and retrying jobs become claimable
	// again once RunAt passes.
	UpdateJob(ctx context.Context, j *Job) error

	DeleteJob(ctx context.Context, jobID id.JobID) error

	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// HeartbeatJob marks a running job as still owned by workerID.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// ReapStaleJobs returns running jobs whose heartbeat is older than
	// threshold, i.e. whose worker most likely died mid attempt.
	ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*Job, error)

	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
