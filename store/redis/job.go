package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/job"
)

// claimDue takes up to ARGV[2] due members off the queue KEYS[1] (all of
// them when ARGV[2] is not positive) and marks each job hash, found under
// ARGV[3]..id, as state ARGV[4] since ARGV[5]. Members whose hash is gone are
// dropped without being returned. Removal and marking happen in one script,
// so a claimed job is never left pending outside its queue.
var claimDue = goredis.NewScript(`
local ids
if tonumber(ARGV[2]) > 0 then
	ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
else
	ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
local claimed = {}
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	local key = ARGV[3] .. id
	if redis.call('EXISTS', key) == 1 then
		redis.call('HSET', key, 'state', ARGV[4], 'started_at', ARGV[5], 'heartbeat_at', ARGV[5], 'updated_at', ARGV[5])
		claimed[#claimed + 1] = id
	end
end
return claimed
`)

// EnqueueJob stores the job as a Hash and adds it to the queue's Sorted Set.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("bystander/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return bystander.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: jobScore(j.RunAt), Member: jID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bystander/redis: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs atomically claims up to limit due jobs from the given queues.
// Jobs not yet due stay in their queue.
func (s *Store) DequeueJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	now := s.now().UTC()
	stamp := now.Format(time.RFC3339Nano)
	cutoff := strconv.FormatInt(now.UnixMilli(), 10)

	var jobs []*job.Job
	for _, q := range queues {
		remaining := limit - len(jobs)
		if limit > 0 && remaining <= 0 {
			break
		}
		if limit <= 0 {
			remaining = 0
		}

		ids, err := claimDue.Run(ctx, s.client, []string{queueKey(q)},
			cutoff, remaining, jobKey(""), string(job.StateRunning), stamp,
		).StringSlice()
		if err != nil && !isRedisNil(err) {
			return nil, fmt.Errorf("bystander/redis: dequeue claim: %w", err)
		}

		for _, jID := range ids {
			key := jobKey(jID)
			j, getErr := s.getJobByKey(ctx, key)
			if getErr != nil {
				s.logger.Warn("claimed job vanished",
					slog.String("job_id", jID),
					slog.String("error", getErr.Error()),
				)
				continue
			}
			jobs = append(jobs, j)
		}
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].RunAt.Before(jobs[k].RunAt)
	})
	return jobs, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job. Pending and retrying
// jobs are put back in their queue at RunAt; other states leave it.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("bystander/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return bystander.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	// Optional timestamps are cleared first so a requeued job does not
	// keep the StartedAt of its previous attempt.
	pipe.HDel(ctx, key, "started_at", "completed_at", "heartbeat_at")
	pipe.HSet(ctx, key, fields)
	if j.State == job.StatePending || j.State == job.StateRetrying {
		pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: jobScore(j.RunAt), Member: jID})
	} else {
		pipe.ZRem(ctx, queueKey(j.Queue), jID)
	}
	if j.State.Terminal() && s.retention > 0 {
		pipe.Expire(ctx, key, s.retention)
	} else {
		pipe.Persist(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bystander/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	// Get queue name before deleting to remove from sorted set.
	q, err := s.client.HGet(ctx, key, "queue").Result()
	if err != nil {
		if isRedisNil(err) {
			return bystander.ErrJobNotFound
		}
		return fmt.Errorf("bystander/redis: delete job get queue: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, queueKey(q), jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bystander/redis: delete job: %w", err)
	}
	return nil
}

// ListJobsByState returns jobs matching the given state, ordered by RunAt.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	all, err := s.allJobs(ctx, "list")
	if err != nil {
		return nil, err
	}

	jobs := make([]*job.Job, 0, len(all))
	for _, j := range all {
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].RunAt.Before(jobs[k].RunAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	key := jobKey(jobID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("bystander/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return bystander.ErrJobNotFound
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.client.HSet(ctx, key,
		"heartbeat_at", now,
		"worker_id", workerID.String(),
		"updated_at", now,
	).Err(); err != nil {
		return fmt.Errorf("bystander/redis: heartbeat job: %w", err)
	}
	return nil
}

// ReapStaleJobs returns running jobs whose last heartbeat is older than the threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	cutoff := s.now().UTC().Add(-threshold)

	all, err := s.allJobs(ctx, "reap")
	if err != nil {
		return nil, err
	}

	var stale []*job.Job
	for _, j := range all {
		if j.State != job.StateRunning {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			stale = append(stale, j)
		}
	}
	return stale, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	all, err := s.allJobs(ctx, "count")
	if err != nil {
		return 0, err
	}

	var count int64
	for _, j := range all {
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

// allJobs loads every job in the ID index. IDs whose Hash has expired
// are pruned from the index.
func (s *Store) allJobs(ctx context.Context, op string) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("bystander/redis: %s smembers: %w", op, err)
	}
	jobs := make([]*job.Job, 0, len(ids))
	var gone []interface{}
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if errors.Is(getErr, bystander.ErrJobNotFound) {
			gone = append(gone, jID)
			continue
		}
		if getErr != nil {
			s.logger.Warn("skipping unreadable job",
				slog.String("job_id", jID),
				slog.String("error", getErr.Error()),
			)
			continue
		}
		jobs = append(jobs, j)
	}
	if len(gone) > 0 {
		if err := s.client.SRem(ctx, jobIDsKey, gone...).Err(); err != nil {
			s.logger.Warn("prune job index failed", slog.String("error", err.Error()))
		}
	}
	return jobs, nil
}

// jobScore orders a queue by RunAt. A zero RunAt is due immediately.
func jobScore(runAt time.Time) float64 {
	if runAt.IsZero() {
		return 0
	}
	return float64(runAt.UnixMilli())
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":          j.ID.String(),
		"name":        j.Name,
		"queue":       j.Queue,
		"payload":     string(j.Payload),
		"state":       string(j.State),
		"max_retries": strconv.Itoa(j.MaxRetries),
		"retry_count": strconv.Itoa(j.RetryCount),
		"last_error":  j.LastError,
		"request_id":  j.RequestID,
		"worker_id":   j.WorkerID.String(),
		"run_at":      j.RunAt.Format(time.RFC3339Nano),
		"timeout":     strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":  j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.HeartbeatAt != nil {
		m["heartbeat_at"] = j.HeartbeatAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("bystander/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, bystander.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("bystander/redis: parse job id: %w", err)
	}

	maxRetries, _ := strconv.Atoi(m["max_retries"])      //nolint:errcheck // best-effort parse from trusted Redis data
	retryCount, _ := strconv.Atoi(m["retry_count"])      //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: bystander.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:         jID,
		Name:       m["name"],
		Queue:      m["queue"],
		Payload:    []byte(m["payload"]),
		State:      job.State(m["state"]),
		MaxRetries: maxRetries,
		RetryCount: retryCount,
		LastError:  m["last_error"],
		RequestID:  m["request_id"],
		RunAt:      runAt,
		Timeout:    time.Duration(timeout),
	}

	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	j.StartedAt = parseOptionalTime(m["started_at"])
	j.CompletedAt = parseOptionalTime(m["completed_at"])
	j.HeartbeatAt = parseOptionalTime(m["heartbeat_at"])

	return j, nil
}

func parseOptionalTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}
