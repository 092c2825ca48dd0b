package bystander

import "time"

// Config holds configuration for a Bystander instance.
type Config struct {
	// RequestTTL bounds how long a request survives without being
	// rewritten. Every write refreshes it.
	RequestTTL time.Duration

	// ResponseTimeout is how long the current candidate has to answer
	// before the task moves on.
	ResponseTimeout time.Duration

	// MinCandidates is the smallest candidate list a request may start with.
	MinCandidates int

	// Concurrency is the maximum number of timeout jobs processed concurrently.
	Concurrency int

	// Queues is the list of job queues the worker pool polls.
	Queues []string

	// PollInterval is how often to poll for due timeout jobs.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often running jobs send heartbeats.
	HeartbeatInterval time.Duration

	// StaleJobThreshold is how long before a job without heartbeat is
	// considered stale and handed back to the queue.
	StaleJobThreshold time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTTL:        time.Hour,
		ResponseTimeout:   2 * time.Minute,
		MinCandidates:     2,
		Concurrency:       4,
		Queues:            []string{DefaultQueue},
		PollInterval:      time.Second,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		StaleJobThreshold: 30 * time.Second,
	}
}

// DefaultQueue is the queue timeout jobs are enqueued on.
const DefaultQueue = "timeouts"
