package job

import (
	"time"

	"github.com/xraph/bystander"
)

// Options configures per-job behavior such as retries, queue and timing.
type Options struct {
	// MaxRetries is the maximum number of retry attempts before the job
	// is marked failed.
	MaxRetries int

	// Queue is the queue name this job should be enqueued to.
	Queue string

	// Timeout is the maximum duration a job may run before being cancelled.
	Timeout time.Duration

	// RunAt schedules the job for a specific time. It wins over Delay.
	RunAt time.Time

	// Delay schedules the job relative to enqueue time.
	Delay time.Duration

	// RequestID correlates the job with a rotation request.
	RequestID string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		Queue:      bystander.DefaultQueue,
		Timeout:    30 * time.Second,
	}
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

// WithQueue sets the queue name for the job.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) { o.RunAt = t }
}

// WithDelay schedules the job d after it is built.
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = d }
}

// WithRequest tags the job with the request it serves.
func WithRequest(requestID string) Option {
	return func(o *Options) { o.RequestID = requestID }
}
