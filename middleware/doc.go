// Package middleware wraps the execution of response-timeout jobs.
//
// Every timeout job the worker pool claims runs through one [Chain]. The
// engine builds it as:
//
//	Recover -> Tracing -> Metrics -> Logging -> Timeout -> user middleware -> handler
//
// so a panic anywhere below Recover still produces a failed attempt, and the
// span and metrics see the deadline error from [Timeout]. Each middleware
// receives the [job.Job] being executed; its RequestID links the attempt back
// to the rotation request it belongs to.
//
// A middleware must call next unless it means to skip the handler. Returning
// an error without calling next counts as a failed attempt and is retried
// like any handler error.
package middleware
