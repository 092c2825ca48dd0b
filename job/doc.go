// Package job holds the delayed work behind rotation timeouts.
//
// Every prompt the rotation engine sends arms one [Job]: "if candidate X
// has not answered request R by RunAt, move on". Jobs are never cancelled.
// One that fires after the request has moved on is a no-op, so the store
// only has to keep them until they run.
//
// A job moves through these states:
//
//	pending -> running -> completed
//	pending -> running -> retrying -> running ...
//	pending -> running -> failed
//
// RequestID ties a job to its request in logs, spans and the CLI. Queue
// defaults to "timeouts". MaxRetries bounds retries of a failing handler,
// and Timeout bounds each attempt.
//
// Handlers are registered as typed definitions. The payload travels as
// JSON and is decoded before the handler sees it:
//
//	job.RegisterDefinition(reg, job.NewDefinition("bystander.timeout",
//	    func(ctx context.Context, p TimeoutPayload) error { ... },
//	))
//
// Persistence is behind [Store]; store/memory and store/redis implement it.
package job
