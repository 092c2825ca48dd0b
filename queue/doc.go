// Package queue limits how fast timeout jobs are fired.
//
// Every fired timeout may prompt a candidate or notify a requester, so the
// rate at which jobs run is the rate at which the chat platform is called.
// [Manager] enforces two kinds of limits at dequeue time:
//
//   - per queue: a token bucket and a concurrency cap, set with [Config]
//   - global: one token bucket shared by every queue, set with
//     [Manager.SetGlobalLimit], matching the platform's own rate limit
//
// Limits use golang.org/x/time/rate. A job refused by the manager is put
// back in its queue and retried after the pool's poll interval.
//
//	m := queue.NewManager(queue.Config{Name: "timeouts", MaxConcurrency: 8})
//	m.SetGlobalLimit(1, 5)
//	if m.Acquire("timeouts") {
//	    defer m.Release("timeouts")
//	    // fire the timeout
//	}
//
// Queues without a [Config] have no limits beyond the global one and the
// pool-wide concurrency.
package queue
