// Package bystander routes a free-text task to one person at a time until
// someone accepts it, everyone rejects it, or nobody answers in time.
//
// A request names a set of candidates. Bystander shuffles them once, asks
// the first, and waits. A rejection or an unanswered prompt moves the task
// forward to the next candidate who has not declined; an acceptance ends
// the rotation. Request state lives in a store with a bounded TTL and every
// prompt arms a delayed timeout job, so the rotation survives restarts.
//
// # Quick Start
//
//	b, err := bystander.New(
//	    bystander.WithStore(redisStore),
//	    bystander.WithResponseTimeout(2*time.Minute),
//	)
//	eng, err := engine.Build(b, slackGateway)
//	_ = eng.Start(ctx)
//
// # Architecture
//
// The rotation package owns the state machine. It depends only on small
// contracts: request.Store for persistence, rotation.Scheduler for the
// deferred timeout check and gateway.Notifier for messages. The engine
// package wires those contracts to concrete backends: store/redis or
// store/memory, the scheduler package backed by the job worker pool, and a
// caller-supplied chat gateway.
//
// All request IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers such as "req_01h455vb4pex5vsknk084sn02q".
package bystander
