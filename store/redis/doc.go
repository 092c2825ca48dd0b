// Package redis implements store.Store on Redis through go-redis v9.
//
// Requests are stored as JSON strings with a native TTL, so an abandoned
// rotation disappears without any sweeper. Timeout jobs are stored as
// Hashes and indexed per queue in a Sorted Set scored by RunAt; a Lua
// script claims due members atomically, which makes it safe to run
// several worker processes against the same Redis. Completed and failed
// jobs expire after DefaultJobRetention unless WithJobRetention says
// otherwise.
//
// The package also provides Locker, a SET NX based per-request lock that
// serialises rotation transitions across processes.
//
// The caller owns the client lifecycle; Close never closes it:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
