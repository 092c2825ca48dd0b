// Package store defines the aggregate persistence interface.
//
// Each subsystem (request, job) defines its own store interface. The
// composite [Store] composes them. A single backend need only implement
// Store to satisfy every subsystem's persistence contract.
//
//	type Store interface {
//	    request.Store
//	    job.Store
//
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory: in-memory store for development and testing
//   - store/redis: Redis backend; requests expire through key TTLs
//
// # Usage
//
//	import "github.com/xraph/bystander/store/redis"
//
//	s := redis.New(goredis.NewClient(&goredis.Options{Addr: "localhost:6379"}))
//	defer s.Close()
//
//	b, err := bystander.New(bystander.WithStore(s))
package store
