package store

import (
	"context"

	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/request"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem store.
type Store interface {
	request.Store
	job.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
