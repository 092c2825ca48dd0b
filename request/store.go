package request

import (
	"context"
	"time"

	"github.com/xraph/bystander/id"
)

// Store defines the persistence contract for requests.
//
// Requests are ephemeral: every write carries a TTL and a request that is
// never resolved vanishes on its own. Callers treat a missing request as
// "expired or already resolved", never as a fault.
type Store interface {
	// GetRequest loads a request. It returns bystander.ErrRequestNotFound
	// when the request was deleted or its TTL ran out.
	GetRequest(ctx context.Context, requestID id.RequestID) (*Request, error)

	// PutRequest writes the full request and resets its TTL.
	PutRequest(ctx context.Context, r *Request, ttl time.Duration) error

	// DeleteRequest removes a request. Deleting a missing request is not
	// an error.
	DeleteRequest(ctx context.Context, requestID id.RequestID) error
}
