package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/id"
	"github.com/xraph/bystander/request"
)

// GetRequest loads a request record. A missing key, whether deleted or
// expired by Redis, is reported as ErrRequestNotFound.
func (s *Store) GetRequest(ctx context.Context, requestID id.RequestID) (*request.Request, error) {
	data, err := s.client.Get(ctx, requestKey(requestID.String())).Bytes()
	if err != nil {
		if isRedisNil(err) {
			return nil, bystander.ErrRequestNotFound
		}
		return nil, fmt.Errorf("bystander/redis: get request: %w", err)
	}
	return request.Unmarshal(requestID, data)
}

// PutRequest writes the full record and restarts its TTL.
func (s *Store) PutRequest(ctx context.Context, r *request.Request, ttl time.Duration) error {
	data, err := request.Marshal(r)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, requestKey(r.ID.String()), data, ttl).Err(); err != nil {
		return fmt.Errorf("bystander/redis: put request: %w", err)
	}
	return nil
}

// DeleteRequest removes a request record. Missing keys are ignored.
func (s *Store) DeleteRequest(ctx context.Context, requestID id.RequestID) error {
	if err := s.client.Del(ctx, requestKey(requestID.String())).Err(); err != nil {
		return fmt.Errorf("bystander/redis: delete request: %w", err)
	}
	return nil
}
