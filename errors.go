package bystander

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("bystander: no store configured")
	ErrStoreClosed = errors.New("bystander: store closed")

	// Not found errors.
	ErrRequestNotFound = errors.New("bystander: request not found")
	ErrJobNotFound     = errors.New("bystander: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("bystander: job already exists")
	ErrLockHeld         = errors.New("bystander: request lock held")

	// Rotation errors.
	ErrInsufficientCandidates = errors.New("bystander: at least two eligible candidates are required")
	ErrRequestExpired         = errors.New("bystander: request has likely expired or was already resolved")
	ErrInvalidAction          = errors.New("bystander: invalid response action")
	ErrInvalidRequest         = errors.New("bystander: invalid request state")

	// Execution errors.
	ErrHandlerPanic = errors.New("bystander: job handler panicked")
)

// GatewayError reports a failure of the chat platform while resolving
// candidates or delivering a message. It is never retried by the rotation
// engine; the cause is reported to whoever triggered the operation.
type GatewayError struct {
	// Op names the gateway call that failed, e.g. "channel_members".
	Op  string
	Err error
}

// NewGatewayError wraps err as a GatewayError for op.
func NewGatewayError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Err: err}
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("bystander: gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err wraps a GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
