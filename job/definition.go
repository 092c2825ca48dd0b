package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// Definition binds a job name to a handler for payloads of type T. On the
// wire the payload is JSON; it is decoded into T before Handler runs.
type Definition[T any] struct {
	Name    string
	Handler func(ctx context.Context, payload T) error
	// Opts are the defaults jobs of this name are registered with.
	Opts Options
}

// NewDefinition returns a Definition starting from DefaultOptions.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Definition[T]{Name: name, Handler: handler, Opts: o}
}

// raw adapts the typed handler to a HandlerFunc. An empty payload runs the
// handler with the zero T; a payload that does not decode is an error and
// never reaches the handler.
func (d *Definition[T]) raw() HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var v T
		if len(payload) == 0 {
			return d.Handler(ctx, v)
		}
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("job %s: decode payload: %w", d.Name, err)
		}
		return d.Handler(ctx, v)
	}
}
