package middleware

import "context"

type outcomeKey struct{}

// outcome is what a handler reported about one attempt. Every middleware in
// a chain sees the same value.
type outcome struct{ name string }

// SetOutcome records what the running job achieved, such as "advanced" or
// "stale" for a fired timeout. Tracing, Metrics and Logging attach it to the
// attempt. Called outside a chain it does nothing.
func SetOutcome(ctx context.Context, name string) {
	if o, ok := ctx.Value(outcomeKey{}).(*outcome); ok {
		o.name = name
	}
}

// withOutcome returns ctx carrying an outcome, reusing one installed further
// out.
func withOutcome(ctx context.Context) (context.Context, *outcome) {
	if o, ok := ctx.Value(outcomeKey{}).(*outcome); ok {
		return ctx, o
	}
	o := &outcome{}
	return context.WithValue(ctx, outcomeKey{}, o), o
}

// label is the outcome as reported on spans, metrics and logs. A failed
// attempt is always "error"; a handler that named nothing is "ok".
func (o *outcome) label(err error) string {
	switch {
	case err != nil:
		return "error"
	case o.name != "":
		return o.name
	default:
		return "ok"
	}
}
