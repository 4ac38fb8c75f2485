package auth

import "context"

type contextKey string

const outcomeKey contextKey = "auth_outcome"

// WithOutcome attaches an authentication Outcome to the request context.
func WithOutcome(ctx context.Context, o Outcome) context.Context {
	return context.WithValue(ctx, outcomeKey, o)
}

// OutcomeFromContext returns the Outcome attached by the Auth middleware,
// or the zero value (Unauthenticated) if none was attached.
func OutcomeFromContext(ctx context.Context) Outcome {
	o, _ := ctx.Value(outcomeKey).(Outcome)
	return o
}
