// Package retry wraps cenkalti/backoff/v5 with the two bounded profiles the
// Sync Engine needs (spec.md §4.5): three attempts for top-level repository
// fetches, two attempts for per-file provider fetches.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Profile names a bounded-retry configuration.
type Profile int

const (
	// TopLevel is used for the top-level repository/index fetch.
	TopLevel Profile = iota
	// PerFile is used for each per-package provider-include fetch.
	PerFile
)

func (p Profile) maxAttempts() uint {
	if p == PerFile {
		return 2
	}
	return 3
}

// Do runs fn, retrying on error per the given profile's bounded exponential
// backoff. It gives up and returns the last error once the attempt budget
// is exhausted; it never retries past ctx's deadline.
func Do(ctx context.Context, profile Profile, fn func(ctx context.Context) error) error {
	op := func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(profile.maxAttempts()),
	)
	return err
}

// DoValue is Do for functions that also return a value on success.
func DoValue[T any](ctx context.Context, profile Profile, fn func(ctx context.Context) (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		return fn(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(profile.maxAttempts()),
	)
}

// UpstreamTimeout is the deadline spec.md §5 mandates for upstream HTTP
// fetches; exceeding it surfaces to the client as 504.
const UpstreamTimeout = 25 * time.Second
