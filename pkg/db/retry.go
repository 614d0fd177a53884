package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ConflictMaxTries bounds how often a conflicting transaction is replayed.
const ConflictMaxTries = 3

// RetryOnConflict runs op until it succeeds, fails with a non-conflict error,
// or ConflictMaxTries attempts have been made. op must be safe to replay in full,
// which means it should own its transaction.
func RetryOnConflict[T any](ctx context.Context, op func() (T, error), onConflict func(attempt int, err error)) (T, error) {
	attempt := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		result, err := op()
		if err == nil {
			return result, nil
		}
		if !IsConflictErr(err) {
			return result, backoff.Permanent(err)
		}
		if onConflict != nil {
			onConflict(attempt, err)
		}
		return result, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(ConflictMaxTries),
	)
}
