// Package retry runs idempotent collaborator calls with a per-attempt
// timeout and bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"incidentrag/internal/domain"
)

type Policy struct {
	Op          string
	Kind        domain.ExternalKind
	MaxAttempts int
	Timeout     time.Duration
	// InitialInterval overrides the first backoff delay; tests shrink it.
	InitialInterval time.Duration
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls fn until it succeeds, returns a permanent error, or the
// attempt budget is spent. Failures come back as *domain.ExternalError.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0
	timedOut := false
	op := func() (T, error) {
		attempts++
		callCtx := ctx
		cancel := func() {}
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		defer cancel()

		v, err := fn(callCtx)
		if err == nil {
			return v, nil
		}
		timedOut = errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)
		if ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	maxTries := p.MaxAttempts
	if maxTries < 1 {
		maxTries = 1
	}
	v, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxTries)))
	if err != nil {
		var zero T
		return zero, domain.NewExternalError(p.Op, p.Kind, attempts, timedOut, err)
	}
	return v, nil
}
