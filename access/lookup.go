package access

import (
	"context"
	"time"

	"github.com/warp/club-engine/facility"
)

// DefaultLookupTimeout bounds every directory, billing and exam call.
const DefaultLookupTimeout = 2 * time.Second

// bounded runs fn with a deadline and gives up when it passes, even if fn
// ignores its context. Any failure comes back as a *facility.DependencyError.
func bounded[T any](ctx context.Context, timeout time.Duration, dependency string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			return zero, &facility.DependencyError{Dependency: dependency, Err: r.err}
		}
		return r.v, nil
	case <-ctx.Done():
		return zero, &facility.DependencyError{Dependency: dependency, Err: ctx.Err()}
	}
}
