package ratelimit

import (
	"context"
)

// WindowedCounter claims one unit of capacity per call in the current
// bucket of a Window, using increment, check and rollback on overflow.
// A failed claim leaves the counter where it was; the store may briefly
// exceed the ceiling by the number of concurrent losers, but no caller is
// ever granted a slot past it.
type WindowedCounter struct {
	store Store
	clock Clock
}

// NewWindowedCounter creates a counter over store.
func NewWindowedCounter(store Store, clock Clock) *WindowedCounter {
	if clock == nil {
		clock = SystemClock{}
	}

	return &WindowedCounter{
		store: store,
		clock: clock,
	}
}

// TryClaim reserves one slot for scope in the current bucket of w.
// It returns false without blocking when the bucket is full.
func (c *WindowedCounter) TryClaim(ctx context.Context, scope string, w Window) (bool, error) {
	key := w.Key(scope, c.clock.Now())

	if claimer, ok := c.store.(Claimer); ok {
		claimed, err := claimer.Claim(ctx, key, w.Ceiling, w.TTL)
		if err != nil {
			return false, &StoreError{Op: "claim", Key: key, Err: err}
		}

		return claimed, nil
	}

	count, err := c.store.Incr(ctx, key)
	if err != nil {
		return false, &StoreError{Op: "incr", Key: key, Err: err}
	}

	if err := c.ensureTTL(ctx, key, w); err != nil {
		c.rollback(ctx, key)

		return false, err
	}

	if count <= w.Ceiling {
		return true, nil
	}

	if _, err := c.store.Decr(ctx, key); err != nil {
		return false, &StoreError{Op: "decr", Key: key, Err: err}
	}

	return false, nil
}

// ensureTTL expires a freshly created bucket. Concurrent callers racing on
// the same key all set the same TTL.
func (c *WindowedCounter) ensureTTL(ctx context.Context, key string, w Window) error {
	ttl, err := c.store.TTL(ctx, key)
	if err != nil {
		return &StoreError{Op: "ttl", Key: key, Err: err}
	}

	if ttl >= 0 {
		return nil
	}

	if _, err := c.store.Expire(ctx, key, w.TTL); err != nil {
		return &StoreError{Op: "expire", Key: key, Err: err}
	}

	return nil
}

// rollback undoes an increment whose claim is being abandoned. Errors are
// ignored: the caller already reports the store as unavailable.
func (c *WindowedCounter) rollback(ctx context.Context, key string) {
	_, _ = c.store.Decr(context.WithoutCancel(ctx), key)
}
