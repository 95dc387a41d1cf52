package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoreUnavailable is matched by every error caused by a failed store call.
	ErrStoreUnavailable = errors.New("ratelimit: counter store unavailable")
	// ErrRateLimitTimeout is matched by TimeoutError.
	ErrRateLimitTimeout = errors.New("ratelimit: timed out waiting for a slot")
)

// StoreError reports the store operation that failed.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ratelimit: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// TimeoutError is returned when a bounded wait expires without a slot.
// Scope is GlobalScope for the global window.
type TimeoutError struct {
	Scope  string
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Scope == GlobalScope {
		return fmt.Sprintf("ratelimit: could not acquire global slot within %s", e.Waited)
	}

	return fmt.Sprintf("ratelimit: could not acquire slot for %s within %s", e.Scope, e.Waited)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrRateLimitTimeout
}
