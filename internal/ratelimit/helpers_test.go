package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/serroba/tg-dispatch/internal/ratelimit"
	"github.com/serroba/tg-dispatch/internal/store"
)

var errUnreachable = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

// fakeClock advances only when a caller sleeps on it.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)

	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]time.Duration(nil), c.slept...)
}

// unreachableStore fails every call, like a Redis that is down.
type unreachableStore struct{}

func (unreachableStore) Incr(context.Context, string) (int64, error) { return 0, errUnreachable }
func (unreachableStore) Decr(context.Context, string) (int64, error) { return 0, errUnreachable }
func (unreachableStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, errUnreachable
}
func (unreachableStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errUnreachable
}

// expireFailingStore loses the connection between INCR and EXPIRE.
type expireFailingStore struct {
	*store.RateLimitMemoryStore
}

func (expireFailingStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errUnreachable
}

// fullClaimer is an atomic store whose buckets are always full.
type fullClaimer struct {
	unreachableStore

	mu     sync.Mutex
	claims int
}

func (f *fullClaimer) Claim(context.Context, string, int64, time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.claims++

	return false, nil
}

type observation struct {
	window  string
	outcome ratelimit.Outcome
	waited  time.Duration
}

type recordingRecorder struct {
	mu           sync.Mutex
	observations []observation
}

func (r *recordingRecorder) ObserveAcquire(window string, outcome ratelimit.Outcome, waited time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observations = append(r.observations, observation{window: window, outcome: outcome, waited: waited})
}
