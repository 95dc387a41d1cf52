package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Acquirer blocks until the caller may perform one gated action for scope.
type Acquirer interface {
	AcquireSlot(ctx context.Context, scope string) error
}

// Limiter gates calls behind a global window and a per-scope window, both
// kept in a shared Store so that any number of processes share the budget.
// Waiters are not queued: whoever claims first after a rollover wins.
type Limiter struct {
	counter  *WindowedCounter
	cfg      Config
	clock    Clock
	recorder Recorder
	logger   *zap.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// WithRecorder reports every acquisition to r.
func WithRecorder(r Recorder) Option {
	return func(l *Limiter) {
		l.recorder = r
	}
}

// WithLogger sets the logger used for waits and timeouts.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// NewLimiter creates a limiter over store.
func NewLimiter(store Store, cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ratelimit: invalid config: %w", err)
	}

	l := &Limiter{
		cfg:      cfg,
		clock:    SystemClock{},
		recorder: NopRecorder{},
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.counter = NewWindowedCounter(store, l.clock)

	return l, nil
}

// Config returns the windows the limiter enforces.
func (l *Limiter) Config() Config {
	return l.cfg
}

// AcquireSlot blocks until both a global slot and a slot for scope are
// reserved. The global slot is taken first and is not returned if the
// per-scope wait then times out. Any error means the action must not run.
func (l *Limiter) AcquireSlot(ctx context.Context, scope string) error {
	if err := l.acquire(ctx, GlobalScope, l.cfg.Global, l.pollInterval); err != nil {
		return err
	}

	return l.acquire(ctx, scope, l.cfg.PerScope, untilRollover)
}

// backoff returns how long to sleep after a failed claim on w at now.
type backoff func(w Window, now time.Time) time.Duration

// pollInterval retries the short global window at a fixed pace, several times per bucket.
func (l *Limiter) pollInterval(Window, time.Time) time.Duration {
	return l.cfg.PollInterval
}

// untilRollover wakes exactly when the next bucket of a long window opens.
func untilRollover(w Window, now time.Time) time.Duration {
	return w.NextBoundary(now).Sub(now)
}

func (l *Limiter) acquire(ctx context.Context, scope string, w Window, wait backoff) error {
	start := l.clock.Now()

	for {
		claimed, err := l.counter.TryClaim(ctx, scope, w)
		if err != nil {
			l.recorder.ObserveAcquire(w.Name, OutcomeError, l.clock.Now().Sub(start))

			return err
		}

		now := l.clock.Now()
		waited := now.Sub(start)

		if claimed {
			l.recorder.ObserveAcquire(w.Name, OutcomeAcquired, waited)

			return nil
		}

		remaining := w.MaxWait - waited
		if remaining <= 0 {
			l.recorder.ObserveAcquire(w.Name, OutcomeTimeout, waited)
			l.logger.Warn("rate limit wait expired",
				zap.String("window", w.Name),
				zap.String("scope", scope),
				zap.Duration("waited", waited),
			)

			return &TimeoutError{Scope: scope, Waited: waited}
		}

		sleep := min(wait(w, now), remaining)

		l.logger.Debug("rate limit reached, waiting",
			zap.String("window", w.Name),
			zap.String("scope", scope),
			zap.Duration("sleep", sleep),
		)

		if err := l.clock.Sleep(ctx, sleep); err != nil {
			l.recorder.ObserveAcquire(w.Name, OutcomeCancelled, l.clock.Now().Sub(start))

			return fmt.Errorf("ratelimit: waiting for %s slot: %w", scope, err)
		}
	}
}
