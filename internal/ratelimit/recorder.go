package ratelimit

import "time"

// Outcome is the result of one acquisition against a window.
type Outcome string

const (
	OutcomeAcquired Outcome = "acquired"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeError    Outcome = "error"
	// OutcomeCancelled means the caller's context ended during the wait.
	OutcomeCancelled Outcome = "cancelled"
)

// Recorder receives acquisition results, typically to export metrics.
type Recorder interface {
	ObserveAcquire(window string, outcome Outcome, waited time.Duration)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ObserveAcquire(string, Outcome, time.Duration) {}
