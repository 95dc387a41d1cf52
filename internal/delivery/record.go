// Package delivery records what happened to every send job.
package delivery

import (
	"context"
	"time"
)

// Status is the final outcome of a send job.
type Status string

const (
	// StatusSent means Telegram accepted the message.
	StatusSent Status = "sent"
	// StatusRejected means Telegram refused the message for good (4xx other than 429).
	StatusRejected Status = "rejected"
	// StatusFailed means every attempt failed with a retryable error.
	StatusFailed Status = "failed"
	// StatusSkipped means no bot token was configured.
	StatusSkipped Status = "skipped"
)

// Record is one finished job.
type Record struct {
	JobID      string
	BatchID    string
	ChatID     string
	Status     Status
	Attempts   int
	Error      string
	RecordedAt time.Time
}

// Store persists delivery records.
type Store interface {
	Save(ctx context.Context, record *Record) error
}
