package store

import (
	"context"

	"github.com/serroba/tg-dispatch/internal/delivery"
	"go.uber.org/zap"
)

// Noop is a delivery.Store that only logs records. It is used when no
// database is configured.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new logging-only delivery store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) Save(_ context.Context, record *delivery.Record) error {
	n.logger.Debug("delivery recorded",
		zap.String("job_id", record.JobID),
		zap.String("batch_id", record.BatchID),
		zap.String("chat_id", record.ChatID),
		zap.String("status", string(record.Status)),
		zap.Int("attempts", record.Attempts),
		zap.Time("recorded_at", record.RecordedAt),
	)

	return nil
}
