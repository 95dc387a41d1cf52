package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/serroba/tg-dispatch/internal/messaging"
	"go.uber.org/zap"
)

// PlaceholderChatID is used for test batches when no chat ids are configured.
const PlaceholderChatID = "111111"

// ErrInvalidCount is returned when a batch of fewer than one job is requested.
var ErrInvalidCount = errors.New("sender: count must be at least 1")

// Batch describes a group of jobs enqueued together.
type Batch struct {
	ID      string
	Count   int
	ChatIDs []string
}

// Dispatcher enqueues send jobs.
type Dispatcher struct {
	publish    messaging.Publish[SendMessageJob]
	chatIDs    []string
	newBatchID func() string
	now        func() time.Time
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. chatIDs are the default recipients of
// test batches.
func NewDispatcher(
	publish messaging.Publish[SendMessageJob],
	chatIDs []string,
	newBatchID func() string,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		publish:    publish,
		chatIDs:    chatIDs,
		newBatchID: newBatchID,
		now:        time.Now,
		logger:     logger,
	}
}

// Enqueue assigns job an id and queue time and publishes it.
func (d *Dispatcher) Enqueue(ctx context.Context, job *SendMessageJob) error {
	if job.ID == "" {
		job.ID = watermill.NewUUID()
	}

	job.QueuedAt = d.now()

	if _, err := d.publish(ctx, job); err != nil {
		return fmt.Errorf("sender: enqueue job %s: %w", job.ID, err)
	}

	return nil
}

// DispatchTest enqueues count numbered test messages. With chatID empty the
// jobs go round-robin over the configured chat ids.
func (d *Dispatcher) DispatchTest(ctx context.Context, count int, chatID string) (*Batch, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	targets := []string{chatID}
	if chatID == "" {
		targets = d.defaultChatIDs()
	}

	batch := &Batch{
		ID:      d.newBatchID(),
		Count:   count,
		ChatIDs: targets,
	}
	disablePreview := true

	for i := range count {
		job := &SendMessageJob{
			BatchID:               batch.ID,
			ChatID:                targets[i%len(targets)],
			Text:                  fmt.Sprintf("Test message #%d at %s", i+1, d.now().Format(time.RFC3339)),
			DisableWebPagePreview: &disablePreview,
		}

		if err := d.Enqueue(ctx, job); err != nil {
			return nil, fmt.Errorf("sender: batch %s stopped after %d of %d jobs: %w", batch.ID, i, count, err)
		}
	}

	d.logger.Info("test batch dispatched",
		zap.String("batch_id", batch.ID),
		zap.Int("count", count),
		zap.Strings("chat_ids", targets),
	)

	return batch, nil
}

func (d *Dispatcher) defaultChatIDs() []string {
	if len(d.chatIDs) == 0 {
		d.logger.Warn("no chat ids configured, using placeholder", zap.String("chat_id", PlaceholderChatID))

		return []string{PlaceholderChatID}
	}

	return d.chatIDs
}
