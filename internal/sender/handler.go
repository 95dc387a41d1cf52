package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/serroba/tg-dispatch/internal/delivery"
	"github.com/serroba/tg-dispatch/internal/messaging"
	"github.com/serroba/tg-dispatch/internal/ratelimit"
	"github.com/serroba/tg-dispatch/internal/telegram"
	"go.uber.org/zap"
)

const (
	defaultTries   = 3
	defaultBackoff = 5 * time.Second
)

// MessageSender delivers one message to the Bot API.
type MessageSender interface {
	Configured() bool
	SendMessage(ctx context.Context, req *telegram.SendMessageRequest) error
}

// JobRecorder receives the final status of every job.
type JobRecorder interface {
	ObserveJob(status delivery.Status)
}

type nopJobRecorder struct{}

func (nopJobRecorder) ObserveJob(delivery.Status) {}

// Handler sends queued messages, acquiring a rate limit slot before every
// attempt. It retries limiter failures, transport errors, 429 and 5xx
// responses; other API errors end the job at once.
type Handler struct {
	limiter       ratelimit.Acquirer
	client        MessageSender
	deliveries    delivery.Store
	publishFailed messaging.Publish[SendMessageJob]
	recorder      JobRecorder
	clock         ratelimit.Clock
	logger        *zap.Logger
	tries         int
	backoff       time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRetry sets the number of attempts per job and the pause between them.
func WithRetry(tries int, backoff time.Duration) HandlerOption {
	return func(h *Handler) {
		if tries > 0 {
			h.tries = tries
		}

		h.backoff = backoff
	}
}

// WithJobRecorder reports job outcomes to r.
func WithJobRecorder(r JobRecorder) HandlerOption {
	return func(h *Handler) {
		h.recorder = r
	}
}

// WithClock replaces the wall clock used for backoff and timestamps.
func WithClock(clock ratelimit.Clock) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler creates a send handler.
func NewHandler(
	limiter ratelimit.Acquirer,
	client MessageSender,
	deliveries delivery.Store,
	publishFailed messaging.Publish[SendMessageJob],
	logger *zap.Logger,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		limiter:       limiter,
		client:        client,
		deliveries:    deliveries,
		publishFailed: publishFailed,
		recorder:      nopJobRecorder{},
		clock:         ratelimit.SystemClock{},
		logger:        logger,
		tries:         defaultTries,
		backoff:       defaultBackoff,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Handle processes one job. It returns an error only when ctx ends before
// the job reached a final status, so the queue hands it to another worker.
func (h *Handler) Handle(ctx context.Context, job *SendMessageJob) error {
	logger := h.logger.With(
		zap.String("job_id", job.ID),
		zap.String("chat_id", job.ChatID),
	)

	if !h.client.Configured() {
		logger.Warn("bot token not set, skipping send",
			zap.String("text_preview", preview(job.Text, 50)),
		)
		h.finish(ctx, job, delivery.StatusSkipped, 0, nil)

		return nil
	}

	var lastErr error

	for attempt := 1; attempt <= h.tries; attempt++ {
		if attempt > 1 {
			if err := h.clock.Sleep(ctx, h.backoff); err != nil {
				return fmt.Errorf("sender: job %s interrupted: %w", job.ID, err)
			}
		}

		err := h.attempt(ctx, job)
		if err == nil {
			logger.Info("message sent", zap.Int("attempt", attempt))
			h.finish(ctx, job, delivery.StatusSent, attempt, nil)

			return nil
		}

		if !telegram.IsRetryable(err) {
			logger.Error("telegram rejected message", zap.Int("attempt", attempt), zap.Error(err))
			h.finish(ctx, job, delivery.StatusRejected, attempt, err)

			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("sender: job %s interrupted after %v: %w", job.ID, err, ctx.Err())
		}

		lastErr = err

		logger.Warn("send attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("tries", h.tries),
			zap.Error(err),
		)
	}

	logger.Error("giving up on message", zap.Int("tries", h.tries), zap.Error(lastErr))

	if _, err := h.publishFailed(ctx, job); err != nil {
		logger.Error("failed to publish failed job", zap.Error(err))
	}

	h.finish(ctx, job, delivery.StatusFailed, h.tries, lastErr)

	return nil
}

// attempt never calls the Bot API unless a slot was acquired.
func (h *Handler) attempt(ctx context.Context, job *SendMessageJob) error {
	if err := h.limiter.AcquireSlot(ctx, job.ChatID); err != nil {
		return err
	}

	return h.client.SendMessage(ctx, job.Request())
}

func (h *Handler) finish(ctx context.Context, job *SendMessageJob, status delivery.Status, attempts int, err error) {
	h.recorder.ObserveJob(status)

	record := &delivery.Record{
		JobID:      job.ID,
		BatchID:    job.BatchID,
		ChatID:     job.ChatID,
		Status:     status,
		Attempts:   attempts,
		RecordedAt: h.clock.Now(),
	}

	if err != nil {
		record.Error = err.Error()
	}

	if err := h.deliveries.Save(context.WithoutCancel(ctx), record); err != nil {
		h.logger.Error("failed to record delivery",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}
