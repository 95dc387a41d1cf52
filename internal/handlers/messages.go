package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/tg-dispatch/internal/sender"
	"go.uber.org/zap"
)

// Enqueuer queues send jobs for the workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *sender.SendMessageJob) error
	DispatchTest(ctx context.Context, count int, chatID string) (*sender.Batch, error)
}

// MessageHandler handles message enqueue operations.
type MessageHandler struct {
	dispatcher Enqueuer
	logger     *zap.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(dispatcher Enqueuer, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// SendMessage queues one message. Delivery happens asynchronously in the
// worker, subject to the global and per-chat limits.
func (h *MessageHandler) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	job := &sender.SendMessageJob{
		ChatID:                req.Body.ChatID,
		Text:                  req.Body.Text,
		ParseMode:             req.Body.ParseMode,
		DisableWebPagePreview: req.Body.DisableWebPagePreview,
	}

	if err := h.dispatcher.Enqueue(ctx, job); err != nil {
		h.logger.Error("failed to enqueue message",
			zap.String("chat_id", job.ChatID),
			zap.Error(err),
		)

		return nil, huma.Error503ServiceUnavailable("message queue unavailable")
	}

	resp := &SendMessageResponse{}
	resp.Body.JobID = job.ID
	resp.Body.ChatID = job.ChatID
	resp.Body.QueuedAt = job.QueuedAt.UTC().Format(time.RFC3339)

	return resp, nil
}

// Dispatch queues a numbered test batch.
func (h *MessageHandler) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	batch, err := h.dispatcher.DispatchTest(ctx, req.Body.Count, req.Body.ChatID)
	if errors.Is(err, sender.ErrInvalidCount) {
		return nil, huma.Error400BadRequest(err.Error())
	}

	if err != nil {
		h.logger.Error("failed to dispatch test batch",
			zap.Int("count", req.Body.Count),
			zap.Error(err),
		)

		return nil, huma.Error503ServiceUnavailable("message queue unavailable")
	}

	resp := &DispatchResponse{}
	resp.Body.BatchID = batch.ID
	resp.Body.Count = batch.Count
	resp.Body.ChatIDs = batch.ChatIDs

	return resp, nil
}
