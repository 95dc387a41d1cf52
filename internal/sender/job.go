// Package sender turns queued jobs into rate-limited Telegram sendMessage calls.
package sender

import (
	"time"

	"github.com/serroba/tg-dispatch/internal/telegram"
)

const (
	// TopicSend carries jobs waiting to be sent.
	TopicSend = "telegram.send"
	// TopicSendFailed receives jobs whose every attempt failed.
	TopicSendFailed = "telegram.send.failed"
)

// SendMessageJob is one message queued for delivery.
type SendMessageJob struct {
	ID                    string    `json:"id"`
	BatchID               string    `json:"batchId,omitempty"`
	ChatID                string    `json:"chatId"`
	Text                  string    `json:"text"`
	ParseMode             string    `json:"parseMode,omitempty"`
	DisableWebPagePreview *bool     `json:"disableWebPagePreview,omitempty"`
	QueuedAt              time.Time `json:"queuedAt"`
}

// Request builds the Bot API payload. Link previews are off unless the job
// asks for them.
func (j *SendMessageJob) Request() *telegram.SendMessageRequest {
	disablePreview := true
	if j.DisableWebPagePreview != nil {
		disablePreview = *j.DisableWebPagePreview
	}

	return &telegram.SendMessageRequest{
		ChatID:                j.ChatID,
		Text:                  j.Text,
		ParseMode:             j.ParseMode,
		DisableWebPagePreview: &disablePreview,
	}
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit]) + "..."
}
