package handlers

// SendMessageRequest is the request body for enqueueing a single message.
type SendMessageRequest struct {
	Body struct {
		ChatID                string `doc:"Target chat id"                           example:"-1001234567890" json:"chatId"                          minLength:"1"`
		Text                  string `doc:"Message text"                             example:"Deploy finished" json:"text"                            maxLength:"4096" minLength:"1"`
		ParseMode             string `doc:"Telegram parse mode"                      enum:"HTML,Markdown,MarkdownV2" json:"parseMode,omitempty"    required:"false"`
		DisableWebPagePreview *bool  `doc:"Disable link previews (defaults to true)" json:"disableWebPagePreview,omitempty" required:"false"`
	}
}

// SendMessageResponse is the response for an accepted message.
type SendMessageResponse struct {
	Body struct {
		JobID    string `doc:"Queued job id"  json:"jobId"`
		ChatID   string `doc:"Target chat id" json:"chatId"`
		QueuedAt string `doc:"Queue time"     json:"queuedAt"`
	}
}

// DispatchRequest is the request body for enqueueing a test batch.
type DispatchRequest struct {
	Body struct {
		Count  int    `default:"100" doc:"Number of test messages"                              json:"count"            maximum:"10000" minimum:"1"`
		ChatID string `doc:"Send every message to this chat instead of the configured ones" json:"chatId,omitempty" required:"false"`
	}
}

// DispatchResponse is the response for an accepted test batch.
type DispatchResponse struct {
	Body struct {
		BatchID string   `doc:"Batch id"           example:"V1StGXR8_Z5jdHi6B-myT" json:"batchId"`
		Count   int      `doc:"Jobs enqueued"      json:"count"`
		ChatIDs []string `doc:"Chats the batch targets" json:"chatIds"`
	}
}
