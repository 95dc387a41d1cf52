package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes registers the enqueue routes. ingress guards both
// endpoints with the per-client request limit.
func RegisterRoutes(
	api huma.API,
	messageHandler *MessageHandler,
	ingress func(ctx huma.Context, next func(huma.Context)),
) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/messages",
		Summary:       "Queue a message",
		Description:   "Queues a Telegram message for rate limited delivery.",
		Tags:          []string{"Messages"},
		DefaultStatus: http.StatusAccepted,
		Middlewares:   huma.Middlewares{ingress},
	}, messageHandler.SendMessage)

	huma.Register(api, huma.Operation{
		OperationID:   "dispatch-test",
		Method:        http.MethodPost,
		Path:          "/dispatch",
		Summary:       "Queue a test batch",
		Description:   "Queues numbered test messages round-robin over the configured chats.",
		Tags:          []string{"Messages"},
		DefaultStatus: http.StatusAccepted,
		Middlewares:   huma.Middlewares{ingress},
	}, messageHandler.Dispatch)
}
