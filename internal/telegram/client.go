// Package telegram is a minimal client for the Telegram Bot API sendMessage method.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

const defaultTimeout = 10 * time.Second

// SendMessageRequest is the sendMessage payload. Empty optional fields are omitted.
type SendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview *bool  `json:"disable_web_page_preview,omitempty"`
}

// APIError is returned when the Bot API answers with a non-2xx status.
type APIError struct {
	StatusCode  int
	Description string
	Body        []byte
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram: api error %d: %s", e.StatusCode, e.Description)
	}

	return fmt.Sprintf("telegram: api error %d", e.StatusCode)
}

// Retryable reports whether sending again later may succeed.
// Client errors such as "chat not found" never will; 429 and 5xx may.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable reports whether err is worth another attempt.
// Transport failures are retryable; API errors decide for themselves.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	return err != nil
}

// apiResponse is the error envelope of the Bot API.
type apiResponse struct {
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Client sends messages through one bot.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another Bot API server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the bot identified by token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    DefaultBaseURL,
		token:      token,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Configured reports whether a bot token is set.
func (c *Client) Configured() bool {
	return c.token != ""
}

// SendMessage posts req to sendMessage.
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("telegram: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", c.redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var decoded apiResponse
	_ = json.Unmarshal(body, &decoded)

	success := resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
	if success && decoded.ErrorCode == 0 {
		return nil
	}

	// Proxies in front of the Bot API may answer 200 with the error only in the body.
	status := resp.StatusCode
	if success {
		status = decoded.ErrorCode
	}

	return &APIError{StatusCode: status, Description: decoded.Description, Body: body}
}

// redact strips the bot token from transport errors, which embed the request URL.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = c.baseURL + "/bot<redacted>/sendMessage"
	}

	return err
}
