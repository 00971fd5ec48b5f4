package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const sinkTimeout = 15 * time.Second

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("endpoint answered %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// WebhookSink POSTs the message and metadata as JSON to an arbitrary
// endpoint.
type WebhookSink struct {
	Endpoint string
	client   *http.Client
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(endpoint string) *WebhookSink {
	return &WebhookSink{
		Endpoint: endpoint,
		client:   &http.Client{Timeout: sinkTimeout},
	}
}

// ID implements Sink.
func (s *WebhookSink) ID() string { return "webhook" }

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, message string, meta map[string]string) error {
	return postJSON(ctx, s.client, s.Endpoint, map[string]any{
		"message": message,
		"meta":    meta,
	})
}

// SlackSink posts to a Slack incoming-webhook URL.
type SlackSink struct {
	WebhookURL string
	client     *http.Client
}

// NewSlackSink creates a Slack sink.
func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{
		WebhookURL: webhookURL,
		client:     &http.Client{Timeout: sinkTimeout},
	}
}

// ID implements Sink.
func (s *SlackSink) ID() string { return "slack" }

// Send implements Sink.
func (s *SlackSink) Send(ctx context.Context, message string, meta map[string]string) error {
	text := message
	if status := meta["status"]; status != "" {
		text = fmt.Sprintf("[%s] %s", status, message)
	}
	return postJSON(ctx, s.client, s.WebhookURL, map[string]any{"text": text})
}

// TelegramSink sends through the Telegram bot API.
type TelegramSink struct {
	// BaseURL allows overriding the API host in tests.
	BaseURL string
	Token   string
	ChatID  string
	client  *http.Client
}

// NewTelegramSink creates a Telegram sink.
func NewTelegramSink(token, chatID string) *TelegramSink {
	return &TelegramSink{
		BaseURL: "https://api.telegram.org",
		Token:   token,
		ChatID:  chatID,
		client:  &http.Client{Timeout: sinkTimeout},
	}
}

// ID implements Sink.
func (s *TelegramSink) ID() string { return "telegram" }

// Send implements Sink.
func (s *TelegramSink) Send(ctx context.Context, message string, meta map[string]string) error {
	endpoint, err := url.JoinPath(s.BaseURL, "bot"+s.Token, "sendMessage")
	if err != nil {
		return fmt.Errorf("build telegram endpoint: %w", err)
	}
	return postJSON(ctx, s.client, endpoint, map[string]any{
		"chat_id": s.ChatID,
		"text":    message,
	})
}
