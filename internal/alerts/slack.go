package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

// Sink delivers a free-text alert somewhere a human will see it.
type Sink interface {
	Name() string
	Send(ctx context.Context, message string) error
}

type slackMessage struct {
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

// WebhookSink posts {"text": ...} to a Slack-compatible incoming webhook.
type WebhookSink struct {
	url    string
	client *resty.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:    url,
		client: resty.New().SetTimeout(timeout),
	}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Send(ctx context.Context, message string) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(slackMessage{Text: message, Username: "Trading Bot Monitor", IconEmoji: ":warning:"}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// LogSink writes the alert as a critical log line. It never fails.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(ctx context.Context, message string) error {
	observ.Critical("alert", map[string]any{"message": message})
	return nil
}
