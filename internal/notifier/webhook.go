package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"daily_digest/internal/domain"
)

// Webhook posts digests to a WeCom-compatible group robot endpoint.
type Webhook struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

func NewWebhook(cfg WebhookConfig, logger *slog.Logger) *Webhook {
	return &Webhook{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		url:    cfg.URL,
		logger: logger.With("notifier", "webhook"),
	}
}

type webhookPayload struct {
	MsgType  string          `json:"msgtype"`
	Markdown webhookMarkdown `json:"markdown"`
}

type webhookMarkdown struct {
	Content string `json:"content"`
}

type webhookResult struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Deliver posts the rendered digest. Any transport error, non-200
// status, or non-zero errcode in the response body is a failed
// delivery.
func (w *Webhook) Deliver(ctx context.Context, digest domain.Digest) error {
	payload := webhookPayload{
		MsgType:  "markdown",
		Markdown: webhookMarkdown{Content: BuildMarkdown(digest)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.NotifierError{Channel: "webhook", Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &domain.NotifierError{Channel: "webhook", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return &domain.NotifierError{Channel: "webhook", Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.NotifierError{Channel: "webhook", Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}

	var result webhookResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &domain.NotifierError{Channel: "webhook", Err: fmt.Errorf("decode response: %w", err)}
	}
	if result.ErrCode != 0 {
		return &domain.NotifierError{
			Channel: "webhook",
			Err:     fmt.Errorf("remote rejected message: errcode=%d errmsg=%s", result.ErrCode, result.ErrMsg),
		}
	}

	w.logger.Info("digest delivered", "articles", len(digest.Articles))
	return nil
}

func (w *Webhook) Channel() string { return "webhook" }
