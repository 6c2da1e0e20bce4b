package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// Webhook posts actions to an HTTP endpoint that owns cluster access.
type Webhook struct {
	url    string
	client *http.Client
	header http.Header
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient overrides the default client (10s timeout).
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) WebhookOption {
	return func(w *Webhook) {
		w.header.Add(key, value)
	}
}

// NewWebhook creates a webhook remediator for url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Apply sends the action as JSON. Any non-2xx status is an error.
func (w *Webhook) Apply(ctx context.Context, action domain.Action) error {
	if !action.Kind.Valid() {
		return fmt.Errorf("unsupported remedy type %q", action.Kind)
	}
	body, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, vs := range w.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("remediation webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remediation webhook returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}
