// Package broadcast posts human-readable activity messages to external
// channels: a chat webhook for immediate messages and a persisted outbox
// for social posts, so a slow or failing external service never blocks
// the domain event that triggered it.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Embed is a link card attached to a webhook message.
type Embed struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Webhook posts messages to a single chat webhook URL. A nil or
// unconfigured Webhook drops messages silently so callers do not need
// to branch on configuration.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Enabled() bool {
	return w != nil && w.url != ""
}

// Send posts content with optional link embeds. Fire-and-forget: a
// non-success response is returned as an error for the caller to log,
// never retried inline.
func (w *Webhook) Send(ctx context.Context, content string, embeds []Embed) error {
	if !w.Enabled() {
		return nil
	}

	payload := map[string]any{"content": content}
	if len(embeds) > 0 {
		payload["embeds"] = embeds
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}

// ViewAssetEmbed links a message to the asset's public page.
func ViewAssetEmbed(siteURL, assetID, title string) Embed {
	return Embed{
		Title: title,
		URL:   siteURL + "/assets/" + assetID,
	}
}
