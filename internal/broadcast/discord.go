package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// WebhookClient talks to a Discord incoming webhook. Sends use ?wait=true so
// Discord returns the created message, whose id we need for the later edit.
type WebhookClient struct {
	url  string
	http *http.Client
}

func NewWebhookClient(url string) (*WebhookClient, error) {
	if url == "" {
		return nil, errors.New("broadcast: discord webhook url is required")
	}
	return &WebhookClient{
		url:  url,
		http: &http.Client{Timeout: sendTimeout},
	}, nil
}

type webhookPayload struct {
	Content string `json:"content"`
}

type webhookMessage struct {
	ID string `json:"id"`
}

func (c *WebhookClient) Send(ctx context.Context, content string) (string, error) {
	body, err := json.Marshal(webhookPayload{Content: content})
	if err != nil {
		return "", fmt.Errorf("broadcast: encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"?wait=true", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("broadcast: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast: discord send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast: discord send: unexpected status %d", resp.StatusCode)
	}

	var msg webhookMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&msg); err != nil {
		return "", fmt.Errorf("broadcast: decode webhook response: %w", err)
	}
	if msg.ID == "" {
		return "", errors.New("broadcast: discord send: response missing message id")
	}
	return msg.ID, nil
}

func (c *WebhookClient) Edit(ctx context.Context, messageID, content string) error {
	body, err := json.Marshal(webhookPayload{Content: content})
	if err != nil {
		return fmt.Errorf("broadcast: encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.url+"/messages/"+messageID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("broadcast: build webhook edit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("broadcast: discord edit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("broadcast: discord edit: unexpected status %d", resp.StatusCode)
	}
	return nil
}
