package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/twistlabs/guardian/internal/crypto"
	"github.com/twistlabs/guardian/internal/domain"
)

// WebhookSender posts every alert as JSON to a generic HTTP endpoint, for
// downstream systems the other channels do not cover. The dedup key rides in
// a header so receivers can fold repeats without parsing the body.
type WebhookSender struct {
	url    string
	signer *crypto.WebhookSigner
	client *http.Client
}

// NewWebhookSender creates a sender for the given endpoint. The secret, if
// set, HMAC-signs each delivery.
func NewWebhookSender(url, secret string) *WebhookSender {
	s := &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if secret != "" {
		s.signer = crypto.NewWebhookSigner(secret)
	}
	return s
}

type webhookPayload struct {
	ID        string            `json:"id"`
	Severity  string            `json:"severity"`
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Send posts the alert.
func (w *WebhookSender) Send(ctx context.Context, alert domain.Alert) error {
	body, err := json.Marshal(webhookPayload{
		ID:        alert.ID,
		Severity:  alert.Severity.String(),
		Type:      alert.Type,
		Message:   alert.Message,
		Metadata:  alert.Metadata,
		CreatedAt: alert.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dedup-Key", alert.DedupKey)
	if w.signer != nil {
		for k, v := range w.signer.Headers(body) {
			req.Header.Set(k, v)
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}
