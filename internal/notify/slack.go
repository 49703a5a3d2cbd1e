package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// SlackSender delivers alerts to a Slack channel via an incoming webhook.
type SlackSender struct {
	webhookURL string
	client     *http.Client
}

// NewSlackSender creates a sender for the given incoming-webhook URL.
func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Send posts the alert to the webhook, color-coded by severity.
func (s *SlackSender) Send(ctx context.Context, alert domain.Alert) error {
	fields := make([]slackField, 0, len(alert.Metadata))
	for k, v := range alert.Metadata {
		fields = append(fields, slackField{Title: k, Value: v, Short: true})
	}

	msg := slackMessage{
		Text: fmt.Sprintf("*%s* `%s`\n%s", alert.Severity, alert.Type, alert.Message),
		Attachments: []slackAttachment{
			{Color: slackColor(alert.Severity), Fields: fields},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func slackColor(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "#e01e5a"
	case domain.SeverityHigh:
		return "#e8912d"
	case domain.SeverityMedium:
		return "#ecb22e"
	default:
		return "#2eb67d"
	}
}

// Name returns the sender identifier.
func (s *SlackSender) Name() string {
	return "slack"
}
