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

const pagerdutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutySender delivers alerts as incidents via the PagerDuty Events API
// v2. The alert's dedup key maps onto PagerDuty's dedup_key, so repeated
// triggers fold into one incident and an acknowledge resolves it.
type PagerDutySender struct {
	routingKey string
	apiURL     string
	client     *http.Client
}

// NewPagerDutySender creates a sender for the given integration routing key.
func NewPagerDutySender(routingKey string) *PagerDutySender {
	return &PagerDutySender{
		routingKey: routingKey,
		apiURL:     pagerdutyEventsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type pagerdutyEvent struct {
	RoutingKey  string           `json:"routing_key"`
	EventAction string           `json:"event_action"`
	DedupKey    string           `json:"dedup_key,omitempty"`
	Payload     *pagerdutyDetail `json:"payload,omitempty"`
}

type pagerdutyDetail struct {
	Summary       string            `json:"summary"`
	Source        string            `json:"source"`
	Severity      string            `json:"severity"`
	CustomDetails map[string]string `json:"custom_details,omitempty"`
}

// Send triggers (or re-triggers) an incident for the alert.
func (p *PagerDutySender) Send(ctx context.Context, alert domain.Alert) error {
	event := pagerdutyEvent{
		RoutingKey:  p.routingKey,
		EventAction: "trigger",
		DedupKey:    alert.DedupKey,
		Payload: &pagerdutyDetail{
			Summary:       fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.Type, alert.Message),
			Source:        "guardian",
			Severity:      pagerdutySeverity(alert.Severity),
			CustomDetails: alert.Metadata,
		},
	}
	return p.post(ctx, event)
}

// Resolve closes the incident opened under the dedup key.
func (p *PagerDutySender) Resolve(ctx context.Context, dedupKey string) error {
	return p.post(ctx, pagerdutyEvent{
		RoutingKey:  p.routingKey,
		EventAction: "resolve",
		DedupKey:    dedupKey,
	})
}

func (p *PagerDutySender) post(ctx context.Context, event pagerdutyEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pagerduty: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pagerduty: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// pagerdutySeverity maps internal severities onto the Events API vocabulary.
func pagerdutySeverity(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "critical"
	case domain.SeverityHigh:
		return "error"
	case domain.SeverityMedium:
		return "warning"
	default:
		return "info"
	}
}

// Name returns the sender identifier.
func (p *PagerDutySender) Name() string {
	return "pagerduty"
}
