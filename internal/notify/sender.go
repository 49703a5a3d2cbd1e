// Package notify provides the notification channels the alert manager fans
// out to (PagerDuty, Slack, email, generic webhook). Each channel send is
// independent and best-effort; failures are logged by the caller and never
// block other channels.
package notify

import (
	"context"

	"github.com/twistlabs/guardian/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers one alert to the channel.
	Send(ctx context.Context, alert domain.Alert) error
	// Name returns a human-readable identifier for the sender (e.g. "slack").
	Name() string
}

// Resolver is implemented by channels that track open incidents keyed by the
// alert's dedup key and support closing them when an operator acknowledges.
type Resolver interface {
	Resolve(ctx context.Context, dedupKey string) error
}
