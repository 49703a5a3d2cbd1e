// Package oracle aggregates price feeds from independent sources into a
// confidence-weighted consensus price, and reports per-source health for the
// circuit breaker.
package oracle

import (
	"context"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// FeedSource is one independent price feed. Fetch must respect the context
// deadline; the aggregator gives each source its own timeout so a dead
// source cannot block the others.
type FeedSource interface {
	// Name returns the stable source identifier used in samples and health
	// reports.
	Name() string
	// Fetch returns the source's latest sample. Implementations return an
	// error for transport failures; validity (zero price, staleness) is
	// judged by the aggregator.
	Fetch(ctx context.Context) (domain.PriceSample, error)
	// MaxStaleness is the sample-age bound for this source class. On-chain
	// push oracles tolerate tens of seconds; HTTP pull feeds a few minutes.
	MaxStaleness() time.Duration
}
