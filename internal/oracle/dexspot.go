package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/twistlabs/guardian/internal/chain"
	"github.com/twistlabs/guardian/internal/domain"
)

// dexStaleness tolerates a couple of minutes: pool observations lag trades
// by the gateway's indexing interval.
const dexStaleness = 2 * time.Minute

// dexConfidenceBps approximates the spot observation's confidence interval
// as a fixed fraction of price; DEX spot has no native confidence metric.
const dexConfidenceBps = 30.0

// DexSpotSource derives a price sample from the primary pool's spot price,
// giving the consensus a third source class independent of the push oracles.
type DexSpotSource struct {
	dex *chain.DexClient
}

// NewDexSpotSource creates a source over the given DEX client.
func NewDexSpotSource(dex *chain.DexClient) *DexSpotSource {
	return &DexSpotSource{dex: dex}
}

// Name returns the source identifier.
func (d *DexSpotSource) Name() string { return "dex_spot" }

// MaxStaleness returns the staleness bound for this source class.
func (d *DexSpotSource) MaxStaleness() time.Duration { return dexStaleness }

// Fetch reads the pool state and converts spot into a sample.
func (d *DexSpotSource) Fetch(ctx context.Context) (domain.PriceSample, error) {
	pool, err := d.dex.GetPoolState(ctx)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("dex_spot: %w", err)
	}

	return domain.PriceSample{
		Source:     d.Name(),
		Price:      pool.SpotPrice,
		Confidence: pool.SpotPrice * dexConfidenceBps / 10_000,
		Timestamp:  pool.ObservedAt,
	}, nil
}

// Compile-time interface check.
var _ FeedSource = (*DexSpotSource)(nil)
