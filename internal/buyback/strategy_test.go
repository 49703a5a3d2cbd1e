package buyback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistlabs/guardian/internal/domain"
)

// discountedSnapshot returns a snapshot with price at the given ratio to a
// $0.05 floor, healthy oracle, normal volume, and a deep book.
func discountedSnapshot(ratio float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Timestamp:        time.Now(),
		Price:            0.05 * ratio,
		FloorPrice:       0.05,
		PriceRatio:       ratio,
		FloorLiquidity:   1_000_000,
		OracleDivergence: 50,
		Volume24h:        50_000,
		AvgVolume7d:      50_000,
		DepthBands: []domain.DepthBand{
			{Bps: 100, Amount: 20_000},
			{Bps: 500, Amount: 30_000},
		},
	}
}

func TestShouldTriggerRequiresAllConditions(t *testing.T) {
	s := NewStrategy(DefaultStrategyConfig())

	assert.True(t, s.ShouldTrigger(discountedSnapshot(0.96)))

	// Price at or above the threshold ratio.
	assert.False(t, s.ShouldTrigger(discountedSnapshot(0.98)))

	// Thin book vetoes even at a deep discount.
	thin := discountedSnapshot(0.90)
	thin.DepthBands = []domain.DepthBand{{Bps: 100, Amount: 500}}
	assert.False(t, s.ShouldTrigger(thin))

	// Diverged oracle vetoes: price-dependent actions need the strict gate.
	diverged := discountedSnapshot(0.90)
	diverged.OracleDivergence = 350
	assert.False(t, s.ShouldTrigger(diverged))

	// Degraded snapshot carries no price at all.
	degraded := discountedSnapshot(0.90)
	degraded.Price = 0
	assert.False(t, s.ShouldTrigger(degraded))
}

func TestSizeNeverExceedsHardCaps(t *testing.T) {
	cfg := DefaultStrategyConfig()
	s := NewStrategy(cfg)

	// Deep discount, aggressive mode, double volume: every multiplier active.
	snap := discountedSnapshot(0.80)
	snap.Volume24h = 4 * snap.AvgVolume7d

	amount := s.Size(snap, 1_000_000)
	assert.LessOrEqual(t, amount, snap.FloorLiquidity*cfg.LiquidityCapFrac)
	assert.LessOrEqual(t, amount, cfg.MaxAmount)

	// Remaining budget binds when it is the smallest cap.
	assert.LessOrEqual(t, s.Size(snap, 1_500), 1_500.0)
}

func TestSizeAggressiveModeDoubles(t *testing.T) {
	snap := discountedSnapshot(0.90)

	aggressive := DefaultStrategyConfig()
	aggressive.AggressiveRatio = 0.95 // 0.90 qualifies

	passive := DefaultStrategyConfig()
	passive.AggressiveRatio = 0.85 // 0.90 does not qualify

	a := NewStrategy(aggressive).Size(snap, 1_000_000)
	p := NewStrategy(passive).Size(snap, 1_000_000)

	require.Greater(t, p, 0.0)
	assert.InDelta(t, 2.0, a/p, 0.01)
}

func TestSizeGrowsSublinearlyWithVolume(t *testing.T) {
	s := NewStrategy(DefaultStrategyConfig())

	quiet := discountedSnapshot(0.96)
	busy := discountedSnapshot(0.96)
	busy.Volume24h = 4 * busy.AvgVolume7d

	q := s.Size(quiet, 1_000_000)
	b := s.Size(busy, 1_000_000)

	require.Greater(t, q, 0.0)
	// 4x the volume yields only 2x the size (sqrt dampening).
	assert.InDelta(t, 2.0, b/q, 0.05)
}

func TestSizeReturnsZeroBelowMinimum(t *testing.T) {
	s := NewStrategy(DefaultStrategyConfig())
	assert.Zero(t, s.Size(discountedSnapshot(0.96), 50))
}

func TestSizeRoundsToCoarseDenomination(t *testing.T) {
	cfg := DefaultStrategyConfig()
	s := NewStrategy(cfg)

	amount := s.Size(discountedSnapshot(0.96), 1_000_000)
	require.Greater(t, amount, 0.0)
	assert.Zero(t, int64(amount)%int64(cfg.RoundTo))
}

func TestMaxSlippageScalesWithDiscountAndCaps(t *testing.T) {
	cfg := DefaultStrategyConfig()
	s := NewStrategy(cfg)

	// No discount: base 1%.
	assert.InDelta(t, cfg.BaseSlippageBps, s.MaxSlippageBps(discountedSnapshot(0.98)), 0.001)

	// Moderate discount widens the bound.
	shallow := s.MaxSlippageBps(discountedSnapshot(0.96))
	deep := s.MaxSlippageBps(discountedSnapshot(0.90))
	assert.Greater(t, deep, shallow)

	// Collapse never widens past the 3% cap.
	assert.LessOrEqual(t, s.MaxSlippageBps(discountedSnapshot(0.50)), cfg.MaxSlippageBps)
}

func TestMaxSlippageHalvedOnThinBook(t *testing.T) {
	s := NewStrategy(DefaultStrategyConfig())

	deepBook := discountedSnapshot(0.96)
	thinBook := discountedSnapshot(0.96)
	thinBook.DepthBands = []domain.DepthBand{{Bps: 100, Amount: 12_000}}

	assert.InDelta(t, s.MaxSlippageBps(deepBook)/2, s.MaxSlippageBps(thinBook), 0.001)
}

func TestIsMarketFavorableVetoes(t *testing.T) {
	s := NewStrategy(DefaultStrategyConfig())
	midday := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)

	ok, _ := s.IsMarketFavorable(discountedSnapshot(0.96), midday)
	assert.True(t, ok)

	// Abnormal volume spike reads as possible wash trading.
	spike := discountedSnapshot(0.96)
	spike.Volume24h = 3.5 * spike.AvgVolume7d
	ok, reason := s.IsMarketFavorable(spike, midday)
	assert.False(t, ok)
	assert.Contains(t, reason, "spike")

	// Near-zero volume reads as thin-market manipulation risk.
	thin := discountedSnapshot(0.96)
	thin.Volume24h = 0.05 * thin.AvgVolume7d
	ok, _ = s.IsMarketFavorable(thin, midday)
	assert.False(t, ok)

	// Known low-liquidity hours.
	ok, _ = s.IsMarketFavorable(discountedSnapshot(0.96), time.Date(2026, 8, 20, 4, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestDecideCombinesTriggerAndSizing(t *testing.T) {
	s := NewStrategy(DefaultStrategyConfig())

	decision := s.Decide(discountedSnapshot(0.98), 1_000_000)
	assert.False(t, decision.Trigger)

	decision = s.Decide(discountedSnapshot(0.94), 1_000_000)
	require.True(t, decision.Trigger)
	assert.Greater(t, decision.Amount, 0.0)
	assert.Greater(t, decision.MaxSlippageBps, 0.0)
}
