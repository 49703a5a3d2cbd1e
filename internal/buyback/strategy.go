// Package buyback decides whether, how large, and at what slippage bound a
// protective floor-defense buyback should execute, and runs the agent that
// submits the resulting orders.
package buyback

import (
	"fmt"
	"math"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// StrategyConfig holds the sizing and veto thresholds.
type StrategyConfig struct {
	TriggerRatio         float64 // price/floor below which buybacks trigger
	AggressiveRatio      float64 // deeper threshold activating aggressive mode
	AggressiveMultiplier float64

	MinLiquidityDepth float64 // minimum total depth to act at all
	MaxDivergenceBps  float64 // oracle gate, stricter than the breaker's alarm

	MinAmount        float64
	MaxAmount        float64
	BaseFrac         float64 // base order size as fraction of floor liquidity
	LiquidityCapFrac float64 // hard cap as fraction of floor liquidity
	RoundTo          float64 // coarse denomination for order sizes

	BaseSlippageBps float64
	MaxSlippageBps  float64

	// Market-favorability vetoes.
	VolumeSpikeMult float64 // 24h volume above this multiple of 7d average
	MinVolumeFrac   float64 // 24h volume below this fraction of 7d average
	QuietHoursUTC   []int   // hours with known thin liquidity
}

// DefaultStrategyConfig returns the production thresholds.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		TriggerRatio:         0.97,
		AggressiveRatio:      0.95,
		AggressiveMultiplier: 2.0,
		MinLiquidityDepth:    10_000,
		MaxDivergenceBps:     200,
		MinAmount:            100,
		MaxAmount:            50_000,
		BaseFrac:             0.0025,
		LiquidityCapFrac:     0.02,
		RoundTo:              10,
		BaseSlippageBps:      100,
		MaxSlippageBps:       300,
		VolumeSpikeMult:      3.0,
		MinVolumeFrac:        0.1,
		QuietHoursUTC:        []int{3, 4, 5},
	}
}

// Strategy is a set of pure decision functions over a MarketSnapshot. It
// holds no mutable state; budget accounting lives in the ledger.
type Strategy struct {
	cfg StrategyConfig
}

// NewStrategy creates a strategy with the given thresholds.
func NewStrategy(cfg StrategyConfig) *Strategy {
	return &Strategy{cfg: cfg}
}

// ShouldTrigger reports whether a buyback is warranted. All three conditions
// must hold; any single failure vetoes.
func (s *Strategy) ShouldTrigger(snap domain.MarketSnapshot) bool {
	if snap.Price <= 0 || snap.PriceRatio <= 0 {
		return false
	}
	if snap.PriceRatio >= s.cfg.TriggerRatio {
		return false
	}
	if snap.TotalDepth() < s.cfg.MinLiquidityDepth {
		return false
	}
	if snap.OracleDivergence > s.cfg.MaxDivergenceBps {
		return false
	}
	return true
}

// discountBps measures how far price sits below the trigger threshold, in
// basis points of the threshold price.
func (s *Strategy) discountBps(snap domain.MarketSnapshot) float64 {
	threshold := snap.FloorPrice * s.cfg.TriggerRatio
	if threshold <= 0 || snap.Price >= threshold {
		return 0
	}
	return (threshold - snap.Price) / threshold * 10_000
}

// Size computes the buyback amount for the current snapshot against the
// remaining daily budget. Returns zero when the clamped amount falls under
// the minimum order size.
func (s *Strategy) Size(snap domain.MarketSnapshot, remainingBudget float64) float64 {
	base := snap.FloorLiquidity * s.cfg.BaseFrac

	// Discount multiplier: 1x at the threshold, 3x at a 2% discount and
	// beyond.
	discount := s.discountBps(snap)
	discountMult := math.Min(1+discount/100, 3)

	// Square-root dampening keeps size sublinear in trading activity.
	volMult := 1.0
	if snap.AvgVolume7d > 0 {
		volMult = clampF(math.Sqrt(snap.Volume24h/snap.AvgVolume7d), 0.5, 2)
	}

	amount := base * discountMult * volMult

	if snap.PriceRatio > 0 && snap.PriceRatio < s.cfg.AggressiveRatio {
		amount *= s.cfg.AggressiveMultiplier
	}

	// Hard caps: per-buyback liquidity cap, configured maximum, and whatever
	// budget remains today.
	amount = math.Min(amount, snap.FloorLiquidity*s.cfg.LiquidityCapFrac)
	amount = math.Min(amount, s.cfg.MaxAmount)
	amount = math.Min(amount, remainingBudget)

	if s.cfg.RoundTo > 0 {
		amount = math.Floor(amount/s.cfg.RoundTo) * s.cfg.RoundTo
	}
	if amount < s.cfg.MinAmount {
		return 0
	}
	return amount
}

// MaxSlippageBps returns the slippage bound for the order: 1% base, widened
// with discount depth, halved on thin books, capped at 3%.
func (s *Strategy) MaxSlippageBps(snap domain.MarketSnapshot) float64 {
	slip := s.cfg.BaseSlippageBps + s.discountBps(snap)/4
	if snap.TotalDepth() < 2*s.cfg.MinLiquidityDepth {
		slip /= 2
	}
	return math.Min(slip, s.cfg.MaxSlippageBps)
}

// IsMarketFavorable vetoes execution during abnormal volume spikes (possible
// wash trading), abnormally low volume (thin-market manipulation risk), and
// known low-liquidity hours.
func (s *Strategy) IsMarketFavorable(snap domain.MarketSnapshot, now time.Time) (bool, string) {
	if snap.AvgVolume7d > 0 {
		ratio := snap.Volume24h / snap.AvgVolume7d
		if ratio > s.cfg.VolumeSpikeMult {
			return false, fmt.Sprintf("volume spike %.1fx the weekly average", ratio)
		}
		if ratio < s.cfg.MinVolumeFrac {
			return false, fmt.Sprintf("volume %.0f%% of the weekly average", ratio*100)
		}
	}
	hour := now.UTC().Hour()
	for _, h := range s.cfg.QuietHoursUTC {
		if hour == h {
			return false, fmt.Sprintf("low-liquidity hour %02d UTC", hour)
		}
	}
	return true, ""
}

// Decide combines trigger, sizing, and slippage into one decision.
func (s *Strategy) Decide(snap domain.MarketSnapshot, remainingBudget float64) domain.BuybackDecision {
	if !s.ShouldTrigger(snap) {
		return domain.BuybackDecision{Reason: "trigger conditions not met"}
	}

	amount := s.Size(snap, remainingBudget)
	if amount <= 0 {
		return domain.BuybackDecision{Reason: "sized amount below minimum"}
	}

	return domain.BuybackDecision{
		Trigger:        true,
		Amount:         amount,
		MaxSlippageBps: s.MaxSlippageBps(snap),
		Reason: fmt.Sprintf("price ratio %.4f below %.2f, discount %.0f bps",
			snap.PriceRatio, s.cfg.TriggerRatio, s.discountBps(snap)),
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
