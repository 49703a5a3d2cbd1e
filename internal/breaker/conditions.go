// Package breaker implements the top-level safety state machine: stateless
// trip conditions evaluated against each MarketSnapshot, the tripped-state
// machine with per-severity cooldowns, and the monitor loop that applies
// restrictions through the gateway.
package breaker

import (
	"fmt"
	"math"

	"github.com/twistlabs/guardian/internal/domain"
)

// Condition names. External signals (fraud escalation, monitoring errors)
// arrive under their own names via Machine.TripExternal.
const (
	CondPriceVolatility  = "price_volatility"
	CondVolumeSpike      = "volume_spike"
	CondSupplyChange     = "supply_change"
	CondOracleDivergence = "oracle_divergence"
	CondLiquidityDrain   = "liquidity_drain"
	CondOracleOutage     = "oracle_outage"
	CondMonitoringError  = "monitoring_error"
	CondManualTrigger    = "manual_trigger"
)

// ConditionConfig holds the trip thresholds. Each graded condition escalates
// at multiples of its base threshold.
type ConditionConfig struct {
	VolatilityThresholdBps float64
	VolumeSpikeMult        float64
	SupplyChangeBps        float64
	OracleDivergenceBps    float64 // looser than the aggregator's gate: alarm, not veto
	LiquidityDrainBps      float64
	MinLiveSources         int
}

// DefaultConditionConfig returns the production thresholds.
func DefaultConditionConfig() ConditionConfig {
	return ConditionConfig{
		VolatilityThresholdBps: 5000,
		VolumeSpikeMult:        10,
		SupplyChangeBps:        200,
		OracleDivergenceBps:    500,
		LiquidityDrainBps:      2000,
		MinLiveSources:         2,
	}
}

// Evaluator runs the fixed battery of trip conditions. Each check is a pure
// function of the snapshot; a check whose inputs are missing reports
// not-tripped rather than aborting the rest.
type Evaluator struct {
	cfg ConditionConfig
}

// NewEvaluator creates an evaluator with the given thresholds.
func NewEvaluator(cfg ConditionConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// EvaluateAll runs every condition against the snapshot.
func (e *Evaluator) EvaluateAll(snap domain.MarketSnapshot) []domain.TripResult {
	return []domain.TripResult{
		e.CheckPriceVolatility(snap),
		e.CheckVolumeSpike(snap),
		e.CheckSupplyChange(snap),
		e.CheckOracleDivergence(snap),
		e.CheckLiquidityDrain(snap),
		e.CheckOracleOutage(snap),
	}
}

// gradeAt maps how far a measurement exceeds its threshold onto a severity:
// medium past 1x, high past 2x, critical past the given top multiple.
func gradeAt(value, threshold, topMult float64) (domain.Severity, bool) {
	if threshold <= 0 || value <= threshold {
		return domain.SeverityLow, false
	}
	switch {
	case value > threshold*topMult:
		return domain.SeverityCritical, true
	case value > threshold*2:
		return domain.SeverityHigh, true
	default:
		return domain.SeverityMedium, true
	}
}

// CheckPriceVolatility grades the 1h return volatility.
func (e *Evaluator) CheckPriceVolatility(snap domain.MarketSnapshot) domain.TripResult {
	res := domain.TripResult{Condition: CondPriceVolatility}

	volBps := snap.Volatility1h * 10_000
	sev, tripped := gradeAt(volBps, e.cfg.VolatilityThresholdBps, 3)
	if !tripped {
		return res
	}
	res.Tripped = true
	res.Severity = sev
	res.Message = fmt.Sprintf("1h volatility %.0f bps exceeds %.0f bps", volBps, e.cfg.VolatilityThresholdBps)
	return res
}

// CheckVolumeSpike grades 24h volume against the 7-day daily average.
func (e *Evaluator) CheckVolumeSpike(snap domain.MarketSnapshot) domain.TripResult {
	res := domain.TripResult{Condition: CondVolumeSpike}
	if snap.AvgVolume7d <= 0 {
		return res
	}

	ratio := snap.Volume24h / snap.AvgVolume7d
	sev, tripped := gradeAt(ratio, e.cfg.VolumeSpikeMult, 5)
	if !tripped {
		return res
	}
	res.Tripped = true
	res.Severity = sev
	res.Message = fmt.Sprintf("24h volume %.1fx the weekly average", ratio)
	return res
}

// CheckSupplyChange grades the day-over-day circulating-supply delta.
func (e *Evaluator) CheckSupplyChange(snap domain.MarketSnapshot) domain.TripResult {
	res := domain.TripResult{Condition: CondSupplyChange}
	if snap.Supply24hAgo <= 0 {
		return res
	}

	changeBps := math.Abs(snap.CirculatingSupply-snap.Supply24hAgo) / snap.Supply24hAgo * 10_000
	sev, tripped := gradeAt(changeBps, e.cfg.SupplyChangeBps, 3)
	if !tripped {
		return res
	}
	res.Tripped = true
	res.Severity = sev
	res.Message = fmt.Sprintf("supply moved %.0f bps in 24h", changeBps)
	return res
}

// CheckOracleDivergence trips critical when cross-source divergence exceeds
// the alarm bound. No grading: a diverged oracle poisons everything priced.
func (e *Evaluator) CheckOracleDivergence(snap domain.MarketSnapshot) domain.TripResult {
	res := domain.TripResult{Condition: CondOracleDivergence}
	if snap.OracleDivergence <= e.cfg.OracleDivergenceBps {
		return res
	}
	res.Tripped = true
	res.Severity = domain.SeverityCritical
	res.Message = fmt.Sprintf("oracle divergence %.0f bps exceeds %.0f bps", snap.OracleDivergence, e.cfg.OracleDivergenceBps)
	return res
}

// CheckLiquidityDrain grades the 1h drop in pool liquidity.
func (e *Evaluator) CheckLiquidityDrain(snap domain.MarketSnapshot) domain.TripResult {
	res := domain.TripResult{Condition: CondLiquidityDrain}
	if snap.Liquidity1hAgo <= 0 || snap.PoolLiquidity >= snap.Liquidity1hAgo {
		return res
	}

	drainBps := (snap.Liquidity1hAgo - snap.PoolLiquidity) / snap.Liquidity1hAgo * 10_000
	sev, tripped := gradeAt(drainBps, e.cfg.LiquidityDrainBps, 3)
	if !tripped {
		return res
	}
	res.Tripped = true
	res.Severity = sev
	res.Message = fmt.Sprintf("pool liquidity drained %.0f bps in 1h", drainBps)
	return res
}

// CheckOracleOutage trips when fewer sources than the quorum are live.
// Losing the whole oracle layer is its own critical condition, not a thrown
// error.
func (e *Evaluator) CheckOracleOutage(snap domain.MarketSnapshot) domain.TripResult {
	res := domain.TripResult{Condition: CondOracleOutage}
	if snap.OracleLiveSources >= e.cfg.MinLiveSources {
		return res
	}
	res.Tripped = true
	if snap.OracleLiveSources == 0 {
		res.Severity = domain.SeverityCritical
		res.Message = "all oracle sources down"
	} else {
		res.Severity = domain.SeverityHigh
		res.Message = fmt.Sprintf("only %d oracle source(s) live, quorum is %d", snap.OracleLiveSources, e.cfg.MinLiveSources)
	}
	return res
}
