package domain

import "time"

// DepthBand reports the liquidity available within a price band around spot.
type DepthBand struct {
	Bps    int     // band half-width in basis points (100 = ±1%)
	Amount float64 // quote-currency liquidity inside the band
}

// MarketSnapshot is the read-only view of market and protocol state produced
// on a fixed cadence by the collector. Every downstream component (PID
// controller, buyback strategy, circuit breaker) consumes the same snapshot,
// so all checks within one cycle see consistent data.
type MarketSnapshot struct {
	Timestamp time.Time

	// Oracle consensus.
	Price             float64
	PriceConfidence   float64
	OracleDivergence  float64 // bps across live sources
	OracleLiveSources int
	Samples           []PriceSample

	// Protocol state.
	FloorPrice        float64
	PriceRatio        float64 // Price / FloorPrice
	TotalSupply       float64
	CirculatingSupply float64
	Supply24hAgo      float64
	StakedSupply      float64
	FloorLiquidity    float64
	DailyBuybackUsed  float64
	EmergencyPaused   bool
	LastDecayAt       time.Time

	// Rolling market statistics.
	Volume24h       float64
	AvgVolume7d     float64
	VolumeChangePct float64
	Volatility1h    float64 // stddev of 1-minute returns over the window
	Liquidity1hAgo  float64

	// DEX liquidity.
	SpotPrice     float64
	PoolLiquidity float64
	DepthBands    []DepthBand
}

// DepthAt returns the liquidity inside the band with the given half-width,
// or zero when the band was not sampled.
func (s MarketSnapshot) DepthAt(bps int) float64 {
	for _, b := range s.DepthBands {
		if b.Bps == bps {
			return b.Amount
		}
	}
	return 0
}

// TotalDepth sums liquidity across all sampled bands.
func (s MarketSnapshot) TotalDepth() float64 {
	var total float64
	for _, b := range s.DepthBands {
		total += b.Amount
	}
	return total
}
