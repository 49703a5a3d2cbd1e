package domain

import "time"

// ProtocolState is the read-only view of on-chain program state consumed
// from the execution gateway. The guardian never mutates it directly.
type ProtocolState struct {
	FloorPrice        float64
	TotalSupply       float64
	CirculatingSupply float64
	StakedSupply      float64
	DailyBuybackUsed  float64
	EmergencyPaused   bool
	LastDecayAt       time.Time
	FloorLiquidity    float64
}

// PoolState is the DEX liquidity view for the token's primary pool.
type PoolState struct {
	SpotPrice  float64
	Liquidity  float64
	DepthBands []DepthBand
	ObservedAt time.Time
}

// SwapQuote estimates the outcome of swapping amountIn through the pool.
type SwapQuote struct {
	AmountIn       float64
	EstimatedOut   float64
	PriceImpactBps float64
}

// PoolTick is one trade observed on the pool's websocket stream, used to
// maintain the rolling volume window.
type PoolTick struct {
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// BuybackRequest is submitted to the execution gateway when the strategy
// triggers.
type BuybackRequest struct {
	Amount         float64
	MaxSlippageBps float64
	Reason         string
}

// SupplyRequest asks the gateway to mint or burn against the supply PID
// proposal.
type SupplyRequest struct {
	Type   AdjustmentType
	Amount float64
	Reason string
}

// BreakerStateChange notifies the gateway of a trip or reset, with the
// machine-readable reason operators see in alerts.
type BreakerStateChange struct {
	Active   bool
	Severity Severity
	Reason   string
}
