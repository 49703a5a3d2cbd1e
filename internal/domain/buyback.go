package domain

// BuybackDecision is the strategy's per-cycle verdict. Amount and slippage
// are only meaningful when Trigger is true.
type BuybackDecision struct {
	Trigger        bool
	Amount         float64
	MaxSlippageBps float64
	Reason         string
}
