package domain

import "time"

// TripResult is the outcome of evaluating one named trip condition against a
// MarketSnapshot. Conditions are stateless; all state lives in the breaker.
type TripResult struct {
	Condition string
	Tripped   bool
	Severity  Severity
	Message   string
}

// TripRecord is one entry in the breaker's trip history.
type TripRecord struct {
	Condition     string
	Severity      Severity
	Message       string
	TrippedAt     time.Time
	ResetDeadline time.Time
}

// Restrictions is the action set applied while the breaker is tripped. The
// zero value means unrestricted trading.
type Restrictions struct {
	TradingPaused      bool
	BuybackDisabled    bool
	StakingDisabled    bool
	EnhancedMonitoring bool
	MaxTransactionSize float64 // 0 = no cap
}

// BreakerStatus is a read-only view of the circuit breaker state machine.
type BreakerStatus struct {
	Active        bool
	Severity      Severity
	Condition     string
	TrippedAt     time.Time
	ResetDeadline time.Time
	TripCount     int64
	Restrictions  Restrictions
	History       []TripRecord
}

// AllowsBuyback reports whether buybacks may execute under the current state.
func (b BreakerStatus) AllowsBuyback() bool {
	return !b.Active || !b.Restrictions.BuybackDisabled
}

// AllowsSupplyAdjustment reports whether mint/burn adjustments may execute.
// Supply adjustments are held back at high severity and above.
func (b BreakerStatus) AllowsSupplyAdjustment() bool {
	return !b.Active || b.Severity < SeverityHigh
}
