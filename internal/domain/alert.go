package domain

import "time"

// Alert is a severity-classified operator notification. Alerts are created by
// any component, optionally acknowledged, and pruned after a retention
// window.
type Alert struct {
	ID           string
	Severity     Severity
	Type         string
	Message      string
	DedupKey     string
	Metadata     map[string]string
	CreatedAt    time.Time
	Acknowledged bool
	AckedBy      string
	AckedAt      *time.Time
}

// Well-known alert types. Components may emit additional types; these are the
// ones the guardian itself produces.
const (
	AlertCircuitBreakerTrip  = "circuit_breaker_trip"
	AlertCircuitBreakerReset = "circuit_breaker_reset"
	AlertBuybackExecuted     = "buyback_executed"
	AlertSupplyAdjustment    = "supply_adjustment"
	AlertFraudDetected       = "fraud_detected"
	AlertBotConflict         = "bot_conflict"
	AlertMonitoringError     = "monitoring_error"
	AlertOracleDegraded      = "oracle_degraded"
)
