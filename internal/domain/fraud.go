package domain

import "time"

// StakeEvent is one stake or unstake action from the behavioral event stream.
type StakeEvent struct {
	Subject            string // account/user identifier
	Amount             float64
	CounterpartyWallet string // bridged EVM wallet, 0x-prefixed
	IP                 string
	Unstake            bool
	Timestamp          time.Time
}

// ClickEvent is one tracked link click from the behavioral event stream.
type ClickEvent struct {
	Subject   string
	LinkID    string
	IP        string
	Country   string
	UserAgent string
	Referrer  string
	Timestamp time.Time
}

// FraudIndicator is a single fired check with its own severity and
// confidence. Confidence is 0-100.
type FraudIndicator struct {
	Type       string
	Severity   Severity
	Confidence float64
	Details    map[string]any
}

// Recommendation is the engine's verdict for an analyzed event.
type Recommendation string

const (
	RecommendationAllow  Recommendation = "allow"
	RecommendationReview Recommendation = "review"
	RecommendationBlock  Recommendation = "block"
)

// FraudAnalysis is the aggregate result for one analyzed event. Score is the
// severity-weighted, confidence-scaled combination of all fired indicators,
// clamped to [0,100].
type FraudAnalysis struct {
	Subjects       []string
	Score          float64
	Indicators     []FraudIndicator
	Recommendation Recommendation
	AnalyzedAt     time.Time
}

// MaxSeverity returns the highest severity among fired indicators, or
// SeverityLow when none fired.
func (a FraudAnalysis) MaxSeverity() Severity {
	max := SeverityLow
	for _, ind := range a.Indicators {
		if ind.Severity > max {
			max = ind.Severity
		}
	}
	return max
}

// FraudCaseStatus tracks a queued review case through its lifecycle.
type FraudCaseStatus string

const (
	FraudCaseOpen      FraudCaseStatus = "open"
	FraudCaseConfirmed FraudCaseStatus = "confirmed"
	FraudCaseDismissed FraudCaseStatus = "dismissed"
)

// FraudCase is a review-queue entry created when the engine recommends
// review rather than an immediate block.
type FraudCase struct {
	ID         string
	Subject    string
	Score      float64
	Indicators []FraudIndicator
	Status     FraudCaseStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy string
}
