package domain

import "time"

// PriceSample is a single observation from one oracle feed. Samples are
// immutable once fetched; a rejected sample is dropped, never mutated.
type PriceSample struct {
	Source     string
	Price      float64
	Confidence float64 // confidence interval width, same unit as Price
	Timestamp  time.Time
}

// AggregatedPrice is the confidence-weighted consensus over at least two
// surviving samples. Divergence across the contributing samples is guaranteed
// to be within the aggregator's configured bound.
type AggregatedPrice struct {
	Price      float64
	Confidence float64
	Samples    []PriceSample
	Timestamp  time.Time
}

// DivergenceBps returns the max/min spread across the contributing samples in
// basis points of the minimum price.
func (a AggregatedPrice) DivergenceBps() float64 {
	if len(a.Samples) < 2 {
		return 0
	}
	min, max := a.Samples[0].Price, a.Samples[0].Price
	for _, s := range a.Samples[1:] {
		if s.Price < min {
			min = s.Price
		}
		if s.Price > max {
			max = s.Price
		}
	}
	if min <= 0 {
		return 0
	}
	return (max - min) / min * 10_000
}

// SourceHealth describes one feed source for the oracle health report.
type SourceHealth struct {
	Source    string
	Live      bool
	Stale     bool
	LastPrice float64
	Age       time.Duration
	Err       string
}

// OracleHealth is the per-cycle health report consumed by the circuit
// breaker's oracle-divergence trip condition.
type OracleHealth struct {
	Sources       []SourceHealth
	LiveCount     int
	DivergenceBps float64
	CheckedAt     time.Time
}
