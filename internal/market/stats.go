// Package market samples oracle, protocol, and DEX state on a fixed cadence
// and derives the rolling statistics consumed by the controller, the buyback
// strategy, and the circuit breaker.
package market

import (
	"math"
	"sync"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// pricePoint is one observation in the volatility window.
type pricePoint struct {
	price float64
	ts    time.Time
}

// volumeBucket accumulates traded volume for one hour.
type volumeBucket struct {
	hour   time.Time // truncated to the hour
	volume float64
}

// RollingStats maintains the price and volume windows behind a mutex; the
// collector's poll loop and the pool tick feed write concurrently.
type RollingStats struct {
	mu sync.Mutex

	prices      []pricePoint
	priceWindow time.Duration

	buckets      []volumeBucket
	volumeWindow time.Duration
}

// NewRollingStats creates windows sized for 1h volatility and 7d volume.
func NewRollingStats() *RollingStats {
	return &RollingStats{
		priceWindow:  time.Hour,
		volumeWindow: 7 * 24 * time.Hour,
	}
}

// AddPrice records a consensus price observation.
func (r *RollingStats) AddPrice(price float64, ts time.Time) {
	if price <= 0 || math.IsNaN(price) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prices = append(r.prices, pricePoint{price: price, ts: ts})
	r.trimPricesLocked(ts)
}

// AddVolume records traded volume from a pool tick.
func (r *RollingStats) AddVolume(volume float64, ts time.Time) {
	if volume <= 0 || math.IsNaN(volume) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	hour := ts.UTC().Truncate(time.Hour)
	if n := len(r.buckets); n > 0 && r.buckets[n-1].hour.Equal(hour) {
		r.buckets[n-1].volume += volume
	} else {
		r.buckets = append(r.buckets, volumeBucket{hour: hour, volume: volume})
	}
	r.trimBucketsLocked(ts)
}

func (r *RollingStats) trimPricesLocked(now time.Time) {
	cutoff := now.Add(-r.priceWindow)
	i := 0
	for i < len(r.prices) && r.prices[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.prices = append(r.prices[:0], r.prices[i:]...)
	}
}

func (r *RollingStats) trimBucketsLocked(now time.Time) {
	cutoff := now.UTC().Add(-r.volumeWindow).Truncate(time.Hour)
	i := 0
	for i < len(r.buckets) && r.buckets[i].hour.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.buckets = append(r.buckets[:0], r.buckets[i:]...)
	}
}

// Volatility returns the standard deviation of consecutive returns over the
// price window. Fewer than three observations yield zero.
func (r *RollingStats) Volatility() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.prices) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(r.prices)-1)
	for i := 1; i < len(r.prices); i++ {
		prev := r.prices[i-1].price
		if prev <= 0 {
			continue
		}
		returns = append(returns, (r.prices[i].price-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, v := range returns {
		mean += v
	}
	mean /= float64(len(returns))

	var variance float64
	for _, v := range returns {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance)
}

// Volume24h sums volume over the trailing 24 hours.
func (r *RollingStats) Volume24h(now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.UTC().Add(-24 * time.Hour).Truncate(time.Hour)
	var total float64
	for _, b := range r.buckets {
		if !b.hour.Before(cutoff) {
			total += b.volume
		}
	}
	return total
}

// AvgVolume7d returns the average daily volume over the trailing week. Days
// without data are counted as zero so a quiet market is not inflated.
func (r *RollingStats) AvgVolume7d(now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.UTC().Add(-r.volumeWindow).Truncate(time.Hour)
	var total float64
	for _, b := range r.buckets {
		if !b.hour.Before(cutoff) {
			total += b.volume
		}
	}
	return total / 7
}

// Seed preloads the stats from persisted snapshots after a restart.
func (r *RollingStats) Seed(snaps []domain.MarketSnapshot) {
	for _, s := range snaps {
		r.AddPrice(s.Price, s.Timestamp)
	}
}
