package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVolatilityFlatSeriesIsZero(t *testing.T) {
	stats := NewRollingStats()
	base := time.Now()
	for i := 0; i < 10; i++ {
		stats.AddPrice(0.05, base.Add(time.Duration(i)*time.Minute))
	}
	assert.Zero(t, stats.Volatility())
}

func TestVolatilityReflectsSwings(t *testing.T) {
	stats := NewRollingStats()
	base := time.Now()
	prices := []float64{0.050, 0.055, 0.048, 0.056, 0.047}
	for i, p := range prices {
		stats.AddPrice(p, base.Add(time.Duration(i)*time.Minute))
	}
	assert.Greater(t, stats.Volatility(), 0.05)
}

func TestVolatilityWindowTrimsOldPoints(t *testing.T) {
	stats := NewRollingStats()
	now := time.Now()

	// Wild swings two hours ago must not count once flat data fills the window.
	stats.AddPrice(0.01, now.Add(-2*time.Hour))
	stats.AddPrice(0.10, now.Add(-119*time.Minute))
	for i := 0; i < 10; i++ {
		stats.AddPrice(0.05, now.Add(time.Duration(i-10)*time.Minute))
	}
	assert.Zero(t, stats.Volatility())
}

func TestVolume24hSumsRecentBucketsOnly(t *testing.T) {
	stats := NewRollingStats()
	now := time.Now().UTC()

	stats.AddVolume(1000, now.Add(-30*time.Hour)) // outside 24h
	stats.AddVolume(200, now.Add(-10*time.Hour))
	stats.AddVolume(300, now.Add(-time.Hour))

	assert.InDelta(t, 500, stats.Volume24h(now), 0.001)
}

func TestAvgVolume7dDividesBySevenDays(t *testing.T) {
	stats := NewRollingStats()
	now := time.Now().UTC()

	// 700 over the week averages to 100 per day even if activity was bursty.
	for d := 1; d <= 7; d++ {
		stats.AddVolume(100, now.Add(-time.Duration(d)*24*time.Hour+time.Hour))
	}
	assert.InDelta(t, 100, stats.AvgVolume7d(now), 0.001)
}

func TestAddVolumeIgnoresInvalid(t *testing.T) {
	stats := NewRollingStats()
	now := time.Now().UTC()

	stats.AddVolume(-5, now)
	stats.AddVolume(0, now)
	assert.Zero(t, stats.Volume24h(now))
}
