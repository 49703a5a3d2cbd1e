package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistlabs/guardian/internal/domain"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetPrice = 0.05
	cfg.Cooldown = 0
	cfg.Adaptive = false
	return cfg
}

func TestProposeWithinToleranceDoesNothing(t *testing.T) {
	pid := NewPID(testConfig())

	// 0.2% off target against a 1% dead band.
	adj, err := pid.Propose(time.Now(), 0.0501, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, domain.AdjustmentNone, adj.Type)
	assert.Zero(t, adj.Amount)
}

func TestProposeBurnsWhenPriceBelowTarget(t *testing.T) {
	pid := NewPID(testConfig())

	adj, err := pid.Propose(time.Now(), 0.045, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, domain.AdjustmentBurn, adj.Type)
	assert.Greater(t, adj.Amount, 0.0)
	assert.Greater(t, adj.Output, 0.0)
}

func TestProposeMintsWhenPriceAboveTarget(t *testing.T) {
	pid := NewPID(testConfig())

	adj, err := pid.Propose(time.Now(), 0.056, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, domain.AdjustmentMint, adj.Type)
	assert.Greater(t, adj.Amount, 0.0)
	assert.Less(t, adj.Output, 0.0)
}

func TestAmountNeverExceedsDailyRate(t *testing.T) {
	cfg := testConfig()
	pid := NewPID(cfg)

	// Price collapsed 60% below target: output saturates but the amount must
	// stay within the daily burn rate.
	adj, err := pid.Propose(time.Now(), 0.02, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, domain.AdjustmentBurn, adj.Type)
	assert.LessOrEqual(t, adj.Amount, 1_000_000*cfg.MaxBurnRate)
}

func TestIntegralClampedUnderSustainedError(t *testing.T) {
	cfg := testConfig()
	pid := NewPID(cfg)

	// Hundreds of cycles of one-directional 20% error with large dt: the
	// integral would diverge without the anti-windup clamp.
	now := time.Now()
	for i := 0; i < 500; i++ {
		now = now.Add(time.Hour)
		_, err := pid.Propose(now, 0.04, 1_000_000)
		require.NoError(t, err)
	}

	pid.mu.Lock()
	integral := pid.integral
	pid.mu.Unlock()
	assert.GreaterOrEqual(t, integral, cfg.IntegralMin)
	assert.LessOrEqual(t, integral, cfg.IntegralMax)
}

func TestCooldownBlocksRapidAdjustments(t *testing.T) {
	cfg := testConfig()
	cfg.Cooldown = time.Hour
	pid := NewPID(cfg)

	now := time.Now()
	_, err := pid.Propose(now, 0.045, 1_000_000)
	require.NoError(t, err)

	_, err = pid.Propose(now.Add(10*time.Minute), 0.045, 1_000_000)
	require.ErrorIs(t, err, ErrCooldownActive)

	_, err = pid.Propose(now.Add(61*time.Minute), 0.045, 1_000_000)
	require.NoError(t, err)
}

func TestAdaptiveKpRaisesOnSustainedError(t *testing.T) {
	cfg := testConfig()
	cfg.Adaptive = true
	pid := NewPID(cfg)

	now := time.Now()
	for i := 0; i < 10; i++ {
		now = now.Add(time.Minute)
		_, err := pid.Propose(now, 0.04, 1_000_000) // 20% error
		require.NoError(t, err)
	}

	assert.Greater(t, pid.Kp(), cfg.Kp)
	assert.LessOrEqual(t, pid.Kp(), cfg.KpMax)
}

func TestAdaptiveKpLowersOnSmallError(t *testing.T) {
	cfg := testConfig()
	cfg.Adaptive = true
	cfg.ToleranceBps = 10 // narrow the dead band so tiny errors still cycle
	pid := NewPID(cfg)

	now := time.Now()
	for i := 0; i < 10; i++ {
		now = now.Add(time.Minute)
		_, err := pid.Propose(now, 0.0498, 1_000_000) // 0.4% error
		require.NoError(t, err)
	}

	assert.Less(t, pid.Kp(), cfg.Kp)
	assert.GreaterOrEqual(t, pid.Kp(), cfg.KpMin)
}

func TestAdaptiveKpStaysWithinBounds(t *testing.T) {
	cfg := testConfig()
	cfg.Adaptive = true
	pid := NewPID(cfg)

	now := time.Now()
	for i := 0; i < 200; i++ {
		now = now.Add(time.Minute)
		_, err := pid.Propose(now, 0.01, 1_000_000) // 80% error, forever
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, pid.Kp(), cfg.KpMax)
}

func TestProposeRejectsInvalidPrice(t *testing.T) {
	pid := NewPID(testConfig())

	_, err := pid.Propose(time.Now(), 0, 1_000_000)
	require.Error(t, err)

	_, err = pid.Propose(time.Now(), -1, 1_000_000)
	require.Error(t, err)
}

func TestResetClearsAccumulatedState(t *testing.T) {
	pid := NewPID(testConfig())

	now := time.Now()
	for i := 0; i < 5; i++ {
		now = now.Add(time.Minute)
		_, err := pid.Propose(now, 0.04, 1_000_000)
		require.NoError(t, err)
	}
	pid.Reset()

	pid.mu.Lock()
	defer pid.mu.Unlock()
	assert.Zero(t, pid.integral)
	assert.Zero(t, pid.prevError)
	assert.True(t, pid.lastTick.IsZero())
}
