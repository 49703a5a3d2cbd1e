package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistlabs/guardian/internal/domain"
)

func trip(cond string, sev domain.Severity) domain.TripResult {
	return domain.TripResult{Condition: cond, Tripped: true, Severity: sev, Message: cond}
}

func TestEvaluateMaxSeverityWins(t *testing.T) {
	m := NewMachine(DefaultMachineConfig())
	now := time.Now()

	changed, winner := m.Evaluate(now, []domain.TripResult{
		{Condition: CondVolumeSpike},
		trip(CondPriceVolatility, domain.SeverityMedium),
		trip(CondOracleDivergence, domain.SeverityCritical),
		trip(CondSupplyChange, domain.SeverityHigh),
	})
	require.True(t, changed)
	assert.Equal(t, CondOracleDivergence, winner.Condition)

	status := m.Status()
	assert.True(t, status.Active)
	assert.Equal(t, domain.SeverityCritical, status.Severity)
}

func TestEvaluateNoTrippedConditionsKeepsState(t *testing.T) {
	m := NewMachine(DefaultMachineConfig())

	changed, _ := m.Evaluate(time.Now(), []domain.TripResult{
		{Condition: CondVolumeSpike},
		{Condition: CondPriceVolatility},
	})
	assert.False(t, changed)
	assert.False(t, m.Status().Active)
}

func TestResetFailsBeforeCooldown(t *testing.T) {
	cfg := DefaultMachineConfig()
	m := NewMachine(cfg)
	now := time.Now()

	require.True(t, m.TripExternal(now, trip(CondPriceVolatility, domain.SeverityHigh)))

	require.ErrorIs(t, m.TryReset(now.Add(time.Hour)), ErrResetTooEarly)
	require.ErrorIs(t, m.TryReset(now.Add(cfg.HighCooldown-time.Second)), ErrResetTooEarly)

	require.NoError(t, m.TryReset(now.Add(cfg.HighCooldown)))
	status := m.Status()
	assert.False(t, status.Active)
	assert.Equal(t, domain.Restrictions{}, status.Restrictions)
}

func TestResetOnInactiveMachineFails(t *testing.T) {
	m := NewMachine(DefaultMachineConfig())
	require.ErrorIs(t, m.TryReset(time.Now()), ErrNotTripped)
}

func TestRetripAtLowerSeverityKeepsDeadline(t *testing.T) {
	m := NewMachine(DefaultMachineConfig())
	now := time.Now()

	require.True(t, m.TripExternal(now, trip(CondSupplyChange, domain.SeverityHigh)))
	deadline := m.Status().ResetDeadline

	// Equal and lower re-trips must not move the deadline or the state.
	assert.False(t, m.TripExternal(now.Add(time.Minute), trip(CondVolumeSpike, domain.SeverityMedium)))
	assert.False(t, m.TripExternal(now.Add(2*time.Minute), trip(CondVolumeSpike, domain.SeverityHigh)))
	assert.Equal(t, deadline, m.Status().ResetDeadline)
}

func TestRetripAtHigherSeverityEscalatesAndResetsDeadline(t *testing.T) {
	cfg := DefaultMachineConfig()
	m := NewMachine(cfg)
	now := time.Now()

	require.True(t, m.TripExternal(now, trip(CondVolumeSpike, domain.SeverityMedium)))

	later := now.Add(30 * time.Minute)
	require.True(t, m.TripExternal(later, trip(CondOracleDivergence, domain.SeverityCritical)))

	status := m.Status()
	assert.Equal(t, domain.SeverityCritical, status.Severity)
	assert.Equal(t, later.Add(cfg.CriticalCooldown), status.ResetDeadline)

	// The old medium deadline is long gone; the critical one governs.
	require.ErrorIs(t, m.TryReset(now.Add(cfg.MediumCooldown+time.Minute)), ErrResetTooEarly)
}

func TestRestrictionsPerSeverity(t *testing.T) {
	cfg := DefaultMachineConfig()

	cases := []struct {
		severity domain.Severity
		want     domain.Restrictions
	}{
		{domain.SeverityCritical, domain.Restrictions{
			TradingPaused: true, BuybackDisabled: true, StakingDisabled: true, EnhancedMonitoring: true,
		}},
		{domain.SeverityHigh, domain.Restrictions{
			BuybackDisabled: true, EnhancedMonitoring: true, MaxTransactionSize: cfg.MaxTxSizeAtHigh,
		}},
		{domain.SeverityMedium, domain.Restrictions{EnhancedMonitoring: true}},
		{domain.SeverityLow, domain.Restrictions{}},
	}

	for _, tc := range cases {
		m := NewMachine(cfg)
		require.True(t, m.TripExternal(time.Now(), trip(CondManualTrigger, tc.severity)))
		assert.Equal(t, tc.want, m.Status().Restrictions, "severity %s", tc.severity)
	}
}

func TestResetKeepsHistory(t *testing.T) {
	cfg := DefaultMachineConfig()
	m := NewMachine(cfg)
	now := time.Now()

	require.True(t, m.TripExternal(now, trip(CondPriceVolatility, domain.SeverityMedium)))
	require.NoError(t, m.TryReset(now.Add(cfg.MediumCooldown)))
	require.True(t, m.TripExternal(now.Add(2*time.Hour), trip(CondVolumeSpike, domain.SeverityHigh)))

	status := m.Status()
	require.Len(t, status.History, 2)
	assert.Equal(t, CondPriceVolatility, status.History[0].Condition)
	assert.Equal(t, CondVolumeSpike, status.History[1].Condition)
	assert.EqualValues(t, 2, status.TripCount)
}

func TestGatingHelpers(t *testing.T) {
	m := NewMachine(DefaultMachineConfig())
	now := time.Now()

	assert.True(t, m.Status().AllowsBuyback())
	assert.True(t, m.Status().AllowsSupplyAdjustment())

	require.True(t, m.TripExternal(now, trip(CondSupplyChange, domain.SeverityMedium)))
	assert.True(t, m.Status().AllowsBuyback())
	assert.True(t, m.Status().AllowsSupplyAdjustment())

	require.True(t, m.TripExternal(now, trip(CondSupplyChange, domain.SeverityHigh)))
	assert.False(t, m.Status().AllowsBuyback())
	assert.False(t, m.Status().AllowsSupplyAdjustment())
}
