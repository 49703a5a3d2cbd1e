package breaker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistlabs/guardian/internal/domain"
)

type fakeSnaps struct {
	snap domain.MarketSnapshot
	ok   bool
}

func (f *fakeSnaps) Latest() (domain.MarketSnapshot, bool) { return f.snap, f.ok }

type fakeExecutor struct {
	changes      []domain.BreakerStateChange
	restrictions []domain.Restrictions
}

func (f *fakeExecutor) ReportBreakerState(_ context.Context, c domain.BreakerStateChange) error {
	f.changes = append(f.changes, c)
	return nil
}

func (f *fakeExecutor) ApplyRestrictions(_ context.Context, r domain.Restrictions) error {
	f.restrictions = append(f.restrictions, r)
	return nil
}

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) Trigger(_ context.Context, _ domain.Severity, alertType, _ string, _ map[string]string) {
	f.alerts = append(f.alerts, alertType)
}

func newTestMonitor(snaps *fakeSnaps, exec *fakeExecutor, alerts *fakeAlerter) *Monitor {
	return NewMonitor(DefaultMonitorConfig(), NewMachine(DefaultMachineConfig()),
		NewEvaluator(DefaultConditionConfig()), snaps, exec, alerts, nil, slog.Default())
}

func TestCycleTripsAndAppliesRestrictions(t *testing.T) {
	snap := baseSnapshot()
	snap.OracleDivergence = 620 // past the 500 bps alarm

	exec := &fakeExecutor{}
	alerts := &fakeAlerter{}
	m := newTestMonitor(&fakeSnaps{snap: snap, ok: true}, exec, alerts)

	m.cycle(context.Background())

	status := m.Machine().Status()
	require.True(t, status.Active)
	assert.Equal(t, domain.SeverityCritical, status.Severity)
	assert.Equal(t, CondOracleDivergence, status.Condition)

	require.Len(t, exec.changes, 1)
	assert.True(t, exec.changes[0].Active)
	require.Len(t, exec.restrictions, 1)
	assert.True(t, exec.restrictions[0].TradingPaused)
	assert.Contains(t, alerts.alerts, domain.AlertCircuitBreakerTrip)
}

func TestCycleStaleSnapshotTripsMonitoringError(t *testing.T) {
	snap := baseSnapshot()
	snap.Timestamp = time.Now().Add(-time.Hour)

	exec := &fakeExecutor{}
	m := newTestMonitor(&fakeSnaps{snap: snap, ok: true}, exec, &fakeAlerter{})

	m.cycle(context.Background())

	status := m.Machine().Status()
	require.True(t, status.Active)
	assert.Equal(t, CondMonitoringError, status.Condition)
	assert.Equal(t, domain.SeverityHigh, status.Severity)
}

func TestCycleRepeatTripDoesNotRereport(t *testing.T) {
	snap := baseSnapshot()
	snap.OracleDivergence = 620

	exec := &fakeExecutor{}
	m := newTestMonitor(&fakeSnaps{snap: snap, ok: true}, exec, &fakeAlerter{})

	m.cycle(context.Background())
	m.cycle(context.Background())
	m.cycle(context.Background())

	// Same condition at the same severity reports exactly once.
	assert.Len(t, exec.changes, 1)
}

func TestInjectExternalEscalates(t *testing.T) {
	exec := &fakeExecutor{}
	alerts := &fakeAlerter{}
	m := newTestMonitor(&fakeSnaps{snap: baseSnapshot(), ok: true}, exec, alerts)

	m.InjectExternal(context.Background(), domain.TripResult{
		Condition: domain.AlertFraudDetected,
		Tripped:   true,
		Severity:  domain.SeverityCritical,
		Message:   "fraud score 94 for subject s-1",
	})

	status := m.Machine().Status()
	require.True(t, status.Active)
	assert.Equal(t, domain.SeverityCritical, status.Severity)
	require.Len(t, exec.restrictions, 1)
	assert.True(t, exec.restrictions[0].BuybackDisabled)
}

func TestAutoResetAfterCooldown(t *testing.T) {
	machineCfg := DefaultMachineConfig()
	machineCfg.LowCooldown = 0 // elapse immediately

	exec := &fakeExecutor{}
	alerts := &fakeAlerter{}
	m := NewMonitor(DefaultMonitorConfig(), NewMachine(machineCfg),
		NewEvaluator(DefaultConditionConfig()),
		&fakeSnaps{snap: baseSnapshot(), ok: true}, exec, alerts, nil, slog.Default())

	m.Machine().TripExternal(time.Now().Add(-time.Minute), domain.TripResult{
		Condition: CondManualTrigger,
		Tripped:   true,
		Severity:  domain.SeverityLow,
		Message:   "drill",
	})

	m.cycle(context.Background())

	status := m.Machine().Status()
	assert.False(t, status.Active)
	assert.Contains(t, alerts.alerts, domain.AlertCircuitBreakerReset)
	// The clearing cycle reported the inactive state and empty restrictions.
	require.NotEmpty(t, exec.changes)
	assert.False(t, exec.changes[len(exec.changes)-1].Active)
	assert.Equal(t, domain.Restrictions{}, exec.restrictions[len(exec.restrictions)-1])
}
