package controller

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

type fakeBreaker struct {
	status domain.BreakerStatus
}

func (f *fakeBreaker) Status() domain.BreakerStatus { return f.status }

type fakeSupplyExec struct {
	reqs []domain.SupplyRequest
	err  error
}

func (f *fakeSupplyExec) SubmitSupplyAdjustment(_ context.Context, req domain.SupplyRequest) error {
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	return nil
}

type fakeLocks struct {
	held bool
}

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

func healthySnapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Timestamp:         time.Now(),
		Price:             0.045,
		FloorPrice:        0.05,
		CirculatingSupply: 1_000_000,
	}
}

func newTestBot(snaps *fakeSnaps, breaker *fakeBreaker, exec *fakeSupplyExec, locks *fakeLocks) *SupplyBot {
	cfg := testConfig()
	cfg.Cooldown = 0
	pid := NewPID(cfg)
	return NewSupplyBot(DefaultSupplyBotConfig(), pid, snaps, breaker, exec, locks, nil, nil, slog.Default())
}

func TestCycleSubmitsAdjustment(t *testing.T) {
	exec := &fakeSupplyExec{}
	bot := newTestBot(&fakeSnaps{snap: healthySnapshot(), ok: true}, &fakeBreaker{}, exec, &fakeLocks{})

	require.NoError(t, bot.cycle(context.Background()))
	require.Len(t, exec.reqs, 1)
	assert.Equal(t, domain.AdjustmentBurn, exec.reqs[0].Type)
	assert.Greater(t, exec.reqs[0].Amount, 0.0)
}

func TestCycleSkipsDegradedSnapshot(t *testing.T) {
	snap := healthySnapshot()
	snap.Price = 0 // consensus failed this cycle
	exec := &fakeSupplyExec{}
	bot := newTestBot(&fakeSnaps{snap: snap, ok: true}, &fakeBreaker{}, exec, &fakeLocks{})

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}

func TestCycleSkipsStaleSnapshot(t *testing.T) {
	snap := healthySnapshot()
	snap.Timestamp = time.Now().Add(-time.Hour)
	exec := &fakeSupplyExec{}
	bot := newTestBot(&fakeSnaps{snap: snap, ok: true}, &fakeBreaker{}, exec, &fakeLocks{})

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}

func TestCycleHonorsBreakerRestriction(t *testing.T) {
	breaker := &fakeBreaker{status: domain.BreakerStatus{
		Active:   true,
		Severity: domain.SeverityHigh,
	}}
	exec := &fakeSupplyExec{}
	bot := newTestBot(&fakeSnaps{snap: healthySnapshot(), ok: true}, breaker, exec, &fakeLocks{})

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}

func TestCycleSkipsWhenLeaseHeld(t *testing.T) {
	exec := &fakeSupplyExec{}
	bot := newTestBot(&fakeSnaps{snap: healthySnapshot(), ok: true}, &fakeBreaker{}, exec, &fakeLocks{held: true})

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}

func TestCycleSkipsDuringEmergencyPause(t *testing.T) {
	snap := healthySnapshot()
	snap.EmergencyPaused = true
	exec := &fakeSupplyExec{}
	bot := newTestBot(&fakeSnaps{snap: snap, ok: true}, &fakeBreaker{}, exec, &fakeLocks{})

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}
