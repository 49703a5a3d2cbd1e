package buyback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
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

type fakeExec struct {
	reqs []domain.BuybackRequest
	err  error
}

func (f *fakeExec) SubmitBuyback(_ context.Context, req domain.BuybackRequest) error {
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

// memBudget is an in-memory BudgetLedger with the same atomicity contract as
// the redis implementation.
type memBudget struct {
	mu    sync.Mutex
	spent map[string]float64
}

func newMemBudget() *memBudget { return &memBudget{spent: make(map[string]float64)} }

func (m *memBudget) Reserve(_ context.Context, key string, amount, limit float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spent[key]+amount > limit {
		return limit - m.spent[key], domain.ErrBudgetExhausted
	}
	m.spent[key] += amount
	return limit - m.spent[key], nil
}

func (m *memBudget) Release(_ context.Context, key string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spent[key] -= amount
	if m.spent[key] < 0 {
		m.spent[key] = 0
	}
	return nil
}

func (m *memBudget) Spent(_ context.Context, key string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent[key], nil
}

func (m *memBudget) ResetDay(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spent, key)
	return nil
}

// botStrategyConfig disables the quiet-hour veto so cycle tests do not
// depend on the wall clock.
func botStrategyConfig() StrategyConfig {
	cfg := DefaultStrategyConfig()
	cfg.QuietHoursUTC = nil
	return cfg
}

func newTestBot(snaps *fakeSnaps, breaker *fakeBreaker, exec *fakeExec, locks *fakeLocks, budget domain.BudgetLedger) *Bot {
	return NewBot(DefaultBotConfig(), NewStrategy(botStrategyConfig()),
		snaps, breaker, exec, locks, budget, nil, nil, slog.Default())
}

func TestCycleSubmitsBuyback(t *testing.T) {
	exec := &fakeExec{}
	budget := newMemBudget()
	bot := newTestBot(&fakeSnaps{snap: discountedSnapshot(0.94), ok: true},
		&fakeBreaker{}, exec, &fakeLocks{}, budget)

	require.NoError(t, bot.cycle(context.Background()))
	require.Len(t, exec.reqs, 1)
	assert.Greater(t, exec.reqs[0].Amount, 0.0)

	spent, _ := budget.Spent(context.Background(), BudgetKey)
	assert.InDelta(t, exec.reqs[0].Amount, spent, 0.001)
}

func TestCycleSkipsWhenBreakerDisablesBuyback(t *testing.T) {
	exec := &fakeExec{}
	breaker := &fakeBreaker{status: domain.BreakerStatus{
		Active:       true,
		Severity:     domain.SeverityHigh,
		Restrictions: domain.Restrictions{BuybackDisabled: true},
	}}
	bot := newTestBot(&fakeSnaps{snap: discountedSnapshot(0.94), ok: true},
		breaker, exec, &fakeLocks{}, newMemBudget())

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}

func TestCycleSkipsOnDegradedSnapshot(t *testing.T) {
	snap := discountedSnapshot(0.94)
	snap.Price = 0
	exec := &fakeExec{}
	bot := newTestBot(&fakeSnaps{snap: snap, ok: true},
		&fakeBreaker{}, exec, &fakeLocks{}, newMemBudget())

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}

func TestCycleStopsWhenBudgetExhausted(t *testing.T) {
	exec := &fakeExec{}
	budget := newMemBudget()
	cfg := DefaultBotConfig()
	cfg.DailyBudget = 100_000
	_, err := budget.Reserve(context.Background(), BudgetKey, 100_000, cfg.DailyBudget)
	require.NoError(t, err)

	bot := NewBot(cfg, NewStrategy(botStrategyConfig()),
		&fakeSnaps{snap: discountedSnapshot(0.94), ok: true},
		&fakeBreaker{}, exec, &fakeLocks{}, budget, nil, nil, slog.Default())

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}

func TestCycleReleasesBudgetOnSubmitFailure(t *testing.T) {
	exec := &fakeExec{err: errors.New("gateway timeout")}
	budget := newMemBudget()
	bot := newTestBot(&fakeSnaps{snap: discountedSnapshot(0.94), ok: true},
		&fakeBreaker{}, exec, &fakeLocks{}, budget)

	require.Error(t, bot.cycle(context.Background()))

	spent, _ := budget.Spent(context.Background(), BudgetKey)
	assert.Zero(t, spent)
}

func TestCycleSkipsWhenLeaseHeld(t *testing.T) {
	exec := &fakeExec{}
	bot := newTestBot(&fakeSnaps{snap: discountedSnapshot(0.94), ok: true},
		&fakeBreaker{}, exec, &fakeLocks{held: true}, newMemBudget())

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}

func TestCycleSkipsUnfavorableMarket(t *testing.T) {
	snap := discountedSnapshot(0.94)
	snap.Volume24h = 4 * snap.AvgVolume7d // wash-trading veto
	exec := &fakeExec{}
	bot := newTestBot(&fakeSnaps{snap: snap, ok: true},
		&fakeBreaker{}, exec, &fakeLocks{}, newMemBudget())

	require.NoError(t, bot.cycle(context.Background()))
	assert.Empty(t, exec.reqs)
}
