package coordinator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistlabs/guardian/internal/domain"
)

type memOpStore struct {
	ops []domain.BotOperation
}

func (m *memOpStore) Append(_ context.Context, op domain.BotOperation) error {
	m.ops = append(m.ops, op)
	return nil
}

func (m *memOpStore) ListWindow(_ context.Context, from, to time.Time) ([]domain.BotOperation, error) {
	var out []domain.BotOperation
	for _, op := range m.ops {
		if !op.Timestamp.Before(from) && !op.Timestamp.After(to) {
			out = append(out, op)
		}
	}
	return out, nil
}

func (m *memOpStore) ListBefore(context.Context, time.Time) ([]domain.BotOperation, error) {
	return nil, nil
}

func (m *memOpStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) Trigger(_ context.Context, _ domain.Severity, alertType, _ string, _ map[string]string) {
	f.alerts = append(f.alerts, alertType)
}

func op(agent, target string, ts time.Time) domain.BotOperation {
	return domain.BotOperation{Agent: agent, OpType: "buyback", Target: target, Timestamp: ts}
}

func TestFindConflictsFlagsDifferentAgentsSameTarget(t *testing.T) {
	c := New(DefaultConfig(), nil, nil, slog.Default())
	now := time.Now()

	conflicts := c.FindConflicts([]domain.BotOperation{
		op("buyback_bot", "pool", now),
		op("market_maker", "pool", now.Add(2*time.Second)),
	})
	require.Len(t, conflicts, 1)
	assert.Equal(t, "buyback_bot", conflicts[0].First.Agent)
	assert.Equal(t, "market_maker", conflicts[0].Second.Agent)
	assert.Equal(t, 2*time.Second, conflicts[0].Gap)
}

func TestFindConflictsIgnoresSameAgent(t *testing.T) {
	c := New(DefaultConfig(), nil, nil, slog.Default())
	now := time.Now()

	conflicts := c.FindConflicts([]domain.BotOperation{
		op("buyback_bot", "pool", now),
		op("buyback_bot", "pool", now.Add(time.Second)),
	})
	assert.Empty(t, conflicts)
}

func TestFindConflictsIgnoresDifferentTargets(t *testing.T) {
	c := New(DefaultConfig(), nil, nil, slog.Default())
	now := time.Now()

	conflicts := c.FindConflicts([]domain.BotOperation{
		op("buyback_bot", "pool", now),
		op("supply_bot", "mint", now.Add(time.Second)),
	})
	assert.Empty(t, conflicts)
}

func TestFindConflictsIgnoresWideGaps(t *testing.T) {
	c := New(DefaultConfig(), nil, nil, slog.Default())
	now := time.Now()

	conflicts := c.FindConflicts([]domain.BotOperation{
		op("buyback_bot", "pool", now),
		op("market_maker", "pool", now.Add(10*time.Second)),
	})
	assert.Empty(t, conflicts)
}

func TestFindConflictsHandlesUnsortedInput(t *testing.T) {
	c := New(DefaultConfig(), nil, nil, slog.Default())
	now := time.Now()

	conflicts := c.FindConflicts([]domain.BotOperation{
		op("market_maker", "pool", now.Add(time.Second)),
		op("buyback_bot", "pool", now),
	})
	require.Len(t, conflicts, 1)
	assert.Equal(t, "buyback_bot", conflicts[0].First.Agent)
}

func TestScanReportsEachConflictOnce(t *testing.T) {
	store := &memOpStore{}
	now := time.Now().UTC()
	store.ops = []domain.BotOperation{
		op("buyback_bot", "pool", now.Add(-10*time.Second)),
		op("market_maker", "pool", now.Add(-9*time.Second)),
	}

	alerts := &fakeAlerter{}
	c := New(DefaultConfig(), store, alerts, slog.Default())

	require.NoError(t, c.Scan(context.Background()))
	require.NoError(t, c.Scan(context.Background()))

	// Overlapping scans see the same pair; it is alerted exactly once.
	assert.Equal(t, []string{domain.AlertBotConflict}, alerts.alerts)
}
