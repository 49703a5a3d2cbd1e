package market

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistlabs/guardian/internal/domain"
)

type fakeOracle struct {
	agg    domain.AggregatedPrice
	aggErr error
	health domain.OracleHealth
}

func (f *fakeOracle) ConsensusPrice(context.Context) (domain.AggregatedPrice, error) {
	return f.agg, f.aggErr
}

func (f *fakeOracle) CheckHealth(context.Context) domain.OracleHealth {
	return f.health
}

type fakeProtocol struct {
	state domain.ProtocolState
	err   error
}

func (f *fakeProtocol) GetState(context.Context) (domain.ProtocolState, error) {
	return f.state, f.err
}

type fakePool struct {
	state domain.PoolState
	err   error
}

func (f *fakePool) GetPoolState(context.Context) (domain.PoolState, error) {
	return f.state, f.err
}

func newTestCollector(o *fakeOracle, p *fakeProtocol, d *fakePool) *Collector {
	return NewCollector(DefaultConfig(), o, p, d, NewRollingStats(), nil, nil, slog.Default())
}

func TestCollectBuildsSnapshot(t *testing.T) {
	now := time.Now().UTC()
	oracle := &fakeOracle{
		agg: domain.AggregatedPrice{
			Price:      0.048,
			Confidence: 0.0001,
			Timestamp:  now,
		},
		health: domain.OracleHealth{LiveCount: 3, DivergenceBps: 40},
	}
	protocol := &fakeProtocol{state: domain.ProtocolState{
		FloorPrice:        0.05,
		CirculatingSupply: 1_000_000,
		FloorLiquidity:    500_000,
	}}
	pool := &fakePool{state: domain.PoolState{
		SpotPrice: 0.0479,
		Liquidity: 120_000,
		DepthBands: []domain.DepthBand{
			{Bps: 100, Amount: 12_000},
		},
		ObservedAt: now,
	}}

	c := newTestCollector(oracle, protocol, pool)
	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 0.048, snap.Price, 1e-9)
	assert.InDelta(t, 0.96, snap.PriceRatio, 1e-9)
	assert.Equal(t, 3, snap.OracleLiveSources)
	assert.InDelta(t, 0.0479, snap.SpotPrice, 1e-9)
	assert.InDelta(t, 12_000, snap.DepthAt(100), 1e-9)

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, snap.Timestamp, latest.Timestamp)
}

func TestCollectPublishesDegradedSnapshotOnConsensusFailure(t *testing.T) {
	oracle := &fakeOracle{
		aggErr: domain.ErrDivergenceExceeded,
		health: domain.OracleHealth{LiveCount: 2, DivergenceBps: 620},
	}
	protocol := &fakeProtocol{state: domain.ProtocolState{FloorPrice: 0.05}}
	pool := &fakePool{}

	c := newTestCollector(oracle, protocol, pool)
	snap, err := c.Collect(context.Background())
	require.ErrorIs(t, err, domain.ErrDivergenceExceeded)

	// Price-dependent consumers see no price, but the breaker still sees the
	// divergence through the published snapshot.
	assert.Zero(t, snap.Price)
	assert.InDelta(t, 620, snap.OracleDivergence, 0.001)

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Zero(t, latest.Price)

	lastErr, _ := c.LastError()
	require.Error(t, lastErr)
}

func TestCollectFailsWhenProtocolUnreadable(t *testing.T) {
	c := newTestCollector(
		&fakeOracle{agg: domain.AggregatedPrice{Price: 0.05}},
		&fakeProtocol{err: errors.New("gateway unavailable")},
		&fakePool{},
	)

	_, err := c.Collect(context.Background())
	require.Error(t, err)

	_, ok := c.Latest()
	assert.False(t, ok)
}

func TestCollectToleratesPoolFailure(t *testing.T) {
	c := newTestCollector(
		&fakeOracle{agg: domain.AggregatedPrice{Price: 0.05, Timestamp: time.Now()}},
		&fakeProtocol{state: domain.ProtocolState{FloorPrice: 0.05}},
		&fakePool{err: errors.New("pool indexer down")},
	)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.SpotPrice)
	assert.InDelta(t, 0.05, snap.Price, 1e-9)
}

func TestOnTickFeedsVolumeWindow(t *testing.T) {
	c := newTestCollector(
		&fakeOracle{agg: domain.AggregatedPrice{Price: 0.05, Timestamp: time.Now()}},
		&fakeProtocol{state: domain.ProtocolState{FloorPrice: 0.05}},
		&fakePool{},
	)

	now := time.Now().UTC()
	c.OnTick(context.Background(), domain.PoolTick{Price: 0.05, Volume: 250, Timestamp: now})
	c.OnTick(context.Background(), domain.PoolTick{Price: 0.05, Volume: 150, Timestamp: now})

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 400, snap.Volume24h, 0.001)
}
