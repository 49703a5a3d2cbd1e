package oracle

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

// fakeSource is a scriptable FeedSource for aggregator tests.
type fakeSource struct {
	name      string
	price     float64
	conf      float64
	age       time.Duration
	staleness time.Duration
	err       error
	delay     time.Duration
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) MaxStaleness() time.Duration {
	if f.staleness == 0 {
		return time.Minute
	}
	return f.staleness
}

func (f *fakeSource) Fetch(ctx context.Context) (domain.PriceSample, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.PriceSample{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return domain.PriceSample{}, f.err
	}
	return domain.PriceSample{
		Source:     f.name,
		Price:      f.price,
		Confidence: f.conf,
		Timestamp:  time.Now().Add(-f.age),
	}, nil
}

func newTestAggregator(t *testing.T, sources ...FeedSource) *Aggregator {
	t.Helper()
	return NewAggregator(sources, DefaultAggregatorConfig(), slog.Default())
}

func TestConsensusPriceWeightsTighterSources(t *testing.T) {
	agg := newTestAggregator(t,
		&fakeSource{name: "a", price: 0.050, conf: 0.0001},
		&fakeSource{name: "b", price: 0.051, conf: 0.001},
	)

	out, err := agg.ConsensusPrice(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Samples, 2)

	// Source a has 10x the weight of b, so consensus sits much closer to a.
	assert.InDelta(t, 0.05009, out.Price, 0.0001)
	assert.Less(t, out.Price, 0.0505)
}

func TestConsensusPriceInsufficientSources(t *testing.T) {
	agg := newTestAggregator(t,
		&fakeSource{name: "a", price: 0.05, conf: 0.001},
		&fakeSource{name: "b", err: errors.New("connection refused")},
	)

	_, err := agg.ConsensusPrice(context.Background())
	require.ErrorIs(t, err, domain.ErrInsufficientSources)
}

func TestConsensusPriceAllSourcesStale(t *testing.T) {
	agg := newTestAggregator(t,
		&fakeSource{name: "a", price: 0.05, conf: 0.001, age: 10 * time.Minute},
		&fakeSource{name: "b", price: 0.05, conf: 0.001, age: 10 * time.Minute},
	)

	_, err := agg.ConsensusPrice(context.Background())
	require.ErrorIs(t, err, domain.ErrAllSourcesStale)
}

func TestConsensusPriceDivergenceExceeded(t *testing.T) {
	// 4% spread against a 2% bound: quorum is met but aggregation must fail
	// rather than silently average.
	agg := newTestAggregator(t,
		&fakeSource{name: "a", price: 0.050, conf: 0.001},
		&fakeSource{name: "b", price: 0.052, conf: 0.001},
	)

	_, err := agg.ConsensusPrice(context.Background())
	require.ErrorIs(t, err, domain.ErrDivergenceExceeded)
}

func TestConsensusPriceDropsInvalidSamples(t *testing.T) {
	agg := newTestAggregator(t,
		&fakeSource{name: "a", price: 0.05, conf: 0.001},
		&fakeSource{name: "b", price: 0.0501, conf: 0.001},
		&fakeSource{name: "c", price: -1, conf: 0.001},
	)

	out, err := agg.ConsensusPrice(context.Background())
	require.NoError(t, err)
	assert.Len(t, out.Samples, 2)
	for _, s := range out.Samples {
		assert.NotEqual(t, "c", s.Source)
	}
}

func TestConsensusPriceSlowSourceDropped(t *testing.T) {
	cfg := DefaultAggregatorConfig()
	cfg.PerSourceTimeout = 50 * time.Millisecond

	agg := NewAggregator([]FeedSource{
		&fakeSource{name: "a", price: 0.05, conf: 0.001},
		&fakeSource{name: "b", price: 0.0501, conf: 0.001},
		&fakeSource{name: "slow", price: 0.05, conf: 0.001, delay: time.Second},
	}, cfg, slog.Default())

	start := time.Now()
	out, err := agg.ConsensusPrice(context.Background())
	require.NoError(t, err)

	// The slow source must not block aggregation past its own timeout.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Len(t, out.Samples, 2)
}

func TestCheckHealthReportsPerSource(t *testing.T) {
	agg := newTestAggregator(t,
		&fakeSource{name: "a", price: 0.050, conf: 0.001},
		&fakeSource{name: "b", price: 0.053, conf: 0.001},
		&fakeSource{name: "c", err: errors.New("timeout")},
	)

	health := agg.CheckHealth(context.Background())
	require.Len(t, health.Sources, 3)
	assert.Equal(t, 2, health.LiveCount)
	// 0.050 -> 0.053 is a 6% spread: reported, not swallowed, so the breaker
	// can trip on it.
	assert.InDelta(t, 600, health.DivergenceBps, 1)

	var dead int
	for _, s := range health.Sources {
		if !s.Live {
			dead++
		}
	}
	assert.Equal(t, 1, dead)
}
