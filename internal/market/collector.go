package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// consensusSource is the oracle aggregation surface the collector needs.
type consensusSource interface {
	ConsensusPrice(ctx context.Context) (domain.AggregatedPrice, error)
	CheckHealth(ctx context.Context) domain.OracleHealth
}

// protocolReader reads on-chain program state from the execution gateway.
type protocolReader interface {
	GetState(ctx context.Context) (domain.ProtocolState, error)
}

// poolReader reads DEX pool state.
type poolReader interface {
	GetPoolState(ctx context.Context) (domain.PoolState, error)
}

// Config holds collector tuning.
type Config struct {
	Interval time.Duration
	AssetID  string
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		AssetID:  "twist",
	}
}

// observation is a timestamped value kept for lagged lookups.
type observation struct {
	value float64
	ts    time.Time
}

// Collector polls the oracle consensus, the protocol state, and the DEX pool
// on a fixed interval and publishes one MarketSnapshot per cycle. When the
// consensus fails the cycle still publishes a degraded snapshot (Price zero,
// oracle health populated) so the circuit breaker can see the degradation;
// price-dependent consumers must skip snapshots without a positive price.
type Collector struct {
	cfg       Config
	oracle    consensusSource
	protocol  protocolReader
	pool      poolReader
	stats     *RollingStats
	snapshots domain.SnapshotStore
	prices    domain.PriceCache
	logger    *slog.Logger

	mu         sync.RWMutex
	latest     domain.MarketSnapshot
	haveLatest bool
	lastErr    error
	lastErrAt  time.Time

	supplyHist []observation
	liqHist    []observation
}

// NewCollector wires a collector over its upstream readers. The snapshot
// store and price cache may be nil in tests.
func NewCollector(
	cfg Config,
	oracle consensusSource,
	protocol protocolReader,
	pool poolReader,
	stats *RollingStats,
	snapshots domain.SnapshotStore,
	prices domain.PriceCache,
	logger *slog.Logger,
) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Collector{
		cfg:       cfg,
		oracle:    oracle,
		protocol:  protocol,
		pool:      pool,
		stats:     stats,
		snapshots: snapshots,
		prices:    prices,
		logger:    logger.With(slog.String("component", "collector")),
	}
}

// OnTick feeds a pool trade into the rolling volume window. Wired as the
// handler of the DEX websocket feed.
func (c *Collector) OnTick(_ context.Context, tick domain.PoolTick) {
	c.stats.AddVolume(tick.Volume, tick.Timestamp)
}

// Run polls until the context is cancelled. One failed cycle is logged and
// recorded, never fatal; the breaker escalates if failures persist.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.Info("collector started", slog.Duration("interval", c.cfg.Interval))

	for {
		if _, err := c.Collect(ctx); err != nil {
			c.logger.Error("collection cycle failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			c.logger.Info("collector stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Collect runs one cycle: read every upstream, derive rolling statistics,
// persist and publish the snapshot. The returned error is non-nil when the
// cycle was degraded; the snapshot is still published in that case unless
// the protocol state itself was unreadable.
func (c *Collector) Collect(ctx context.Context) (domain.MarketSnapshot, error) {
	now := time.Now().UTC()

	state, err := c.protocol.GetState(ctx)
	if err != nil {
		err = fmt.Errorf("market: read protocol state: %w", err)
		c.recordError(err, now)
		return domain.MarketSnapshot{}, err
	}

	health := c.oracle.CheckHealth(ctx)

	snap := domain.MarketSnapshot{
		Timestamp:         now,
		OracleDivergence:  health.DivergenceBps,
		OracleLiveSources: health.LiveCount,

		FloorPrice:        state.FloorPrice,
		TotalSupply:       state.TotalSupply,
		CirculatingSupply: state.CirculatingSupply,
		StakedSupply:      state.StakedSupply,
		FloorLiquidity:    state.FloorLiquidity,
		DailyBuybackUsed:  state.DailyBuybackUsed,
		EmergencyPaused:   state.EmergencyPaused,
		LastDecayAt:       state.LastDecayAt,
	}

	var degraded error

	agg, aggErr := c.oracle.ConsensusPrice(ctx)
	if aggErr != nil {
		degraded = fmt.Errorf("market: price consensus: %w", aggErr)
	} else {
		snap.Price = agg.Price
		snap.PriceConfidence = agg.Confidence
		snap.Samples = agg.Samples
		if state.FloorPrice > 0 {
			snap.PriceRatio = agg.Price / state.FloorPrice
		}
		c.stats.AddPrice(agg.Price, agg.Timestamp)

		if c.prices != nil {
			if err := c.prices.SetPrice(ctx, c.cfg.AssetID, agg.Price, agg.Timestamp); err != nil {
				c.logger.Warn("price cache write failed", slog.Any("error", err))
			}
		}
	}

	pool, poolErr := c.pool.GetPoolState(ctx)
	if poolErr != nil {
		c.logger.Warn("pool state unavailable", slog.Any("error", poolErr))
	} else {
		snap.SpotPrice = pool.SpotPrice
		snap.PoolLiquidity = pool.Liquidity
		snap.DepthBands = pool.DepthBands
		c.recordLiquidity(pool.Liquidity, now)
	}

	snap.Volume24h = c.stats.Volume24h(now)
	snap.AvgVolume7d = c.stats.AvgVolume7d(now)
	if snap.AvgVolume7d > 0 {
		snap.VolumeChangePct = (snap.Volume24h/snap.AvgVolume7d - 1) * 100
	}
	snap.Volatility1h = c.stats.Volatility()

	c.recordSupply(state.CirculatingSupply, now)
	snap.Supply24hAgo = lookupLagged(c.supplyHist, now.Add(-24*time.Hour))
	snap.Liquidity1hAgo = lookupLagged(c.liqHist, now.Add(-time.Hour))

	if c.snapshots != nil {
		if err := c.snapshots.Insert(ctx, snap); err != nil {
			c.logger.Warn("snapshot persist failed", slog.Any("error", err))
		}
	}

	c.mu.Lock()
	c.latest = snap
	c.haveLatest = true
	if degraded != nil {
		c.lastErr = degraded
		c.lastErrAt = now
	} else {
		c.lastErr = nil
	}
	c.mu.Unlock()

	if degraded != nil {
		c.logger.Warn("degraded snapshot published",
			slog.Int("live_sources", health.LiveCount),
			slog.Float64("divergence_bps", health.DivergenceBps),
			slog.Any("error", degraded))
		return snap, degraded
	}

	c.logger.Debug("snapshot published",
		slog.Float64("price", snap.Price),
		slog.Float64("price_ratio", snap.PriceRatio),
		slog.Float64("volume_24h", snap.Volume24h))
	return snap, nil
}

// Latest returns the most recent snapshot, degraded or not.
func (c *Collector) Latest() (domain.MarketSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.haveLatest
}

// LastError reports the most recent degraded cycle, if the latest cycle was
// degraded. A healthy cycle clears it.
func (c *Collector) LastError() (error, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr, c.lastErrAt
}

func (c *Collector) recordError(err error, at time.Time) {
	c.mu.Lock()
	c.lastErr = err
	c.lastErrAt = at
	c.mu.Unlock()
}

func (c *Collector) recordSupply(v float64, ts time.Time) {
	c.mu.Lock()
	c.supplyHist = appendTrimmed(c.supplyHist, observation{value: v, ts: ts}, 25*time.Hour)
	c.mu.Unlock()
}

func (c *Collector) recordLiquidity(v float64, ts time.Time) {
	c.mu.Lock()
	c.liqHist = appendTrimmed(c.liqHist, observation{value: v, ts: ts}, 2*time.Hour)
	c.mu.Unlock()
}

// appendTrimmed appends and drops observations older than keep.
func appendTrimmed(hist []observation, obs observation, keep time.Duration) []observation {
	hist = append(hist, obs)
	cutoff := obs.ts.Add(-keep)
	i := 0
	for i < len(hist) && hist[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		hist = append(hist[:0], hist[i:]...)
	}
	return hist
}

// lookupLagged returns the observation closest to target, or zero when the
// history does not reach back that far yet.
func lookupLagged(hist []observation, target time.Time) float64 {
	if len(hist) == 0 {
		return 0
	}
	best := hist[0]
	bestGap := absDuration(hist[0].ts.Sub(target))
	for _, o := range hist[1:] {
		if gap := absDuration(o.ts.Sub(target)); gap < bestGap {
			best, bestGap = o, gap
		}
	}
	// Require the history to actually cover the lag: otherwise a fresh
	// process would report current values as the lagged baseline.
	if bestGap > 15*time.Minute {
		return 0
	}
	return best.value
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
