package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// AggregatorConfig holds the consensus parameters.
type AggregatorConfig struct {
	// PerSourceTimeout bounds each individual fetch. A source that misses
	// its deadline is dropped for the cycle, not retried.
	PerSourceTimeout time.Duration
	// MinSources is the quorum; aggregation fails below it.
	MinSources int
	// MaxDivergenceBps is the max/min spread bound across surviving
	// samples. This is deliberately tighter than the circuit breaker's
	// divergence alarm: it gates price-dependent actions.
	MaxDivergenceBps float64
}

// DefaultAggregatorConfig mirrors the protocol's oracle parameters: quorum of
// two and a 2% divergence gate.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		PerSourceTimeout: 5 * time.Second,
		MinSources:       2,
		MaxDivergenceBps: 200,
	}
}

// Aggregator fetches all configured sources in parallel and computes the
// confidence-weighted consensus price. It is stateless between cycles apart
// from the source list; callers own the cadence.
type Aggregator struct {
	sources []FeedSource
	cfg     AggregatorConfig
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator over the given sources.
func NewAggregator(sources []FeedSource, cfg AggregatorConfig, logger *slog.Logger) *Aggregator {
	if cfg.PerSourceTimeout <= 0 {
		cfg.PerSourceTimeout = 5 * time.Second
	}
	if cfg.MinSources < 2 {
		cfg.MinSources = 2
	}
	return &Aggregator{
		sources: sources,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "oracle_aggregator")),
	}
}

// fetchResult carries one source's outcome through the fan-in channel.
type fetchResult struct {
	source string
	sample domain.PriceSample
	stale  bool
	err    error
}

// fetchAll queries every source concurrently, each under its own timeout.
func (a *Aggregator) fetchAll(ctx context.Context) []fetchResult {
	results := make([]fetchResult, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src FeedSource) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.PerSourceTimeout)
			defer cancel()

			sample, err := src.Fetch(fetchCtx)
			res := fetchResult{source: src.Name(), sample: sample, err: err}
			if err == nil {
				age := time.Since(sample.Timestamp)
				res.stale = age > src.MaxStaleness()
			}
			results[i] = res
		}(i, src)
	}
	wg.Wait()

	return results
}

// validSample reports whether a fetched sample carries a usable price.
func validSample(s domain.PriceSample) bool {
	return s.Price > 0 && !math.IsNaN(s.Price) && !math.IsInf(s.Price, 0)
}

// divergenceBps returns the max/min spread in basis points of the minimum.
func divergenceBps(samples []domain.PriceSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	min, max := samples[0].Price, samples[0].Price
	for _, s := range samples[1:] {
		if s.Price < min {
			min = s.Price
		}
		if s.Price > max {
			max = s.Price
		}
	}
	return (max - min) / min * 10_000
}

// ConsensusPrice fetches all sources and returns the confidence-weighted
// consensus. It fails hard rather than silently averaging: quorum violations
// return ErrInsufficientSources (or ErrAllSourcesStale when staleness alone
// killed the quorum), and a spread beyond the divergence bound returns
// ErrDivergenceExceeded.
func (a *Aggregator) ConsensusPrice(ctx context.Context) (domain.AggregatedPrice, error) {
	results := a.fetchAll(ctx)

	var (
		live       []domain.PriceSample
		staleCount int
	)
	for _, res := range results {
		switch {
		case res.err != nil:
			a.logger.Warn("oracle source failed",
				slog.String("source", res.source),
				slog.String("error", res.err.Error()),
			)
		case !validSample(res.sample):
			a.logger.Warn("oracle source returned invalid price",
				slog.String("source", res.source),
				slog.Float64("price", res.sample.Price),
			)
		case res.stale:
			staleCount++
			a.logger.Warn("oracle source stale",
				slog.String("source", res.source),
				slog.Duration("age", time.Since(res.sample.Timestamp)),
			)
		default:
			live = append(live, res.sample)
		}
	}

	if len(live) < a.cfg.MinSources {
		if len(live) == 0 && staleCount == len(a.sources) && staleCount > 0 {
			return domain.AggregatedPrice{}, domain.ErrAllSourcesStale
		}
		return domain.AggregatedPrice{}, fmt.Errorf("%w: %d live of %d required",
			domain.ErrInsufficientSources, len(live), a.cfg.MinSources)
	}

	if div := divergenceBps(live); div > a.cfg.MaxDivergenceBps {
		return domain.AggregatedPrice{}, fmt.Errorf("%w: %.0f bps exceeds %.0f bps",
			domain.ErrDivergenceExceeded, div, a.cfg.MaxDivergenceBps)
	}

	return weightedConsensus(live), nil
}

// weightedConsensus computes the inverse-confidence weighted mean, so sources
// reporting tighter confidence intervals dominate the average.
func weightedConsensus(samples []domain.PriceSample) domain.AggregatedPrice {
	var priceSum, confSum, weightSum float64
	for _, s := range samples {
		conf := s.Confidence
		if conf <= 0 {
			// A source claiming perfect confidence still gets a floor so it
			// cannot drown out everyone else.
			conf = s.Price * 1e-6
		}
		w := 1 / conf
		priceSum += s.Price * w
		confSum += s.Confidence * w
		weightSum += w
	}

	return domain.AggregatedPrice{
		Price:      priceSum / weightSum,
		Confidence: confSum / weightSum,
		Samples:    samples,
		Timestamp:  time.Now().UTC(),
	}
}

// CheckHealth fetches all sources and reports per-source liveness plus the
// divergence across whichever sources are currently live. Unlike
// ConsensusPrice it never fails; a fully dead oracle set is reported as
// zero live sources for the breaker to act on.
func (a *Aggregator) CheckHealth(ctx context.Context) domain.OracleHealth {
	results := a.fetchAll(ctx)

	health := domain.OracleHealth{
		Sources:   make([]domain.SourceHealth, 0, len(results)),
		CheckedAt: time.Now().UTC(),
	}

	var live []domain.PriceSample
	for _, res := range results {
		sh := domain.SourceHealth{Source: res.source}
		switch {
		case res.err != nil:
			sh.Err = res.err.Error()
		case !validSample(res.sample):
			sh.Err = fmt.Sprintf("invalid price %v", res.sample.Price)
		case res.stale:
			sh.Stale = true
			sh.LastPrice = res.sample.Price
			sh.Age = time.Since(res.sample.Timestamp)
		default:
			sh.Live = true
			sh.LastPrice = res.sample.Price
			sh.Age = time.Since(res.sample.Timestamp)
			live = append(live, res.sample)
		}
		health.Sources = append(health.Sources, sh)
	}

	health.LiveCount = len(live)
	health.DivergenceBps = divergenceBps(live)
	return health
}
