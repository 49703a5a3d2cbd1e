package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/twistlabs/guardian/internal/domain"
)

type alerter interface {
	Trigger(ctx context.Context, severity domain.Severity, alertType, message string, metadata map[string]string)
}

// riskSink receives critical analyses as circuit-breaker trip signals.
type riskSink interface {
	InjectExternal(ctx context.Context, result domain.TripResult)
}

// Config holds the indicator thresholds and verdict cut-offs.
type Config struct {
	VelocityMax    int
	VelocityWindow time.Duration

	CyclingWindow   time.Duration
	MaxWalletsPerIP int

	AmountSpikeMult   float64
	RepeatedAmountMax int

	TimePatternMinEvents int
	TimePatternMaxStd    time.Duration
	TimePatternMaxMean   time.Duration

	ClickRateMax    int
	ClickRateWindow time.Duration
	GeoWindow       time.Duration
	GeoCountryMax   int
	GeoMinVolume    int
	MinUALength     int

	BotUASignatures     []string
	SuspiciousReferrers []string

	BlockThreshold  float64
	ReviewThreshold float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		VelocityMax:          10,
		VelocityWindow:       time.Hour,
		CyclingWindow:        7 * 24 * time.Hour,
		MaxWalletsPerIP:      5,
		AmountSpikeMult:      5,
		RepeatedAmountMax:    4,
		TimePatternMinEvents: 5,
		TimePatternMaxStd:    5 * time.Second,
		TimePatternMaxMean:   time.Minute,
		ClickRateMax:         100,
		ClickRateWindow:      10 * time.Minute,
		GeoWindow:            time.Hour,
		GeoCountryMax:        5,
		GeoMinVolume:         50,
		MinUALength:          20,
		BotUASignatures: []string{
			"bot", "crawler", "spider", "headless", "phantomjs", "selenium", "curl", "python-requests",
		},
		SuspiciousReferrers: []string{
			"click-farm", "traffic-exchange", "paidclicks", "ptc.",
		},
		BlockThreshold:  80,
		ReviewThreshold: 50,
	}
}

// Engine analyzes behavioral events. Indicator checks run over pre-fetched
// history windows, so the checks themselves never touch storage.
type Engine struct {
	cfg    Config
	events domain.EventStore
	cases  domain.FraudCaseStore
	alerts alerter
	risk   riskSink
	logger *slog.Logger
}

// NewEngine wires the engine. The case store, alerter, and risk sink may be
// nil in tests.
func NewEngine(
	cfg Config,
	events domain.EventStore,
	cases domain.FraudCaseStore,
	alerts alerter,
	risk riskSink,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:    cfg,
		events: events,
		cases:  cases,
		alerts: alerts,
		risk:   risk,
		logger: logger.With(slog.String("component", "fraud_engine")),
	}
}

// normalizeWallet canonicalizes a bridged EVM address to its checksummed
// form so the same wallet can never evade the cycling check through casing.
// An unparseable wallet is dropped, not fatal.
func normalizeWallet(wallet string) (string, bool) {
	if !common.IsHexAddress(wallet) {
		return "", false
	}
	return common.HexToAddress(wallet).Hex(), true
}

// AnalyzeStake persists the event, runs the stake indicator battery over its
// history windows, and acts on the verdict.
func (e *Engine) AnalyzeStake(ctx context.Context, ev domain.StakeEvent) (domain.FraudAnalysis, error) {
	now := time.Now().UTC()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	if ev.Subject == "" || ev.Amount < 0 {
		return domain.FraudAnalysis{}, fmt.Errorf("fraud: invalid stake event for subject %q", ev.Subject)
	}

	if normalized, ok := normalizeWallet(ev.CounterpartyWallet); ok {
		ev.CounterpartyWallet = normalized
	} else if ev.CounterpartyWallet != "" {
		e.logger.Warn("unparseable counterparty wallet dropped",
			slog.String("subject", ev.Subject))
		ev.CounterpartyWallet = ""
	}

	sc, err := e.hydrateStake(ctx, ev, now)
	if err != nil {
		return domain.FraudAnalysis{}, err
	}
	if err := e.events.InsertStake(ctx, ev); err != nil {
		return domain.FraudAnalysis{}, fmt.Errorf("fraud: persist stake event: %w", err)
	}

	var indicators []domain.FraudIndicator
	for _, check := range e.stakeChecks() {
		if ind := check(sc); ind != nil {
			indicators = append(indicators, *ind)
		}
	}

	analysis := e.assemble([]string{ev.Subject}, indicators, now)
	e.act(ctx, ev.Subject, analysis)
	return analysis, nil
}

// AnalyzeClick persists the event, runs the click indicator battery, and
// acts on the verdict. A block recommendation means the click is denied.
func (e *Engine) AnalyzeClick(ctx context.Context, ev domain.ClickEvent) (domain.FraudAnalysis, error) {
	now := time.Now().UTC()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	if ev.Subject == "" || ev.LinkID == "" {
		return domain.FraudAnalysis{}, fmt.Errorf("fraud: invalid click event for subject %q", ev.Subject)
	}

	cc, err := e.hydrateClick(ctx, ev, now)
	if err != nil {
		return domain.FraudAnalysis{}, err
	}
	if err := e.events.InsertClick(ctx, ev); err != nil {
		return domain.FraudAnalysis{}, fmt.Errorf("fraud: persist click event: %w", err)
	}

	var indicators []domain.FraudIndicator
	for _, check := range e.clickChecks() {
		if ind := check(cc); ind != nil {
			indicators = append(indicators, *ind)
		}
	}

	analysis := e.assemble([]string{ev.Subject}, indicators, now)
	e.act(ctx, ev.Subject, analysis)
	return analysis, nil
}

// Score combines fired indicators into a 0-100 risk score: the
// severity-weighted average of indicator confidences.
func Score(indicators []domain.FraudIndicator) float64 {
	var weighted, weights float64
	for _, ind := range indicators {
		conf := ind.Confidence
		if conf < 0 {
			continue // malformed indicator, skip rather than abort
		}
		if conf > 100 {
			conf = 100
		}
		w := ind.Severity.Weight()
		weighted += w * conf
		weights += w
	}
	if weights == 0 {
		return 0
	}
	score := weighted / weights
	if score > 100 {
		score = 100
	}
	return score
}

// Recommend maps a score onto the verdict.
func (e *Engine) Recommend(score float64) domain.Recommendation {
	switch {
	case score >= e.cfg.BlockThreshold:
		return domain.RecommendationBlock
	case score >= e.cfg.ReviewThreshold:
		return domain.RecommendationReview
	default:
		return domain.RecommendationAllow
	}
}

func (e *Engine) assemble(subjects []string, indicators []domain.FraudIndicator, now time.Time) domain.FraudAnalysis {
	score := Score(indicators)
	return domain.FraudAnalysis{
		Subjects:       subjects,
		Score:          score,
		Indicators:     indicators,
		Recommendation: e.Recommend(score),
		AnalyzedAt:     now,
	}
}

// act applies the verdict: review queues a case for manual inspection, block
// raises an alert and injects a breaker trip signal at critical severity.
func (e *Engine) act(ctx context.Context, subject string, analysis domain.FraudAnalysis) {
	switch analysis.Recommendation {
	case domain.RecommendationReview:
		if e.cases == nil {
			return
		}
		c := domain.FraudCase{
			ID:         uuid.NewString(),
			Subject:    subject,
			Score:      analysis.Score,
			Indicators: analysis.Indicators,
			Status:     domain.FraudCaseOpen,
			CreatedAt:  analysis.AnalyzedAt,
		}
		if err := e.cases.Create(ctx, c); err != nil {
			e.logger.Error("review case creation failed",
				slog.String("subject", subject), slog.Any("error", err))
			return
		}
		e.logger.Info("review case queued",
			slog.String("subject", subject),
			slog.Float64("score", analysis.Score))

	case domain.RecommendationBlock:
		e.logger.Warn("subject blocked",
			slog.String("subject", subject),
			slog.Float64("score", analysis.Score))

		if e.alerts != nil {
			e.alerts.Trigger(ctx, analysis.MaxSeverity(), domain.AlertFraudDetected,
				fmt.Sprintf("subject %s blocked with risk score %.0f", subject, analysis.Score),
				map[string]string{
					"subject": subject,
					"score":   fmt.Sprintf("%.0f", analysis.Score),
				})
		}
		if e.risk != nil && analysis.MaxSeverity() == domain.SeverityCritical {
			e.risk.InjectExternal(ctx, domain.TripResult{
				Condition: "fraud_escalation",
				Tripped:   true,
				Severity:  domain.SeverityCritical,
				Message:   fmt.Sprintf("critical fraud score %.0f for subject %s", analysis.Score, subject),
			})
		}
	}
}
