package buyback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// targetPool is the lease key and operation target for buyback orders.
const targetPool = "pool"

// BudgetKey is the daily spend counter in the budget ledger. The app resets
// it at each UTC midnight.
const BudgetKey = "buyback"

type snapshotSource interface {
	Latest() (domain.MarketSnapshot, bool)
}

type breakerGate interface {
	Status() domain.BreakerStatus
}

type buybackExecutor interface {
	SubmitBuyback(ctx context.Context, req domain.BuybackRequest) error
}

type alerter interface {
	Trigger(ctx context.Context, severity domain.Severity, alertType, message string, metadata map[string]string)
}

// BotConfig holds the agent cadence and budget.
type BotConfig struct {
	Interval    time.Duration
	StaleAfter  time.Duration
	LeaseTTL    time.Duration
	DailyBudget float64
}

// DefaultBotConfig returns the production cadence.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Interval:    time.Minute,
		StaleAfter:  2 * time.Minute,
		LeaseTTL:    30 * time.Second,
		DailyBudget: 100_000,
	}
}

// Bot runs the buyback strategy on its own timer. Each cycle reads the
// latest snapshot, checks the breaker and market-favorability gates,
// reserves budget atomically, and submits the order through the gateway.
type Bot struct {
	cfg      BotConfig
	strategy *Strategy
	snaps    snapshotSource
	breaker  breakerGate
	executor buybackExecutor
	locks    domain.LockManager
	budget   domain.BudgetLedger
	ops      domain.BotOpStore
	alerts   alerter
	logger   *slog.Logger
}

// NewBot wires the agent. The op store and alerter may be nil in tests.
func NewBot(
	cfg BotConfig,
	strategy *Strategy,
	snaps snapshotSource,
	breaker breakerGate,
	executor buybackExecutor,
	locks domain.LockManager,
	budget domain.BudgetLedger,
	ops domain.BotOpStore,
	alerts alerter,
	logger *slog.Logger,
) *Bot {
	if cfg.Interval <= 0 {
		cfg = DefaultBotConfig()
	}
	return &Bot{
		cfg:      cfg,
		strategy: strategy,
		snaps:    snaps,
		breaker:  breaker,
		executor: executor,
		locks:    locks,
		budget:   budget,
		ops:      ops,
		alerts:   alerts,
		logger:   logger.With(slog.String("component", "buyback_bot")),
	}
}

// Run executes buyback cycles until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	b.logger.Info("buyback bot started",
		slog.Duration("interval", b.cfg.Interval),
		slog.Float64("daily_budget", b.cfg.DailyBudget))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("buyback bot stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := b.cycle(ctx); err != nil {
				b.logger.Error("buyback cycle failed", slog.Any("error", err))
				if b.alerts != nil {
					b.alerts.Trigger(ctx, domain.SeverityMedium, domain.AlertMonitoringError,
						fmt.Sprintf("buyback cycle failed: %v", err),
						map[string]string{"agent": "buyback_bot"})
				}
			}
		}
	}
}

// cycle runs one decision pass. Gate skips return nil; only submission and
// infrastructure failures surface as errors.
func (b *Bot) cycle(ctx context.Context) error {
	snap, ok := b.snaps.Latest()
	if !ok || time.Since(snap.Timestamp) > b.cfg.StaleAfter {
		b.logger.Debug("no fresh snapshot, skipping cycle")
		return nil
	}
	if snap.Price <= 0 {
		b.logger.Warn("skipping cycle on degraded snapshot")
		return nil
	}
	if snap.EmergencyPaused {
		b.logger.Debug("protocol emergency-paused, skipping cycle")
		return nil
	}

	if status := b.breaker.Status(); !status.AllowsBuyback() {
		b.logger.Info("buyback disabled by circuit breaker",
			slog.String("severity", status.Severity.String()))
		return nil
	}

	if favorable, reason := b.strategy.IsMarketFavorable(snap, time.Now()); !favorable {
		b.logger.Info("market unfavorable, holding back", slog.String("reason", reason))
		return nil
	}

	spent, err := b.budget.Spent(ctx, BudgetKey)
	if err != nil {
		return fmt.Errorf("read budget: %w", err)
	}
	remaining := b.cfg.DailyBudget - spent

	decision := b.strategy.Decide(snap, remaining)
	if !decision.Trigger {
		b.logger.Debug("no buyback", slog.String("reason", decision.Reason))
		return nil
	}

	unlock, err := b.locks.Acquire(ctx, targetPool, b.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			b.logger.Debug("pool lease held by another agent, skipping cycle")
			return nil
		}
		return fmt.Errorf("acquire pool lease: %w", err)
	}
	defer unlock()

	// Atomic reservation: concurrent spenders can never oversubscribe.
	if _, err := b.budget.Reserve(ctx, BudgetKey, decision.Amount, b.cfg.DailyBudget); err != nil {
		if errors.Is(err, domain.ErrBudgetExhausted) {
			b.logger.Info("daily buyback budget exhausted",
				slog.Float64("requested", decision.Amount))
			return nil
		}
		return fmt.Errorf("reserve budget: %w", err)
	}

	req := domain.BuybackRequest{
		Amount:         decision.Amount,
		MaxSlippageBps: decision.MaxSlippageBps,
		Reason:         decision.Reason,
	}
	if err := b.executor.SubmitBuyback(ctx, req); err != nil {
		// Return the reservation so a transient gateway failure does not
		// burn budget.
		if relErr := b.budget.Release(ctx, BudgetKey, decision.Amount); relErr != nil {
			b.logger.Error("budget release failed", slog.Any("error", relErr))
		}
		return fmt.Errorf("submit buyback of %.0f: %w", decision.Amount, err)
	}

	if b.ops != nil {
		op := domain.BotOperation{
			Agent:  "buyback_bot",
			OpType: "buyback",
			Target: targetPool,
			Detail: map[string]any{
				"amount":       decision.Amount,
				"max_slippage": decision.MaxSlippageBps,
				"price_ratio":  snap.PriceRatio,
			},
			Timestamp: time.Now().UTC(),
		}
		if err := b.ops.Append(ctx, op); err != nil {
			b.logger.Warn("bot operation log failed", slog.Any("error", err))
		}
	}

	b.logger.Info("buyback submitted",
		slog.Float64("amount", decision.Amount),
		slog.Float64("max_slippage_bps", decision.MaxSlippageBps),
		slog.Float64("price_ratio", snap.PriceRatio))

	if b.alerts != nil {
		b.alerts.Trigger(ctx, domain.SeverityLow, domain.AlertBuybackExecuted,
			fmt.Sprintf("buyback of %.0f submitted: %s", decision.Amount, decision.Reason),
			map[string]string{
				"agent":  "buyback_bot",
				"amount": fmt.Sprintf("%.0f", decision.Amount),
			})
	}
	return nil
}
