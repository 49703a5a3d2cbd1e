package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// targetMint is the lease key and operation target for supply adjustments.
// Buyback and supply agents act on different resources, so their leases are
// independent.
const targetMint = "mint"

type snapshotSource interface {
	Latest() (domain.MarketSnapshot, bool)
}

type breakerGate interface {
	Status() domain.BreakerStatus
}

type supplyExecutor interface {
	SubmitSupplyAdjustment(ctx context.Context, req domain.SupplyRequest) error
}

type alerter interface {
	Trigger(ctx context.Context, severity domain.Severity, alertType, message string, metadata map[string]string)
}

// SupplyBotConfig holds the agent cadence and lease tuning.
type SupplyBotConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	LeaseTTL   time.Duration
}

// DefaultSupplyBotConfig returns the production cadence.
func DefaultSupplyBotConfig() SupplyBotConfig {
	return SupplyBotConfig{
		Interval:   5 * time.Minute,
		StaleAfter: 2 * time.Minute,
		LeaseTTL:   30 * time.Second,
	}
}

// SupplyBot drives the PID controller on its own timer: it reads the latest
// snapshot, asks the controller for a proposal, and submits mint/burn
// requests to the gateway when the breaker permits them.
type SupplyBot struct {
	cfg      SupplyBotConfig
	pid      *PID
	snaps    snapshotSource
	breaker  breakerGate
	executor supplyExecutor
	locks    domain.LockManager
	ops      domain.BotOpStore
	alerts   alerter
	logger   *slog.Logger
}

// NewSupplyBot wires the agent. The op store and alerter may be nil in tests.
func NewSupplyBot(
	cfg SupplyBotConfig,
	pid *PID,
	snaps snapshotSource,
	breaker breakerGate,
	executor supplyExecutor,
	locks domain.LockManager,
	ops domain.BotOpStore,
	alerts alerter,
	logger *slog.Logger,
) *SupplyBot {
	if cfg.Interval <= 0 {
		cfg = DefaultSupplyBotConfig()
	}
	return &SupplyBot{
		cfg:      cfg,
		pid:      pid,
		snaps:    snaps,
		breaker:  breaker,
		executor: executor,
		locks:    locks,
		ops:      ops,
		alerts:   alerts,
		logger:   logger.With(slog.String("component", "supply_bot")),
	}
}

// Run executes control cycles until the context is cancelled. A failed cycle
// is logged and escalated as a monitoring error, never fatal.
func (b *SupplyBot) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	b.logger.Info("supply bot started", slog.Duration("interval", b.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("supply bot stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := b.cycle(ctx); err != nil {
				b.logger.Error("control cycle failed", slog.Any("error", err))
				if b.alerts != nil {
					b.alerts.Trigger(ctx, domain.SeverityMedium, domain.AlertMonitoringError,
						fmt.Sprintf("supply control cycle failed: %v", err),
						map[string]string{"agent": "supply_bot"})
				}
			}
		}
	}
}

// cycle runs one control pass. Skips (stale data, cooldown, breaker
// restriction, lease held elsewhere) return nil; only real failures surface.
func (b *SupplyBot) cycle(ctx context.Context) error {
	snap, ok := b.snaps.Latest()
	if !ok || time.Since(snap.Timestamp) > b.cfg.StaleAfter {
		b.logger.Debug("no fresh snapshot, skipping cycle")
		return nil
	}
	if snap.Price <= 0 {
		// Degraded snapshot: consensus failed this cycle. Price-dependent
		// actions stop hard.
		b.logger.Warn("skipping cycle on degraded snapshot")
		return nil
	}
	if snap.EmergencyPaused {
		b.logger.Debug("protocol emergency-paused, skipping cycle")
		return nil
	}

	if status := b.breaker.Status(); !status.AllowsSupplyAdjustment() {
		b.logger.Info("supply adjustment restricted by circuit breaker",
			slog.String("severity", status.Severity.String()))
		return nil
	}

	unlock, err := b.locks.Acquire(ctx, targetMint, b.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			b.logger.Debug("mint lease held by another agent, skipping cycle")
			return nil
		}
		return fmt.Errorf("acquire mint lease: %w", err)
	}
	defer unlock()

	// The floor only ratchets upward; steer toward the current one.
	b.pid.SetTarget(snap.FloorPrice)

	adj, err := b.pid.Propose(time.Now().UTC(), snap.Price, snap.CirculatingSupply)
	if err != nil {
		if errors.Is(err, ErrCooldownActive) {
			return nil
		}
		return fmt.Errorf("pid proposal: %w", err)
	}
	if adj.Type == domain.AdjustmentNone || adj.Amount <= 0 {
		b.logger.Debug("no adjustment needed", slog.String("reason", adj.Reason))
		return nil
	}

	req := domain.SupplyRequest{
		Type:   adj.Type,
		Amount: adj.Amount,
		Reason: adj.Reason,
	}
	if err := b.executor.SubmitSupplyAdjustment(ctx, req); err != nil {
		return fmt.Errorf("submit %s of %.0f: %w", adj.Type, adj.Amount, err)
	}

	if b.ops != nil {
		op := domain.BotOperation{
			Agent:  "supply_bot",
			OpType: string(adj.Type),
			Target: targetMint,
			Detail: map[string]any{
				"amount": adj.Amount,
				"output": adj.Output,
				"reason": adj.Reason,
			},
			Timestamp: time.Now().UTC(),
		}
		if err := b.ops.Append(ctx, op); err != nil {
			b.logger.Warn("bot operation log failed", slog.Any("error", err))
		}
	}

	b.logger.Info("supply adjustment submitted",
		slog.String("type", string(adj.Type)),
		slog.Float64("amount", adj.Amount),
		slog.Float64("price", snap.Price))

	if b.alerts != nil {
		b.alerts.Trigger(ctx, domain.SeverityLow, domain.AlertSupplyAdjustment,
			fmt.Sprintf("%s %.0f tokens: %s", adj.Type, adj.Amount, adj.Reason),
			map[string]string{
				"agent":  "supply_bot",
				"type":   string(adj.Type),
				"amount": fmt.Sprintf("%.0f", adj.Amount),
			})
	}
	return nil
}
