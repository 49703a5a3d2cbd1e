package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

type snapshotSource interface {
	Latest() (domain.MarketSnapshot, bool)
}

type breakerExecutor interface {
	ReportBreakerState(ctx context.Context, change domain.BreakerStateChange) error
	ApplyRestrictions(ctx context.Context, r domain.Restrictions) error
}

type alerter interface {
	Trigger(ctx context.Context, severity domain.Severity, alertType, message string, metadata map[string]string)
}

// MonitorConfig holds the poll cadence and staleness bound.
type MonitorConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

// DefaultMonitorConfig returns the production cadence.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:   30 * time.Second,
		StaleAfter: 3 * time.Minute,
	}
}

// Monitor drives the breaker: each cycle it evaluates the condition battery
// against the latest snapshot, pushes state changes and restrictions to the
// gateway, and auto-resets once cooldowns elapse. A missing or stale
// snapshot is itself a trip condition, never an uncaught failure.
type Monitor struct {
	cfg       MonitorConfig
	machine   *Machine
	evaluator *Evaluator
	snaps     snapshotSource
	executor  breakerExecutor
	alerts    alerter
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewMonitor wires the monitor. The alerter and audit store may be nil in
// tests.
func NewMonitor(
	cfg MonitorConfig,
	machine *Machine,
	evaluator *Evaluator,
	snaps snapshotSource,
	executor breakerExecutor,
	alerts alerter,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg = DefaultMonitorConfig()
	}
	return &Monitor{
		cfg:       cfg,
		machine:   machine,
		evaluator: evaluator,
		snaps:     snaps,
		executor:  executor,
		alerts:    alerts,
		audit:     audit,
		logger:    logger.With(slog.String("component", "breaker_monitor")),
	}
}

// Machine exposes the underlying state machine for gating reads.
func (m *Monitor) Machine() *Machine { return m.machine }

// Status reports the current breaker state including trip history.
func (m *Monitor) Status() domain.BreakerStatus { return m.machine.Status() }

// ManualReset attempts an operator-initiated reset. The cooldown deadline
// still applies; on success restrictions are lifted the same way an
// auto-reset lifts them.
func (m *Monitor) ManualReset(ctx context.Context) error {
	if err := m.machine.TryReset(time.Now().UTC()); err != nil {
		return err
	}
	m.onReset(ctx)
	return nil
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("breaker monitor started", slog.Duration("interval", m.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("breaker monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

// cycle evaluates one poll. All failures inside a cycle are logged and
// alerted, never propagated.
func (m *Monitor) cycle(ctx context.Context) {
	now := time.Now().UTC()

	snap, ok := m.snaps.Latest()
	if !ok || now.Sub(snap.Timestamp) > m.cfg.StaleAfter {
		// Monitoring itself has failed; that is a high-severity condition in
		// its own right.
		result := domain.TripResult{
			Condition: CondMonitoringError,
			Tripped:   true,
			Severity:  domain.SeverityHigh,
			Message:   "no fresh market snapshot",
		}
		if m.machine.TripExternal(now, result) {
			m.onTrip(ctx, result)
		}
		return
	}

	if changed, winner := m.machine.Evaluate(now, m.evaluator.EvaluateAll(snap)); changed {
		m.onTrip(ctx, winner)
	}

	if m.machine.DueForAutoReset(now) {
		if err := m.machine.TryReset(now); err == nil {
			m.onReset(ctx)
		}
	}
}

// InjectExternal feeds an out-of-band risk signal (fraud escalation,
// coordinator conflict) into the machine and applies the transition if it
// escalates the state.
func (m *Monitor) InjectExternal(ctx context.Context, result domain.TripResult) {
	if m.machine.TripExternal(time.Now().UTC(), result) {
		m.onTrip(ctx, result)
	}
}

func (m *Monitor) onTrip(ctx context.Context, result domain.TripResult) {
	status := m.machine.Status()

	m.logger.Warn("circuit breaker tripped",
		slog.String("condition", result.Condition),
		slog.String("severity", result.Severity.String()),
		slog.String("message", result.Message))

	change := domain.BreakerStateChange{
		Active:   true,
		Severity: result.Severity,
		Reason:   fmt.Sprintf("%s: %s", result.Condition, result.Message),
	}
	if err := m.executor.ReportBreakerState(ctx, change); err != nil {
		m.logger.Error("breaker state report failed", slog.Any("error", err))
	}
	if err := m.executor.ApplyRestrictions(ctx, status.Restrictions); err != nil {
		m.logger.Error("restriction apply failed", slog.Any("error", err))
	}

	if m.alerts != nil {
		m.alerts.Trigger(ctx, result.Severity, domain.AlertCircuitBreakerTrip,
			fmt.Sprintf("circuit breaker tripped %s: %s", result.Severity, result.Message),
			map[string]string{
				"condition": result.Condition,
				"deadline":  status.ResetDeadline.Format(time.RFC3339),
			})
	}
	if m.audit != nil {
		if err := m.audit.Log(ctx, "breaker_trip", map[string]any{
			"condition": result.Condition,
			"severity":  result.Severity.String(),
			"message":   result.Message,
		}); err != nil {
			m.logger.Warn("audit log failed", slog.Any("error", err))
		}
	}
}

func (m *Monitor) onReset(ctx context.Context) {
	m.logger.Info("circuit breaker reset, restrictions lifted")

	change := domain.BreakerStateChange{Active: false, Reason: "cooldown elapsed"}
	if err := m.executor.ReportBreakerState(ctx, change); err != nil {
		m.logger.Error("breaker state report failed", slog.Any("error", err))
	}
	if err := m.executor.ApplyRestrictions(ctx, domain.Restrictions{}); err != nil {
		m.logger.Error("restriction clear failed", slog.Any("error", err))
	}

	if m.alerts != nil {
		m.alerts.Trigger(ctx, domain.SeverityLow, domain.AlertCircuitBreakerReset,
			"circuit breaker reset after cooldown", nil)
	}
	if m.audit != nil {
		if err := m.audit.Log(ctx, "breaker_reset", nil); err != nil {
			m.logger.Warn("audit log failed", slog.Any("error", err))
		}
	}
}
