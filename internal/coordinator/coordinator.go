// Package coordinator audits the append-only bot operation log for temporal
// conflicts: two different agents acting on the same target within a short
// window. Detection and reporting only; mutual exclusion is enforced by the
// per-target leases agents take before acting.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

type alerter interface {
	Trigger(ctx context.Context, severity domain.Severity, alertType, message string, metadata map[string]string)
}

// Config holds the scan cadence and conflict window.
type Config struct {
	Interval       time.Duration
	ConflictWindow time.Duration
	Lookback       time.Duration
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		Interval:       time.Minute,
		ConflictWindow: 3 * time.Second,
		Lookback:       5 * time.Minute,
	}
}

// Coordinator periodically scans recent bot operations and raises an alert
// for every new conflict pair.
type Coordinator struct {
	cfg    Config
	ops    domain.BotOpStore
	alerts alerter
	logger *slog.Logger

	// seen deduplicates already-reported pairs across overlapping scans.
	seen map[string]time.Time
}

// New creates a coordinator. The alerter may be nil in tests.
func New(cfg Config, ops domain.BotOpStore, alerts alerter, logger *slog.Logger) *Coordinator {
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}
	return &Coordinator{
		cfg:    cfg,
		ops:    ops,
		alerts: alerts,
		logger: logger.With(slog.String("component", "coordinator")),
		seen:   make(map[string]time.Time),
	}
}

// Run scans until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.Info("coordinator started",
		slog.Duration("window", c.cfg.ConflictWindow))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := c.Scan(ctx); err != nil {
				c.logger.Error("conflict scan failed", slog.Any("error", err))
			}
		}
	}
}

// Scan loads the lookback window of operations and reports new conflicts.
func (c *Coordinator) Scan(ctx context.Context) error {
	now := time.Now().UTC()
	ops, err := c.ops.ListWindow(ctx, now.Add(-c.cfg.Lookback), now)
	if err != nil {
		return fmt.Errorf("coordinator: list operations: %w", err)
	}

	conflicts := c.FindConflicts(ops)
	for _, conflict := range conflicts {
		key := conflictKey(conflict)
		if _, reported := c.seen[key]; reported {
			continue
		}
		c.seen[key] = now
		c.report(ctx, conflict)
	}

	// Drop dedup entries that have aged out of the lookback window.
	for key, at := range c.seen {
		if now.Sub(at) > 2*c.cfg.Lookback {
			delete(c.seen, key)
		}
	}
	return nil
}

// FindConflicts flags every pair of operations from different agents hitting
// the same target within the conflict window.
func (c *Coordinator) FindConflicts(ops []domain.BotOperation) []domain.OpConflict {
	sorted := make([]domain.BotOperation, len(ops))
	copy(sorted, ops)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var conflicts []domain.OpConflict
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			gap := sorted[j].Timestamp.Sub(sorted[i].Timestamp)
			if gap > c.cfg.ConflictWindow {
				break // sorted by time: later entries only widen the gap
			}
			if sorted[i].Agent == sorted[j].Agent {
				continue
			}
			if sorted[i].Target != sorted[j].Target {
				continue
			}
			conflicts = append(conflicts, domain.OpConflict{
				First:  sorted[i],
				Second: sorted[j],
				Gap:    gap,
			})
		}
	}
	return conflicts
}

func (c *Coordinator) report(ctx context.Context, conflict domain.OpConflict) {
	c.logger.Warn("bot operation conflict",
		slog.String("first_agent", conflict.First.Agent),
		slog.String("second_agent", conflict.Second.Agent),
		slog.String("target", conflict.First.Target),
		slog.Duration("gap", conflict.Gap))

	if c.alerts == nil {
		return
	}
	c.alerts.Trigger(ctx, domain.SeverityMedium, domain.AlertBotConflict,
		fmt.Sprintf("%s and %s both acted on %s within %s",
			conflict.First.Agent, conflict.Second.Agent, conflict.First.Target, conflict.Gap.Round(time.Millisecond)),
		map[string]string{
			"first_agent":  conflict.First.Agent,
			"second_agent": conflict.Second.Agent,
			"target":       conflict.First.Target,
		})
}

func conflictKey(c domain.OpConflict) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d",
		c.First.Agent, c.Second.Agent, c.First.Target,
		c.First.Timestamp.UnixNano(), c.Second.Timestamp.UnixNano())
}
