package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// ErrResetTooEarly is returned when a reset is attempted before the current
// severity's cooldown has elapsed.
var ErrResetTooEarly = errors.New("breaker: cooldown has not elapsed")

// ErrNotTripped is returned when a reset is attempted on an inactive breaker.
var ErrNotTripped = errors.New("breaker: not tripped")

// MachineConfig holds the per-severity cooldowns and restriction tuning.
type MachineConfig struct {
	LowCooldown      time.Duration
	MediumCooldown   time.Duration
	HighCooldown     time.Duration
	CriticalCooldown time.Duration

	AutoResetEnabled bool

	// MaxTxSizeAtHigh caps single-transaction size while tripped at high.
	MaxTxSizeAtHigh float64

	HistoryLimit int
}

// DefaultMachineConfig returns the production cooldowns.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		LowCooldown:      15 * time.Minute,
		MediumCooldown:   time.Hour,
		HighCooldown:     4 * time.Hour,
		CriticalCooldown: 24 * time.Hour,
		AutoResetEnabled: true,
		MaxTxSizeAtHigh:  10_000,
		HistoryLimit:     100,
	}
}

// Machine is the tripped-state machine. All transitions hold the mutex, so
// concurrent trips serialize and exactly one escalation wins. Escalation is
// one-way while tripped: equal-or-lower re-trips never shorten the cooldown,
// a higher trip resets the deadline to the higher severity's duration.
type Machine struct {
	cfg MachineConfig

	mu            sync.Mutex
	active        bool
	severity      domain.Severity
	condition     string
	trippedAt     time.Time
	resetDeadline time.Time
	tripCount     int64
	restrictions  domain.Restrictions
	history       []domain.TripRecord
}

// NewMachine creates a machine in the inactive state.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultMachineConfig().HistoryLimit
	}
	return &Machine{cfg: cfg}
}

// Cooldown returns the reset cooldown for a severity.
func (m *Machine) Cooldown(sev domain.Severity) time.Duration {
	switch sev {
	case domain.SeverityCritical:
		return m.cfg.CriticalCooldown
	case domain.SeverityHigh:
		return m.cfg.HighCooldown
	case domain.SeverityMedium:
		return m.cfg.MediumCooldown
	default:
		return m.cfg.LowCooldown
	}
}

// restrictionsFor maps a severity onto its action set.
func (m *Machine) restrictionsFor(sev domain.Severity) domain.Restrictions {
	switch sev {
	case domain.SeverityCritical:
		return domain.Restrictions{
			TradingPaused:      true,
			BuybackDisabled:    true,
			StakingDisabled:    true,
			EnhancedMonitoring: true,
		}
	case domain.SeverityHigh:
		return domain.Restrictions{
			BuybackDisabled:    true,
			EnhancedMonitoring: true,
			MaxTransactionSize: m.cfg.MaxTxSizeAtHigh,
		}
	case domain.SeverityMedium:
		return domain.Restrictions{EnhancedMonitoring: true}
	default:
		// Low severity alerts only; no restriction.
		return domain.Restrictions{}
	}
}

// Evaluate folds one cycle's condition results into the machine. It returns
// whether the state changed and the winning result when it did.
func (m *Machine) Evaluate(now time.Time, results []domain.TripResult) (bool, domain.TripResult) {
	var winner domain.TripResult
	var tripped bool
	for _, r := range results {
		if !r.Tripped {
			continue
		}
		if !tripped || r.Severity > winner.Severity {
			winner = r
			tripped = true
		}
	}
	if !tripped {
		return false, domain.TripResult{}
	}
	return m.trip(now, winner), winner
}

// TripExternal injects a condition from outside the snapshot battery, such
// as a critical fraud escalation or a persistent monitoring failure.
func (m *Machine) TripExternal(now time.Time, result domain.TripResult) bool {
	if !result.Tripped {
		return false
	}
	return m.trip(now, result)
}

func (m *Machine) trip(now time.Time, result domain.TripResult) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-trip at equal or lower severity while tripped keeps the current
	// deadline.
	if m.active && result.Severity <= m.severity {
		return false
	}

	m.active = true
	m.severity = result.Severity
	m.condition = result.Condition
	m.trippedAt = now
	m.resetDeadline = now.Add(m.Cooldown(result.Severity))
	m.restrictions = m.restrictionsFor(result.Severity)
	m.tripCount++

	m.history = append(m.history, domain.TripRecord{
		Condition:     result.Condition,
		Severity:      result.Severity,
		Message:       result.Message,
		TrippedAt:     now,
		ResetDeadline: m.resetDeadline,
	})
	if len(m.history) > m.cfg.HistoryLimit {
		m.history = m.history[len(m.history)-m.cfg.HistoryLimit:]
	}
	return true
}

// TryReset clears the tripped state once the cooldown for the most recent
// trip has elapsed. Restrictions are lifted; history is kept.
func (m *Machine) TryReset(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return ErrNotTripped
	}
	if now.Before(m.resetDeadline) {
		return fmt.Errorf("%w: %s remaining", ErrResetTooEarly, m.resetDeadline.Sub(now).Round(time.Second))
	}

	m.active = false
	m.severity = domain.SeverityLow
	m.condition = ""
	m.restrictions = domain.Restrictions{}
	return nil
}

// DueForAutoReset reports whether the machine is tripped, auto-reset is
// enabled, and the cooldown has elapsed.
func (m *Machine) DueForAutoReset(now time.Time) bool {
	if !m.cfg.AutoResetEnabled {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active && !now.Before(m.resetDeadline)
}

// Status returns a read-only view of the machine.
func (m *Machine) Status() domain.BreakerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]domain.TripRecord, len(m.history))
	copy(history, m.history)

	return domain.BreakerStatus{
		Active:        m.active,
		Severity:      m.severity,
		Condition:     m.condition,
		TrippedAt:     m.trippedAt,
		ResetDeadline: m.resetDeadline,
		TripCount:     m.tripCount,
		Restrictions:  m.restrictions,
		History:       history,
	}
}
