// Package alert fans operator notifications out to delivery channels.
// Alerts are deduplicated, rate limited per type, persisted, and routed by
// severity; each channel drains its own bounded queue so a slow channel can
// never block the components that raise alerts.
package alert

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/twistlabs/guardian/internal/domain"
	"github.com/twistlabs/guardian/internal/notify"
)

// Channel names the delivery routes a severity can map onto.
const (
	ChannelPager   = "pager"
	ChannelChat    = "chat"
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// Config holds queue sizing, dedup and rate-limit windows, and retention.
type Config struct {
	QueueSize     int
	DedupTTL      time.Duration
	RateLimit     int // max alerts per type per RateWindow
	RateWindow    time.Duration
	SendTimeout   time.Duration
	Retention     time.Duration
	PruneInterval time.Duration
}

// DefaultConfig returns the production alerting parameters.
func DefaultConfig() Config {
	return Config{
		QueueSize:     64,
		DedupTTL:      5 * time.Minute,
		RateLimit:     30,
		RateWindow:    time.Minute,
		SendTimeout:   10 * time.Second,
		Retention:     30 * 24 * time.Hour,
		PruneInterval: time.Hour,
	}
}

// Channels binds a sender to each delivery route. Any of them may be nil;
// unbound routes are skipped.
type Channels struct {
	Pager   notify.Sender
	Chat    notify.Sender
	Email   notify.Sender
	Webhook notify.Sender
}

type route struct {
	name   string
	sender notify.Sender
	queue  chan domain.Alert
}

// Manager is the single alert entry point for every component. Trigger never
// blocks and never fails: delivery problems are the manager's to log, not the
// caller's to handle.
type Manager struct {
	cfg      Config
	store    domain.AlertStore  // may be nil
	limiter  domain.RateLimiter // may be nil; rate limiting is then disabled
	routes   []*route
	resolver notify.Resolver // set when the pager sender can resolve incidents
	dedup    *dedup
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewManager wires the manager. The store and limiter may be nil in tests.
func NewManager(
	cfg Config,
	channels Channels,
	store domain.AlertStore,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Manager {
	if cfg.QueueSize <= 0 {
		cfg = DefaultConfig()
	}

	m := &Manager{
		cfg:     cfg,
		store:   store,
		limiter: limiter,
		dedup:   newDedup(cfg.DedupTTL),
		logger:  logger.With(slog.String("component", "alert_manager")),
	}

	m.bind(ChannelPager, channels.Pager)
	m.bind(ChannelChat, channels.Chat)
	m.bind(ChannelEmail, channels.Email)
	m.bind(ChannelWebhook, channels.Webhook)

	if r, ok := channels.Pager.(notify.Resolver); ok {
		m.resolver = r
	}
	return m
}

func (m *Manager) bind(name string, sender notify.Sender) {
	if sender == nil {
		return
	}
	m.routes = append(m.routes, &route{
		name:   name,
		sender: sender,
		queue:  make(chan domain.Alert, m.cfg.QueueSize),
	})
}

// Trigger raises an alert. Duplicate and rate-limited alerts are dropped,
// survivors are persisted and enqueued on every route the severity maps onto.
func (m *Manager) Trigger(ctx context.Context, severity domain.Severity, alertType, message string, metadata map[string]string) {
	alert := domain.Alert{
		ID:        uuid.NewString(),
		Severity:  severity,
		Type:      alertType,
		Message:   message,
		DedupKey:  dedupKey(alertType, message),
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	if m.dedup.isDuplicate(alert.DedupKey) {
		m.logger.Debug("duplicate alert dropped",
			slog.String("type", alertType),
			slog.String("dedup_key", alert.DedupKey))
		return
	}

	if m.limiter != nil {
		allowed, err := m.limiter.Allow(ctx, "alerts:"+alertType, m.cfg.RateLimit, m.cfg.RateWindow)
		if err != nil {
			// Fail open: a broken limiter must not silence alerting.
			m.logger.Warn("alert rate limiter failed", slog.Any("error", err))
		} else if !allowed {
			m.logger.Warn("alert rate limited",
				slog.String("type", alertType),
				slog.String("severity", severity.String()))
			return
		}
	}

	if m.store != nil {
		if err := m.store.Insert(ctx, alert); err != nil {
			m.logger.Error("alert persist failed",
				slog.String("type", alertType), slog.Any("error", err))
		}
	}

	m.logger.Info("alert raised",
		slog.String("type", alertType),
		slog.String("severity", severity.String()),
		slog.String("message", message))

	for _, r := range m.routes {
		if !routed(r.name, severity) {
			continue
		}
		select {
		case r.queue <- alert:
		default:
			m.logger.Warn("alert queue full, dropping",
				slog.String("channel", r.name),
				slog.String("type", alertType))
		}
	}
}

// routed maps severities onto channels: pager takes high and critical, chat
// everything above low, email critical only, webhook all.
func routed(channel string, severity domain.Severity) bool {
	switch channel {
	case ChannelPager:
		return severity >= domain.SeverityHigh
	case ChannelChat:
		return severity >= domain.SeverityMedium
	case ChannelEmail:
		return severity == domain.SeverityCritical
	case ChannelWebhook:
		return true
	default:
		return false
	}
}

// Acknowledge marks an alert acknowledged and, when the alert was routed to
// the pager, resolves the paging incident under its dedup key.
func (m *Manager) Acknowledge(ctx context.Context, id, by string) error {
	if m.store == nil {
		return fmt.Errorf("alert: acknowledge %s: no store configured", id)
	}

	alert, err := m.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("alert: load %s: %w", id, err)
	}
	if err := m.store.Acknowledge(ctx, id, by, time.Now().UTC()); err != nil {
		return fmt.Errorf("alert: acknowledge %s: %w", id, err)
	}

	if m.resolver != nil && alert.Severity >= domain.SeverityHigh {
		if err := m.resolver.Resolve(ctx, alert.DedupKey); err != nil {
			// The acknowledge itself succeeded; the stuck incident is an
			// operator nuisance, not a failure.
			m.logger.Warn("pager resolve failed",
				slog.String("alert_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// Run drains the per-channel queues and prunes expired alerts until the
// context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	for _, r := range m.routes {
		m.wg.Add(1)
		go m.drain(ctx, r)
	}

	m.logger.Info("alert manager started", slog.Int("channels", len(m.routes)))

	ticker := time.NewTicker(m.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			m.logger.Info("alert manager stopped")
			return ctx.Err()
		case <-ticker.C:
			m.dedup.cleanup()
			m.prune(ctx)
		}
	}
}

// drain delivers queued alerts on one channel. Each channel owns its queue,
// so a slow or failing sender backs up only itself.
func (m *Manager) drain(ctx context.Context, r *route) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-r.queue:
			sendCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
			err := r.sender.Send(sendCtx, alert)
			cancel()
			if err != nil {
				m.logger.Error("alert delivery failed",
					slog.String("channel", r.name),
					slog.String("type", alert.Type),
					slog.Any("error", err))
			}
		}
	}
}

func (m *Manager) prune(ctx context.Context) {
	if m.store == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-m.cfg.Retention)
	deleted, err := m.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		m.logger.Error("alert prune failed", slog.Any("error", err))
		return
	}
	if deleted > 0 {
		m.logger.Info("expired alerts pruned", slog.Int64("deleted", deleted))
	}
}

// dedupKey fingerprints an alert by type and message so repeats fold together
// without carrying the full message around.
func dedupKey(alertType, message string) string {
	h := fnv.New64a()
	h.Write([]byte(message))
	return fmt.Sprintf("%s:%x", alertType, h.Sum64())
}
