package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/twistlabs/guardian/internal/alert"
	"github.com/twistlabs/guardian/internal/breaker"
	"github.com/twistlabs/guardian/internal/buyback"
	"github.com/twistlabs/guardian/internal/chain"
	"github.com/twistlabs/guardian/internal/controller"
	"github.com/twistlabs/guardian/internal/coordinator"
	"github.com/twistlabs/guardian/internal/fraud"
	"github.com/twistlabs/guardian/internal/market"
	"github.com/twistlabs/guardian/internal/notify"
	"github.com/twistlabs/guardian/internal/oracle"
	"github.com/twistlabs/guardian/internal/server"
	"github.com/twistlabs/guardian/internal/server/handler"
)

// MonitorMode runs the observation plane: snapshot collection, the circuit
// breaker, alert delivery, archival, and the HTTP API. No supply or buyback
// actions are taken.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	mgr := a.buildAlertManager(deps)
	g.Go(func() error { return mgr.Run(ctx) })

	collector := a.buildCollector(ctx, deps)
	g.Go(func() error { return collector.Run(ctx) })
	a.startTickFeed(ctx, g, collector)

	mon := a.buildBreaker(deps, collector, mgr)
	g.Go(func() error { return mon.Run(ctx) })

	a.startMaintenance(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, mgr, collector, mon)
	}

	return g.Wait()
}

// GuardMode runs the control plane on top of the observation plane: the
// supply controller, the buyback agent, and the cross-agent coordinator.
func (a *App) GuardMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting guard mode")

	g, ctx := errgroup.WithContext(ctx)

	mgr := a.buildAlertManager(deps)
	g.Go(func() error { return mgr.Run(ctx) })

	collector := a.buildCollector(ctx, deps)
	g.Go(func() error { return collector.Run(ctx) })
	a.startTickFeed(ctx, g, collector)

	mon := a.buildBreaker(deps, collector, mgr)
	g.Go(func() error { return mon.Run(ctx) })

	a.startGuards(ctx, g, deps, collector, mon, mgr)
	a.startMaintenance(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, mgr, collector, mon)
	}

	return g.Wait()
}

// FraudMode runs only behavioral analysis: the event-stream consumer feeding
// the fraud engine, plus alert delivery and the HTTP API. Without a breaker
// monitor, critical verdicts alert and block but cannot trip the breaker.
func (a *App) FraudMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting fraud mode")

	g, ctx := errgroup.WithContext(ctx)

	mgr := a.buildAlertManager(deps)
	g.Go(func() error { return mgr.Run(ctx) })

	consumer := a.buildFraud(deps, mgr, nil)
	g.Go(func() error { return consumer.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, mgr, nil, nil)
	}

	return g.Wait()
}

// ServerMode serves the HTTP API over the stores without running any
// collection or control loops. Useful for read replicas and dashboards.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	// The alert manager still runs so acknowledgements resolve paging
	// incidents.
	mgr := a.buildAlertManager(deps)
	g.Go(func() error { return mgr.Run(ctx) })

	a.startServer(ctx, g, deps, mgr, nil, nil)

	return g.Wait()
}

// FullMode runs every subsystem: observation, control, fraud analysis,
// coordination, archival, and the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	mgr := a.buildAlertManager(deps)
	g.Go(func() error { return mgr.Run(ctx) })

	collector := a.buildCollector(ctx, deps)
	g.Go(func() error { return collector.Run(ctx) })
	a.startTickFeed(ctx, g, collector)

	mon := a.buildBreaker(deps, collector, mgr)
	g.Go(func() error { return mon.Run(ctx) })

	a.startGuards(ctx, g, deps, collector, mon, mgr)

	if a.cfg.Fraud.Enabled {
		consumer := a.buildFraud(deps, mgr, mon)
		g.Go(func() error { return consumer.Run(ctx) })
	}

	a.startMaintenance(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, mgr, collector, mon)
	}

	return g.Wait()
}

// buildAlertManager wires the delivery channels that have credentials
// configured. A channel without credentials is simply not routed.
func (a *App) buildAlertManager(deps *Dependencies) *alert.Manager {
	n := a.cfg.Notify

	var channels alert.Channels
	if n.PagerDutyRoutingKey != "" {
		channels.Pager = notify.NewPagerDutySender(n.PagerDutyRoutingKey)
	}
	if n.SlackWebhookURL != "" {
		channels.Chat = notify.NewSlackSender(n.SlackWebhookURL)
	}
	if n.EmailHost != "" && len(n.EmailTo) > 0 {
		channels.Email = notify.NewEmailSender(
			n.EmailHost, n.EmailPort, n.EmailUsername, n.EmailPassword, n.EmailFrom, n.EmailTo)
	}
	if n.WebhookURL != "" {
		channels.Webhook = notify.NewWebhookSender(n.WebhookURL, n.WebhookSecret)
	}

	cfg := alert.DefaultConfig()
	cfg.QueueSize = a.cfg.Alerts.QueueSize
	cfg.DedupTTL = a.cfg.Alerts.DedupTTL.Duration
	cfg.RateLimit = a.cfg.Alerts.RateLimit
	cfg.RateWindow = a.cfg.Alerts.RateWindow.Duration
	cfg.Retention = time.Duration(a.cfg.Alerts.RetentionDays) * 24 * time.Hour

	return alert.NewManager(cfg, channels, deps.Alerts, deps.RateLimiter, a.logger)
}

// buildCollector assembles the oracle consensus sources and the snapshot
// collector, seeding rolling statistics from persisted snapshots so
// volatility and volume baselines survive restarts.
func (a *App) buildCollector(ctx context.Context, deps *Dependencies) *market.Collector {
	o := a.cfg.Oracle

	var sources []oracle.FeedSource
	if o.PythURL != "" {
		sources = append(sources, oracle.NewPythSource(o.PythURL, o.PythFeedID))
	}
	if o.SwitchboardURL != "" {
		sources = append(sources, oracle.NewSwitchboardSource(o.SwitchboardURL, o.SwitchboardFeedID))
	}
	if o.UseDexSpot {
		sources = append(sources, oracle.NewDexSpotSource(deps.Dex))
	}

	agg := oracle.NewAggregator(sources, oracle.AggregatorConfig{
		PerSourceTimeout: o.PerSourceTimeout.Duration,
		MinSources:       o.MinSources,
		MaxDivergenceBps: o.MaxDivergenceBps,
	}, a.logger)

	stats := market.NewRollingStats()
	now := time.Now().UTC()
	if snaps, err := deps.Snapshots.ListRange(ctx, now.Add(-7*24*time.Hour), now); err != nil {
		a.logger.WarnContext(ctx, "stats seed failed, baselines start cold",
			slog.String("error", err.Error()))
	} else {
		stats.Seed(snaps)
	}

	return market.NewCollector(market.Config{
		Interval: a.cfg.Collector.Interval.Duration,
		AssetID:  a.cfg.Collector.AssetID,
	}, agg, deps.Protocol, deps.Dex, stats, deps.Snapshots, deps.PriceCache, a.logger)
}

// buildBreaker assembles the trip-condition evaluator, the state machine, and
// the monitor that drives them.
func (a *App) buildBreaker(deps *Dependencies, collector *market.Collector, mgr *alert.Manager) *breaker.Monitor {
	b := a.cfg.Breaker

	mc := breaker.DefaultMachineConfig()
	mc.LowCooldown = b.LowCooldown.Duration
	mc.MediumCooldown = b.MediumCooldown.Duration
	mc.HighCooldown = b.HighCooldown.Duration
	mc.CriticalCooldown = b.CriticalCooldown.Duration
	mc.AutoResetEnabled = b.AutoResetEnabled
	mc.MaxTxSizeAtHigh = b.MaxTxSizeAtHigh

	cc := breaker.DefaultConditionConfig()
	cc.VolatilityThresholdBps = b.VolatilityBps
	cc.VolumeSpikeMult = b.VolumeSpikeMult
	cc.SupplyChangeBps = b.SupplyChangeBps
	cc.OracleDivergenceBps = b.DivergenceBps
	cc.LiquidityDrainBps = b.LiquidityDrainBps
	cc.MinLiveSources = b.MinLiveSources

	return breaker.NewMonitor(breaker.MonitorConfig{
		Interval:   b.Interval.Duration,
		StaleAfter: b.StaleAfter.Duration,
	}, breaker.NewMachine(mc), breaker.NewEvaluator(cc), collector, deps.Executor, mgr, deps.Audit, a.logger)
}

// startGuards launches the supply controller, the buyback agent, the daily
// budget reset, and the cross-agent coordinator.
func (a *App) startGuards(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	collector *market.Collector,
	mon *breaker.Monitor,
	mgr *alert.Manager,
) {
	machine := mon.Machine()

	if a.cfg.Supply.Enabled {
		s := a.cfg.Supply
		pc := controller.DefaultConfig()
		pc.Kp = s.Kp
		pc.Ki = s.Ki
		pc.Kd = s.Kd
		pc.ToleranceBps = s.ToleranceBps
		pc.MaxMintRate = s.MaxMintRate
		pc.MaxBurnRate = s.MaxBurnRate
		pc.Cooldown = s.Cooldown.Duration
		pc.Adaptive = s.Adaptive

		bot := controller.NewSupplyBot(controller.SupplyBotConfig{
			Interval:   s.Interval.Duration,
			StaleAfter: s.StaleAfter.Duration,
			LeaseTTL:   s.LeaseTTL.Duration,
		}, controller.NewPID(pc), collector, machine, deps.Executor, deps.LockManager, deps.BotOps, mgr, a.logger)
		g.Go(func() error { return bot.Run(ctx) })
	}

	if a.cfg.Buyback.Enabled {
		b := a.cfg.Buyback
		sc := buyback.DefaultStrategyConfig()
		sc.TriggerRatio = b.TriggerRatio
		sc.AggressiveRatio = b.AggressiveRatio
		sc.MinLiquidityDepth = b.MinLiquidityDepth
		sc.MaxDivergenceBps = b.MaxDivergenceBps
		sc.MinAmount = b.MinAmount
		sc.MaxAmount = b.MaxAmount
		sc.QuietHoursUTC = b.QuietHoursUTC

		bot := buyback.NewBot(buyback.BotConfig{
			Interval:    b.Interval.Duration,
			StaleAfter:  b.StaleAfter.Duration,
			LeaseTTL:    b.LeaseTTL.Duration,
			DailyBudget: b.DailyBudget,
		}, buyback.NewStrategy(sc), collector, machine, deps.Executor,
			deps.LockManager, deps.Budget, deps.BotOps, mgr, a.logger)
		g.Go(func() error { return bot.Run(ctx) })

		g.Go(func() error { return a.runBudgetReset(ctx, deps) })
	}

	c := a.cfg.Coordinator
	coord := coordinator.New(coordinator.Config{
		Interval:       c.Interval.Duration,
		ConflictWindow: c.ConflictWindow.Duration,
		Lookback:       c.Lookback.Duration,
	}, deps.BotOps, mgr, a.logger)
	g.Go(func() error { return coord.Run(ctx) })
}

// buildFraud assembles the fraud engine and the event-stream consumer that
// feeds it. risk may be nil when no breaker monitor runs in this mode.
func (a *App) buildFraud(deps *Dependencies, mgr *alert.Manager, risk *breaker.Monitor) *fraud.Consumer {
	f := a.cfg.Fraud

	fc := fraud.DefaultConfig()
	fc.VelocityMax = f.StakeVelocityPerHr
	fc.MaxWalletsPerIP = f.MaxWalletsPerIP
	fc.AmountSpikeMult = f.AmountSpikeMult
	fc.ClickRateMax = f.ClicksPerMinute
	fc.GeoCountryMax = f.GeoCountries
	fc.BlockThreshold = f.BlockThreshold
	fc.ReviewThreshold = f.ReviewThreshold

	var engine *fraud.Engine
	if risk != nil {
		engine = fraud.NewEngine(fc, deps.Events, deps.FraudCases, mgr, risk, a.logger)
	} else {
		engine = fraud.NewEngine(fc, deps.Events, deps.FraudCases, mgr, nil, a.logger)
	}

	return fraud.NewConsumer(fraud.ConsumerConfig{
		PollInterval: f.ConsumerPoll.Duration,
		BatchSize:    f.ConsumerBatch,
	}, deps.SignalBus, engine, a.logger)
}

// startTickFeed streams DEX pool trades into the collector when a websocket
// endpoint is configured.
func (a *App) startTickFeed(ctx context.Context, g *errgroup.Group, collector *market.Collector) {
	if a.cfg.Gateway.WsURL == "" {
		return
	}
	feed := chain.NewPoolTickFeed(a.cfg.Gateway.WsURL, a.cfg.Gateway.Pool, collector.OnTick, a.logger)
	g.Go(func() error {
		defer feed.Close()
		return feed.Run(ctx)
	})
}

// runBudgetReset clears the buyback spend counter at every UTC midnight.
func (a *App) runBudgetReset(ctx context.Context, deps *Dependencies) error {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := deps.Budget.ResetDay(ctx, buyback.BudgetKey); err != nil {
				a.logger.Error("budget reset failed", slog.Any("error", err))
			} else {
				a.logger.Info("daily buyback budget reset")
			}
		}
	}
}

// startMaintenance runs the daily retention pass: archive to cold storage
// first, then prune expired rows. The alert manager prunes its own table.
func (a *App) startMaintenance(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		a.runRetention(ctx, deps)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.runRetention(ctx, deps)
			}
		}
	})
}

func (a *App) runRetention(ctx context.Context, deps *Dependencies) {
	now := time.Now().UTC()
	r := a.cfg.Retention

	if deps.Archiver != nil {
		cutoff := now.AddDate(0, 0, -r.ArchiveDays)
		if n, err := deps.Archiver.ArchiveAlerts(ctx, cutoff); err != nil {
			a.logger.Error("alert archive failed", slog.Any("error", err))
		} else if n > 0 {
			a.logger.Info("alerts archived", slog.Int64("count", n))
		}
		if n, err := deps.Archiver.ArchiveBotOps(ctx, cutoff); err != nil {
			a.logger.Error("bot op archive failed", slog.Any("error", err))
		} else if n > 0 {
			a.logger.Info("bot operations archived", slog.Int64("count", n))
		}
		if n, err := deps.Archiver.ArchiveAudit(ctx, cutoff); err != nil {
			a.logger.Error("audit archive failed", slog.Any("error", err))
		} else if n > 0 {
			a.logger.Info("audit entries archived", slog.Int64("count", n))
		}
	}

	if n, err := deps.Snapshots.DeleteBefore(ctx, now.AddDate(0, 0, -r.SnapshotDays)); err != nil {
		a.logger.Error("snapshot prune failed", slog.Any("error", err))
	} else if n > 0 {
		a.logger.Info("snapshots pruned", slog.Int64("count", n))
	}
	if n, err := deps.BotOps.DeleteBefore(ctx, now.AddDate(0, 0, -r.BotOpDays)); err != nil {
		a.logger.Error("bot op prune failed", slog.Any("error", err))
	} else if n > 0 {
		a.logger.Info("bot operations pruned", slog.Int64("count", n))
	}
}

// startServer registers the HTTP API and its graceful shutdown. collector and
// mon may be nil in modes that do not run them; their routes and status
// sections are then omitted.
func (a *App) startServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	mgr *alert.Manager,
	collector *market.Collector,
	mon *breaker.Monitor,
) {
	checks := make(map[string]handler.Pinger, len(deps.Pings))
	for name, ping := range deps.Pings {
		checks[name] = ping
	}

	var snaps handler.SnapshotSource
	var brkSrc handler.BreakerSource
	if collector != nil {
		snaps = collector
	}
	if mon != nil {
		brkSrc = mon
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(checks, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, snaps, brkSrc),
		Alerts: handler.NewAlertHandler(deps.Alerts, mgr, a.logger),
		Fraud:  handler.NewFraudHandler(deps.FraudCases, a.logger),
		Ops:    handler.NewOpsHandler(deps.BotOps, a.logger),
	}
	if mon != nil {
		handlers.Breaker = handler.NewBreakerHandler(mon, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
