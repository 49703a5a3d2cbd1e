package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/twistlabs/guardian/internal/blob/s3"
	"github.com/twistlabs/guardian/internal/cache/redis"
	"github.com/twistlabs/guardian/internal/chain"
	"github.com/twistlabs/guardian/internal/config"
	"github.com/twistlabs/guardian/internal/domain"
	"github.com/twistlabs/guardian/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	Alerts     domain.AlertStore
	FraudCases domain.FraudCaseStore
	Events     domain.EventStore
	BotOps     domain.BotOpStore
	Snapshots  domain.SnapshotStore
	Audit      domain.AuditStore

	// Caches and coordination primitives
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Budget      domain.BudgetLedger
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Execution gateway
	Gateway  *chain.Client
	Protocol *chain.ProtocolReader
	Dex      *chain.DexClient
	Executor *chain.Executor

	// Pings are health probes keyed by dependency name.
	Pings map[string]func(ctx context.Context) error
}

// needsS3 returns true for modes that archive to object storage.
func needsS3(mode string) bool {
	switch mode {
	case "monitor", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Pings: make(map[string]func(ctx context.Context) error),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Alerts = postgres.NewAlertStore(pool)
	deps.FraudCases = postgres.NewFraudCaseStore(pool)
	deps.Events = postgres.NewEventStore(pool)
	deps.BotOps = postgres.NewBotOpStore(pool)
	deps.Snapshots = postgres.NewSnapshotStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)
	deps.Pings["postgres"] = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Budget = redis.NewBudgetLedger(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Pings["redis"] = redisClient.Ping

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.Alerts,
			deps.BotOps,
			deps.Audit,
			deps.Audit,
		)
		deps.Pings["s3"] = s3Client.Health
	}

	// --- Execution gateway ---
	deps.Gateway = chain.NewClient(chain.ClientConfig{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout.Duration,
	})
	deps.Protocol = chain.NewProtocolReader(deps.Gateway)
	deps.Dex = chain.NewDexClient(deps.Gateway, cfg.Gateway.Pool)
	deps.Executor = chain.NewExecutor(deps.Gateway)

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("s3", deps.Archiver != nil),
		slog.String("gateway", cfg.Gateway.BaseURL),
	)

	return deps, cleanup, nil
}
