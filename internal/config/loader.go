package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GUARDIAN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GUARDIAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Gateway ──
	setStr(&cfg.Gateway.BaseURL, "GUARDIAN_GATEWAY_BASE_URL")
	setStr(&cfg.Gateway.APIKey, "GUARDIAN_GATEWAY_API_KEY")
	setDuration(&cfg.Gateway.Timeout, "GUARDIAN_GATEWAY_TIMEOUT")
	setStr(&cfg.Gateway.Pool, "GUARDIAN_GATEWAY_POOL")
	setStr(&cfg.Gateway.WsURL, "GUARDIAN_GATEWAY_WS_URL")

	// ── Oracle ──
	setStr(&cfg.Oracle.PythURL, "GUARDIAN_ORACLE_PYTH_URL")
	setStr(&cfg.Oracle.PythFeedID, "GUARDIAN_ORACLE_PYTH_FEED_ID")
	setStr(&cfg.Oracle.SwitchboardURL, "GUARDIAN_ORACLE_SWITCHBOARD_URL")
	setStr(&cfg.Oracle.SwitchboardFeedID, "GUARDIAN_ORACLE_SWITCHBOARD_FEED_ID")
	setBool(&cfg.Oracle.UseDexSpot, "GUARDIAN_ORACLE_USE_DEX_SPOT")
	setDuration(&cfg.Oracle.PerSourceTimeout, "GUARDIAN_ORACLE_PER_SOURCE_TIMEOUT")
	setInt(&cfg.Oracle.MinSources, "GUARDIAN_ORACLE_MIN_SOURCES")
	setFloat64(&cfg.Oracle.MaxDivergenceBps, "GUARDIAN_ORACLE_MAX_DIVERGENCE_BPS")

	// ── Collector ──
	setDuration(&cfg.Collector.Interval, "GUARDIAN_COLLECTOR_INTERVAL")
	setStr(&cfg.Collector.AssetID, "GUARDIAN_COLLECTOR_ASSET_ID")

	// ── Supply ──
	setBool(&cfg.Supply.Enabled, "GUARDIAN_SUPPLY_ENABLED")
	setFloat64(&cfg.Supply.Kp, "GUARDIAN_SUPPLY_KP")
	setFloat64(&cfg.Supply.Ki, "GUARDIAN_SUPPLY_KI")
	setFloat64(&cfg.Supply.Kd, "GUARDIAN_SUPPLY_KD")
	setFloat64(&cfg.Supply.ToleranceBps, "GUARDIAN_SUPPLY_TOLERANCE_BPS")
	setFloat64(&cfg.Supply.MaxMintRate, "GUARDIAN_SUPPLY_MAX_MINT_RATE")
	setFloat64(&cfg.Supply.MaxBurnRate, "GUARDIAN_SUPPLY_MAX_BURN_RATE")
	setDuration(&cfg.Supply.Cooldown, "GUARDIAN_SUPPLY_COOLDOWN")
	setBool(&cfg.Supply.Adaptive, "GUARDIAN_SUPPLY_ADAPTIVE")
	setDuration(&cfg.Supply.Interval, "GUARDIAN_SUPPLY_INTERVAL")

	// ── Buyback ──
	setBool(&cfg.Buyback.Enabled, "GUARDIAN_BUYBACK_ENABLED")
	setFloat64(&cfg.Buyback.TriggerRatio, "GUARDIAN_BUYBACK_TRIGGER_RATIO")
	setFloat64(&cfg.Buyback.AggressiveRatio, "GUARDIAN_BUYBACK_AGGRESSIVE_RATIO")
	setFloat64(&cfg.Buyback.MinLiquidityDepth, "GUARDIAN_BUYBACK_MIN_LIQUIDITY_DEPTH")
	setFloat64(&cfg.Buyback.MinAmount, "GUARDIAN_BUYBACK_MIN_AMOUNT")
	setFloat64(&cfg.Buyback.MaxAmount, "GUARDIAN_BUYBACK_MAX_AMOUNT")
	setFloat64(&cfg.Buyback.DailyBudget, "GUARDIAN_BUYBACK_DAILY_BUDGET")
	setDuration(&cfg.Buyback.Interval, "GUARDIAN_BUYBACK_INTERVAL")

	// ── Breaker ──
	setFloat64(&cfg.Breaker.VolatilityBps, "GUARDIAN_BREAKER_VOLATILITY_BPS")
	setFloat64(&cfg.Breaker.VolumeSpikeMult, "GUARDIAN_BREAKER_VOLUME_SPIKE_MULT")
	setFloat64(&cfg.Breaker.SupplyChangeBps, "GUARDIAN_BREAKER_SUPPLY_CHANGE_BPS")
	setFloat64(&cfg.Breaker.DivergenceBps, "GUARDIAN_BREAKER_DIVERGENCE_BPS")
	setFloat64(&cfg.Breaker.LiquidityDrainBps, "GUARDIAN_BREAKER_LIQUIDITY_DRAIN_BPS")
	setBool(&cfg.Breaker.AutoResetEnabled, "GUARDIAN_BREAKER_AUTO_RESET_ENABLED")
	setDuration(&cfg.Breaker.Interval, "GUARDIAN_BREAKER_INTERVAL")

	// ── Fraud ──
	setBool(&cfg.Fraud.Enabled, "GUARDIAN_FRAUD_ENABLED")
	setInt(&cfg.Fraud.StakeVelocityPerHr, "GUARDIAN_FRAUD_STAKE_VELOCITY_PER_HR")
	setInt(&cfg.Fraud.MaxWalletsPerIP, "GUARDIAN_FRAUD_MAX_WALLETS_PER_IP")
	setFloat64(&cfg.Fraud.BlockThreshold, "GUARDIAN_FRAUD_BLOCK_THRESHOLD")
	setFloat64(&cfg.Fraud.ReviewThreshold, "GUARDIAN_FRAUD_REVIEW_THRESHOLD")

	// ── Coordinator ──
	setDuration(&cfg.Coordinator.Interval, "GUARDIAN_COORDINATOR_INTERVAL")
	setDuration(&cfg.Coordinator.ConflictWindow, "GUARDIAN_COORDINATOR_CONFLICT_WINDOW")
	setDuration(&cfg.Coordinator.Lookback, "GUARDIAN_COORDINATOR_LOOKBACK")

	// ── Alerts / Notify ──
	setInt(&cfg.Alerts.QueueSize, "GUARDIAN_ALERTS_QUEUE_SIZE")
	setInt(&cfg.Alerts.RateLimit, "GUARDIAN_ALERTS_RATE_LIMIT")
	setInt(&cfg.Alerts.RetentionDays, "GUARDIAN_ALERTS_RETENTION_DAYS")
	setStr(&cfg.Notify.PagerDutyRoutingKey, "GUARDIAN_NOTIFY_PAGERDUTY_ROUTING_KEY")
	setStr(&cfg.Notify.SlackWebhookURL, "GUARDIAN_NOTIFY_SLACK_WEBHOOK_URL")
	setStr(&cfg.Notify.EmailHost, "GUARDIAN_NOTIFY_EMAIL_HOST")
	setInt(&cfg.Notify.EmailPort, "GUARDIAN_NOTIFY_EMAIL_PORT")
	setStr(&cfg.Notify.EmailUsername, "GUARDIAN_NOTIFY_EMAIL_USERNAME")
	setStr(&cfg.Notify.EmailPassword, "GUARDIAN_NOTIFY_EMAIL_PASSWORD")
	setStr(&cfg.Notify.EmailFrom, "GUARDIAN_NOTIFY_EMAIL_FROM")
	setStringSlice(&cfg.Notify.EmailTo, "GUARDIAN_NOTIFY_EMAIL_TO")
	setStr(&cfg.Notify.WebhookURL, "GUARDIAN_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "GUARDIAN_NOTIFY_WEBHOOK_SECRET")

	// ── Retention ──
	setInt(&cfg.Retention.SnapshotDays, "GUARDIAN_RETENTION_SNAPSHOT_DAYS")
	setInt(&cfg.Retention.BotOpDays, "GUARDIAN_RETENTION_BOT_OP_DAYS")
	setInt(&cfg.Retention.ArchiveDays, "GUARDIAN_RETENTION_ARCHIVE_DAYS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "GUARDIAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "GUARDIAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "GUARDIAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "GUARDIAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "GUARDIAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "GUARDIAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "GUARDIAN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "GUARDIAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "GUARDIAN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "GUARDIAN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "GUARDIAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GUARDIAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GUARDIAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GUARDIAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GUARDIAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GUARDIAN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "GUARDIAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GUARDIAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "GUARDIAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GUARDIAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GUARDIAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GUARDIAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GUARDIAN_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GUARDIAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GUARDIAN_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "GUARDIAN_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "GUARDIAN_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "GUARDIAN_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "GUARDIAN_SERVER_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "GUARDIAN_MODE")
	setStr(&cfg.LogLevel, "GUARDIAN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
