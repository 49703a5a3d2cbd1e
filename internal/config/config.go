// Package config defines the top-level configuration for the guardian daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by GUARDIAN_* environment variables.
type Config struct {
	Gateway     GatewayConfig     `toml:"gateway"`
	Oracle      OracleConfig      `toml:"oracle"`
	Collector   CollectorConfig   `toml:"collector"`
	Supply      SupplyConfig      `toml:"supply"`
	Buyback     BuybackConfig     `toml:"buyback"`
	Breaker     BreakerConfig     `toml:"breaker"`
	Fraud       FraudConfig       `toml:"fraud"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Alerts      AlertsConfig      `toml:"alerts"`
	Notify      NotifyConfig      `toml:"notify"`
	Retention   RetentionConfig   `toml:"retention"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// GatewayConfig holds the execution-gateway endpoints. The gateway fronts the
// protocol state reader, the DEX liquidity API, and the action executor.
type GatewayConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
	Pool    string   `toml:"pool"`
	WsURL   string   `toml:"ws_url"`
}

// OracleConfig holds the price-source endpoints and consensus parameters.
type OracleConfig struct {
	PythURL           string   `toml:"pyth_url"`
	PythFeedID        string   `toml:"pyth_feed_id"`
	SwitchboardURL    string   `toml:"switchboard_url"`
	SwitchboardFeedID string   `toml:"switchboard_feed_id"`
	UseDexSpot        bool     `toml:"use_dex_spot"`
	PerSourceTimeout  duration `toml:"per_source_timeout"`
	MinSources        int      `toml:"min_sources"`
	MaxDivergenceBps  float64  `toml:"max_divergence_bps"`
}

// CollectorConfig holds the market snapshot cadence.
type CollectorConfig struct {
	Interval duration `toml:"interval"`
	AssetID  string   `toml:"asset_id"`
}

// SupplyConfig holds the PID controller gains and the supply bot cadence.
type SupplyConfig struct {
	Enabled      bool     `toml:"enabled"`
	Kp           float64  `toml:"kp"`
	Ki           float64  `toml:"ki"`
	Kd           float64  `toml:"kd"`
	ToleranceBps float64  `toml:"tolerance_bps"`
	MaxMintRate  float64  `toml:"max_mint_rate"`
	MaxBurnRate  float64  `toml:"max_burn_rate"`
	Cooldown     duration `toml:"cooldown"`
	Adaptive     bool     `toml:"adaptive"`
	Interval     duration `toml:"interval"`
	StaleAfter   duration `toml:"stale_after"`
	LeaseTTL     duration `toml:"lease_ttl"`
}

// BuybackConfig holds the buyback strategy thresholds and the bot cadence.
type BuybackConfig struct {
	Enabled           bool     `toml:"enabled"`
	TriggerRatio      float64  `toml:"trigger_ratio"`
	AggressiveRatio   float64  `toml:"aggressive_ratio"`
	MinLiquidityDepth float64  `toml:"min_liquidity_depth"`
	MaxDivergenceBps  float64  `toml:"max_divergence_bps"`
	MinAmount         float64  `toml:"min_amount"`
	MaxAmount         float64  `toml:"max_amount"`
	DailyBudget       float64  `toml:"daily_budget"`
	QuietHoursUTC     []int    `toml:"quiet_hours_utc"`
	Interval          duration `toml:"interval"`
	StaleAfter        duration `toml:"stale_after"`
	LeaseTTL          duration `toml:"lease_ttl"`
}

// BreakerConfig holds the trip-condition thresholds, cooldown ladder, and
// monitor cadence.
type BreakerConfig struct {
	VolatilityBps     float64  `toml:"volatility_bps"`
	VolumeSpikeMult   float64  `toml:"volume_spike_mult"`
	SupplyChangeBps   float64  `toml:"supply_change_bps"`
	DivergenceBps     float64  `toml:"divergence_bps"`
	LiquidityDrainBps float64  `toml:"liquidity_drain_bps"`
	MinLiveSources    int      `toml:"min_live_sources"`
	LowCooldown       duration `toml:"low_cooldown"`
	MediumCooldown    duration `toml:"medium_cooldown"`
	HighCooldown      duration `toml:"high_cooldown"`
	CriticalCooldown  duration `toml:"critical_cooldown"`
	AutoResetEnabled  bool     `toml:"auto_reset_enabled"`
	MaxTxSizeAtHigh   float64  `toml:"max_tx_size_at_high"`
	Interval          duration `toml:"interval"`
	StaleAfter        duration `toml:"stale_after"`
}

// FraudConfig holds the behavioral-analysis thresholds and the event-stream
// consumer cadence.
type FraudConfig struct {
	Enabled            bool     `toml:"enabled"`
	StakeVelocityPerHr int      `toml:"stake_velocity_per_hr"`
	MaxWalletsPerIP    int      `toml:"max_wallets_per_ip"`
	AmountSpikeMult    float64  `toml:"amount_spike_mult"`
	ClicksPerMinute    int      `toml:"clicks_per_minute"`
	GeoCountries       int      `toml:"geo_countries"`
	BlockThreshold     float64  `toml:"block_threshold"`
	ReviewThreshold    float64  `toml:"review_threshold"`
	ConsumerPoll       duration `toml:"consumer_poll"`
	ConsumerBatch      int      `toml:"consumer_batch"`
}

// CoordinatorConfig holds the conflict-scan cadence and window.
type CoordinatorConfig struct {
	Interval       duration `toml:"interval"`
	ConflictWindow duration `toml:"conflict_window"`
	Lookback       duration `toml:"lookback"`
}

// AlertsConfig holds alert manager queue sizing, dedup, and rate limiting.
type AlertsConfig struct {
	QueueSize     int      `toml:"queue_size"`
	DedupTTL      duration `toml:"dedup_ttl"`
	RateLimit     int      `toml:"rate_limit"`
	RateWindow    duration `toml:"rate_window"`
	RetentionDays int      `toml:"retention_days"`
}

// NotifyConfig holds delivery-channel credentials. A channel with no
// credential configured is simply not wired.
type NotifyConfig struct {
	PagerDutyRoutingKey string   `toml:"pagerduty_routing_key"`
	SlackWebhookURL     string   `toml:"slack_webhook_url"`
	EmailHost           string   `toml:"email_host"`
	EmailPort           int      `toml:"email_port"`
	EmailUsername       string   `toml:"email_username"`
	EmailPassword       string   `toml:"email_password"`
	EmailFrom           string   `toml:"email_from"`
	EmailTo             []string `toml:"email_to"`
	WebhookURL          string   `toml:"webhook_url"`
	WebhookSecret       string   `toml:"webhook_secret"`
}

// RetentionConfig holds the database retention and cold-storage archive
// windows, in days.
type RetentionConfig struct {
	SnapshotDays int `toml:"snapshot_days"`
	BotOpDays    int `toml:"bot_op_days"`
	ArchiveDays  int `toml:"archive_days"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters. An empty api_key disables
// authentication; a zero rate_limit disables per-client rate limiting.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the production default values.
// Component-level defaults mirror the protocol parameters.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Timeout: duration{15 * time.Second},
			Pool:    "twist-usdc",
		},
		Oracle: OracleConfig{
			UseDexSpot:       true,
			PerSourceTimeout: duration{5 * time.Second},
			MinSources:       2,
			MaxDivergenceBps: 200,
		},
		Collector: CollectorConfig{
			Interval: duration{30 * time.Second},
			AssetID:  "twist",
		},
		Supply: SupplyConfig{
			Enabled:      true,
			Kp:           0.5,
			Ki:           0.1,
			Kd:           0.05,
			ToleranceBps: 100,
			MaxMintRate:  0.02,
			MaxBurnRate:  0.02,
			Cooldown:     duration{time.Hour},
			Adaptive:     true,
			Interval:     duration{5 * time.Minute},
			StaleAfter:   duration{2 * time.Minute},
			LeaseTTL:     duration{30 * time.Second},
		},
		Buyback: BuybackConfig{
			Enabled:           true,
			TriggerRatio:      0.97,
			AggressiveRatio:   0.95,
			MinLiquidityDepth: 10_000,
			MaxDivergenceBps:  200,
			MinAmount:         100,
			MaxAmount:         50_000,
			DailyBudget:       100_000,
			QuietHoursUTC:     []int{3, 4, 5},
			Interval:          duration{time.Minute},
			StaleAfter:        duration{2 * time.Minute},
			LeaseTTL:          duration{30 * time.Second},
		},
		Breaker: BreakerConfig{
			VolatilityBps:     5000,
			VolumeSpikeMult:   10,
			SupplyChangeBps:   200,
			DivergenceBps:     500,
			LiquidityDrainBps: 2000,
			MinLiveSources:    2,
			LowCooldown:       duration{15 * time.Minute},
			MediumCooldown:    duration{time.Hour},
			HighCooldown:      duration{4 * time.Hour},
			CriticalCooldown:  duration{24 * time.Hour},
			AutoResetEnabled:  true,
			MaxTxSizeAtHigh:   10_000,
			Interval:          duration{30 * time.Second},
			StaleAfter:        duration{3 * time.Minute},
		},
		Fraud: FraudConfig{
			Enabled:            true,
			StakeVelocityPerHr: 10,
			MaxWalletsPerIP:    5,
			AmountSpikeMult:    5,
			ClicksPerMinute:    100,
			GeoCountries:       5,
			BlockThreshold:     80,
			ReviewThreshold:    50,
			ConsumerPoll:       duration{time.Second},
			ConsumerBatch:      100,
		},
		Coordinator: CoordinatorConfig{
			Interval:       duration{time.Minute},
			ConflictWindow: duration{3 * time.Second},
			Lookback:       duration{5 * time.Minute},
		},
		Alerts: AlertsConfig{
			QueueSize:     64,
			DedupTTL:      duration{5 * time.Minute},
			RateLimit:     30,
			RateWindow:    duration{time.Minute},
			RetentionDays: 30,
		},
		Retention: RetentionConfig{
			SnapshotDays: 14,
			BotOpDays:    90,
			ArchiveDays:  30,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "guardian",
			User:          "guardian",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "guardian-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"guard":   true,
	"fraud":   true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, guard, fraud, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Gateway -- every mode reads protocol state; guard modes also execute.
	if c.Gateway.BaseURL == "" {
		errs = append(errs, "gateway: base_url must not be empty")
	}
	if c.Gateway.Pool == "" {
		errs = append(errs, "gateway: pool must not be empty")
	}

	// Oracle -- quorum below two makes divergence checks meaningless.
	if c.Oracle.MinSources < 2 {
		errs = append(errs, fmt.Sprintf("oracle: min_sources must be >= 2, got %d", c.Oracle.MinSources))
	}
	if c.Oracle.MaxDivergenceBps <= 0 {
		errs = append(errs, "oracle: max_divergence_bps must be > 0")
	}
	sources := 0
	if c.Oracle.PythURL != "" {
		sources++
	}
	if c.Oracle.SwitchboardURL != "" {
		sources++
	}
	if c.Oracle.UseDexSpot {
		sources++
	}
	if sources < c.Oracle.MinSources {
		errs = append(errs, fmt.Sprintf("oracle: %d sources configured but min_sources is %d", sources, c.Oracle.MinSources))
	}

	if c.Collector.Interval.Duration <= 0 {
		errs = append(errs, "collector: interval must be > 0")
	}
	if c.Collector.AssetID == "" {
		errs = append(errs, "collector: asset_id must not be empty")
	}

	// Supply controller.
	if c.Supply.Enabled {
		if c.Supply.Kp <= 0 {
			errs = append(errs, "supply: kp must be > 0 when enabled")
		}
		if c.Supply.MaxMintRate <= 0 || c.Supply.MaxMintRate > 0.05 {
			errs = append(errs, fmt.Sprintf("supply: max_mint_rate must be in (0, 0.05], got %g", c.Supply.MaxMintRate))
		}
		if c.Supply.MaxBurnRate <= 0 || c.Supply.MaxBurnRate > 0.05 {
			errs = append(errs, fmt.Sprintf("supply: max_burn_rate must be in (0, 0.05], got %g", c.Supply.MaxBurnRate))
		}
	}

	// Buyback.
	if c.Buyback.Enabled {
		if c.Buyback.TriggerRatio <= 0 || c.Buyback.TriggerRatio >= 1 {
			errs = append(errs, fmt.Sprintf("buyback: trigger_ratio must be in (0, 1), got %g", c.Buyback.TriggerRatio))
		}
		if c.Buyback.AggressiveRatio >= c.Buyback.TriggerRatio {
			errs = append(errs, "buyback: aggressive_ratio must be below trigger_ratio")
		}
		if c.Buyback.DailyBudget <= 0 {
			errs = append(errs, "buyback: daily_budget must be > 0 when enabled")
		}
		if c.Buyback.MinAmount > c.Buyback.MaxAmount {
			errs = append(errs, "buyback: min_amount must not exceed max_amount")
		}
		for _, h := range c.Buyback.QuietHoursUTC {
			if h < 0 || h > 23 {
				errs = append(errs, fmt.Sprintf("buyback: quiet hour %d out of range 0-23", h))
			}
		}
	}

	// Breaker cooldown ladder must be monotonic.
	if c.Breaker.LowCooldown.Duration > c.Breaker.MediumCooldown.Duration ||
		c.Breaker.MediumCooldown.Duration > c.Breaker.HighCooldown.Duration ||
		c.Breaker.HighCooldown.Duration > c.Breaker.CriticalCooldown.Duration {
		errs = append(errs, "breaker: cooldowns must not decrease with severity")
	}
	if c.Breaker.MinLiveSources < 1 {
		errs = append(errs, "breaker: min_live_sources must be >= 1")
	}

	// Fraud.
	if c.Fraud.Enabled {
		if c.Fraud.BlockThreshold <= c.Fraud.ReviewThreshold {
			errs = append(errs, "fraud: block_threshold must exceed review_threshold")
		}
		if c.Fraud.ConsumerBatch < 1 {
			errs = append(errs, "fraud: consumer_batch must be >= 1")
		}
	}

	// Postgres.
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis.
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3.
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server.
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Alerts.
	if c.Alerts.QueueSize < 1 {
		errs = append(errs, "alerts: queue_size must be >= 1")
	}
	if c.Alerts.RetentionDays < 1 {
		errs = append(errs, "alerts: retention_days must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
