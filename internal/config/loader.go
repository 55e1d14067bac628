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
// built-in defaults, applies INSIDERSCAN_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known INSIDERSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "INSIDERSCAN_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "INSIDERSCAN_POLYMARKET_DATA_HOST")
	setDuration(&cfg.Polymarket.HTTPTimeout, "INSIDERSCAN_POLYMARKET_HTTP_TIMEOUT")
	setInt(&cfg.Polymarket.RateLimitPerSec, "INSIDERSCAN_POLYMARKET_RATE_LIMIT_PER_SEC")

	// ── Onchain ──
	setBool(&cfg.Onchain.Enabled, "INSIDERSCAN_ONCHAIN_ENABLED")
	setStr(&cfg.Onchain.RPCURL, "INSIDERSCAN_ONCHAIN_RPC_URL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "INSIDERSCAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "INSIDERSCAN_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "INSIDERSCAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "INSIDERSCAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "INSIDERSCAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "INSIDERSCAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "INSIDERSCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "INSIDERSCAN_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "INSIDERSCAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "INSIDERSCAN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "INSIDERSCAN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "INSIDERSCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "INSIDERSCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "INSIDERSCAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "INSIDERSCAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "INSIDERSCAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "INSIDERSCAN_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.CacheTTL, "INSIDERSCAN_REDIS_CACHE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "INSIDERSCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "INSIDERSCAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "INSIDERSCAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "INSIDERSCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "INSIDERSCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "INSIDERSCAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "INSIDERSCAN_S3_FORCE_PATH_STYLE")

	// ── Detector ──
	setFloat64(&cfg.Detector.LargeTradeThresholdUSD, "INSIDERSCAN_DETECTOR_LARGE_TRADE_THRESHOLD_USD")
	setInt(&cfg.Detector.MaxAccountHistory, "INSIDERSCAN_DETECTOR_MAX_ACCOUNT_HISTORY")
	setFloat64(&cfg.Detector.FreshWeightMultiplier, "INSIDERSCAN_DETECTOR_FRESH_WEIGHT_MULTIPLIER")
	setInt(&cfg.Detector.MinTrades, "INSIDERSCAN_DETECTOR_MIN_TRADES")
	setInt(&cfg.Detector.TopK, "INSIDERSCAN_DETECTOR_TOP_K")
	setFloat64(&cfg.Detector.ReferenceHourlyVolumeUSD, "INSIDERSCAN_DETECTOR_REFERENCE_HOURLY_VOLUME_USD")
	setFloat64(&cfg.Detector.ConcentrationSaturation, "INSIDERSCAN_DETECTOR_CONCENTRATION_SATURATION")
	setFloat64(&cfg.Detector.Weights.Concentration, "INSIDERSCAN_DETECTOR_WEIGHT_CONCENTRATION")
	setFloat64(&cfg.Detector.Weights.Velocity, "INSIDERSCAN_DETECTOR_WEIGHT_VELOCITY")
	setFloat64(&cfg.Detector.Weights.Skew, "INSIDERSCAN_DETECTOR_WEIGHT_SKEW")
	setFloat64(&cfg.Detector.Weights.Whale, "INSIDERSCAN_DETECTOR_WEIGHT_WHALE")
	setFloat64(&cfg.Detector.Weights.Volatility, "INSIDERSCAN_DETECTOR_WEIGHT_VOLATILITY")
	setFloat64(&cfg.Detector.AlertThreshold, "INSIDERSCAN_DETECTOR_ALERT_THRESHOLD")
	setDuration(&cfg.Detector.ScanInterval, "INSIDERSCAN_DETECTOR_SCAN_INTERVAL")
	setInt(&cfg.Detector.Concurrency, "INSIDERSCAN_DETECTOR_CONCURRENCY")
	setInt(&cfg.Detector.MarketLimit, "INSIDERSCAN_DETECTOR_MARKET_LIMIT")
	setDuration(&cfg.Detector.TradeLookback, "INSIDERSCAN_DETECTOR_TRADE_LOOKBACK")

	// ── Backtest ──
	setInt(&cfg.Backtest.LookbackDays, "INSIDERSCAN_BACKTEST_LOOKBACK_DAYS")
	setDuration(&cfg.Backtest.Horizon, "INSIDERSCAN_BACKTEST_HORIZON")
	setInt(&cfg.Backtest.Stride, "INSIDERSCAN_BACKTEST_STRIDE")
	setInt(&cfg.Backtest.Workers, "INSIDERSCAN_BACKTEST_WORKERS")
	setInt(&cfg.Backtest.MarketLimit, "INSIDERSCAN_BACKTEST_MARKET_LIMIT")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "INSIDERSCAN_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.MarketSyncInterval, "INSIDERSCAN_PIPELINE_MARKET_SYNC_INTERVAL")
	setDuration(&cfg.Pipeline.TradeScrapeInterval, "INSIDERSCAN_PIPELINE_TRADE_SCRAPE_INTERVAL")
	setInt(&cfg.Pipeline.MarketPageSize, "INSIDERSCAN_PIPELINE_MARKET_PAGE_SIZE")
	setStr(&cfg.Pipeline.ArchiveCron, "INSIDERSCAN_PIPELINE_ARCHIVE_CRON")
	setInt(&cfg.Pipeline.RetentionDays, "INSIDERSCAN_PIPELINE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "INSIDERSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "INSIDERSCAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "INSIDERSCAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "INSIDERSCAN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerSec, "INSIDERSCAN_SERVER_RATE_LIMIT_PER_SEC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "INSIDERSCAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "INSIDERSCAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "INSIDERSCAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "INSIDERSCAN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "INSIDERSCAN_MODE")
	setStr(&cfg.LogLevel, "INSIDERSCAN_LOG_LEVEL")
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
