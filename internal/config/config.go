// Package config defines the top-level configuration for the insider scanner
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/detector"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by INSIDERSCAN_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Onchain    OnchainConfig    `toml:"onchain"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Detector   DetectorConfig   `toml:"detector"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	GammaHost   string   `toml:"gamma_host"`
	DataHost    string   `toml:"data_host"`
	HTTPTimeout duration `toml:"http_timeout"`
	// RateLimitPerSec caps outbound requests against the public APIs.
	RateLimitPerSec int `toml:"rate_limit_per_sec"`
}

// OnchainConfig holds the Polygon RPC endpoint used to look up wallet
// transaction counts when the Data API has no activity for an address.
type OnchainConfig struct {
	Enabled bool   `toml:"enabled"`
	RPCURL  string `toml:"rpc_url"`
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
	// CacheTTL bounds how long market metadata stays cached.
	CacheTTL duration `toml:"cache_ttl"`
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

// WeightsConfig holds the indicator aggregation weights.
type WeightsConfig struct {
	Concentration float64 `toml:"concentration"`
	Velocity      float64 `toml:"velocity"`
	Skew          float64 `toml:"skew"`
	Whale         float64 `toml:"whale"`
	Volatility    float64 `toml:"volatility"`
}

// DetectorConfig holds the scoring-core tuning and live-scan parameters.
type DetectorConfig struct {
	LargeTradeThresholdUSD   float64       `toml:"large_trade_threshold_usd"`
	MaxAccountHistory        int           `toml:"max_account_history"`
	FreshWeightMultiplier    float64       `toml:"fresh_weight_multiplier"`
	MinTrades                int           `toml:"min_trades"`
	TopK                     int           `toml:"top_k"`
	ReferenceHourlyVolumeUSD float64       `toml:"reference_hourly_volume_usd"`
	ConcentrationSaturation  float64       `toml:"concentration_saturation"`
	Weights                  WeightsConfig `toml:"weights"`

	// AlertThreshold is the insider probability above which a signal is
	// published and pushed to notification channels.
	AlertThreshold float64  `toml:"alert_threshold"`
	ScanInterval   duration `toml:"scan_interval"`
	Concurrency    int      `toml:"concurrency"`
	MarketLimit    int      `toml:"market_limit"`
	// TradeLookback limits the live scoring window; zero scores the full
	// available history.
	TradeLookback duration `toml:"trade_lookback"`
}

// Params converts the config section into detector tuning.
func (d DetectorConfig) Params() detector.Params {
	return detector.Params{
		LargeTradeThresholdUSD:   d.LargeTradeThresholdUSD,
		MaxAccountHistory:        d.MaxAccountHistory,
		FreshWeightMultiplier:    d.FreshWeightMultiplier,
		MinTrades:                d.MinTrades,
		TopK:                     d.TopK,
		ReferenceHourlyVolumeUSD: d.ReferenceHourlyVolumeUSD,
		ConcentrationSaturation:  d.ConcentrationSaturation,
		Weights: detector.Weights{
			Concentration: d.Weights.Concentration,
			Velocity:      d.Weights.Velocity,
			Skew:          d.Weights.Skew,
			Whale:         d.Weights.Whale,
			Volatility:    d.Weights.Volatility,
		},
	}
}

// BacktestConfig holds backtest run parameters.
type BacktestConfig struct {
	LookbackDays int      `toml:"lookback_days"`
	Horizon      duration `toml:"horizon"`
	Stride       int      `toml:"stride"`
	Workers      int      `toml:"workers"`
	MarketLimit  int      `toml:"market_limit"`
}

// PipelineConfig holds data-pipeline / scraping parameters.
type PipelineConfig struct {
	Enabled             bool     `toml:"enabled"`
	MarketSyncInterval  duration `toml:"market_sync_interval"`
	TradeScrapeInterval duration `toml:"trade_scrape_interval"`
	MarketPageSize      int      `toml:"market_page_size"`
	ArchiveCron         string   `toml:"archive_cron"`
	RetentionDays       int      `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the REST API when set; empty disables authentication.
	APIKey string `toml:"api_key"`
	// RateLimitPerSec caps requests per client IP; zero disables limiting.
	RateLimitPerSec int `toml:"rate_limit_per_sec"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:       "https://gamma-api.polymarket.com",
			DataHost:        "https://data-api.polymarket.com",
			HTTPTimeout:     duration{15 * time.Second},
			RateLimitPerSec: 5,
		},
		Onchain: OnchainConfig{
			Enabled: false,
			RPCURL:  "https://polygon-rpc.com",
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			CacheTTL:   duration{10 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "insiderscan-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Detector: DetectorConfig{
			LargeTradeThresholdUSD:   10_000,
			MaxAccountHistory:        10,
			FreshWeightMultiplier:    1.5,
			MinTrades:                5,
			TopK:                     3,
			ReferenceHourlyVolumeUSD: 25_000,
			ConcentrationSaturation:  1.0,
			Weights: WeightsConfig{
				Concentration: 0.25,
				Velocity:      0.15,
				Skew:          0.20,
				Whale:         0.25,
				Volatility:    0.15,
			},
			AlertThreshold: 0.7,
			ScanInterval:   duration{5 * time.Minute},
			Concurrency:    4,
			MarketLimit:    100,
			TradeLookback:  duration{0},
		},
		Backtest: BacktestConfig{
			LookbackDays: 30,
			Horizon:      duration{time.Hour},
			Stride:       1,
			Workers:      4,
			MarketLimit:  200,
		},
		Pipeline: PipelineConfig{
			Enabled:             false,
			MarketSyncInterval:  duration{5 * time.Minute},
			TradeScrapeInterval: duration{2 * time.Minute},
			MarketPageSize:      100,
			ArchiveCron:         "0 3 * * *",
			RetentionDays:       90,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerSec: 20,
		},
		Notify: NotifyConfig{
			Events: []string{"insider_signal", "backtest_completed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":     true,
	"backtest": true,
	"scrape":   true,
	"server":   true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, backtest, scrape, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}
	if c.Polymarket.RateLimitPerSec < 1 {
		errs = append(errs, "polymarket: rate_limit_per_sec must be >= 1")
	}

	// Onchain
	if c.Onchain.Enabled && c.Onchain.RPCURL == "" {
		errs = append(errs, "onchain: rpc_url must not be empty when enabled")
	}

	// Postgres
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Detector — delegate the scoring tuning to the core validation so the
	// rules cannot drift apart.
	if err := c.Detector.Params().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Detector.AlertThreshold < 0 || c.Detector.AlertThreshold > 1 {
		errs = append(errs, fmt.Sprintf("detector: alert_threshold must be in [0,1], got %.2f", c.Detector.AlertThreshold))
	}
	if c.Detector.ScanInterval.Duration <= 0 {
		errs = append(errs, "detector: scan_interval must be positive")
	}
	if c.Detector.Concurrency < 1 {
		errs = append(errs, "detector: concurrency must be >= 1")
	}

	// Backtest
	if c.Backtest.LookbackDays < 1 {
		errs = append(errs, "backtest: lookback_days must be >= 1")
	}
	if c.Backtest.Horizon.Duration <= 0 {
		errs = append(errs, "backtest: horizon must be positive")
	}
	if c.Backtest.Stride < 1 {
		errs = append(errs, "backtest: stride must be >= 1")
	}
	if c.Backtest.Workers < 1 {
		errs = append(errs, "backtest: workers must be >= 1")
	}

	// Pipeline
	if c.Pipeline.Enabled {
		if c.Pipeline.MarketSyncInterval.Duration <= 0 {
			errs = append(errs, "pipeline: market_sync_interval must be positive when enabled")
		}
		if c.Pipeline.TradeScrapeInterval.Duration <= 0 {
			errs = append(errs, "pipeline: trade_scrape_interval must be positive when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerSec < 0 {
			errs = append(errs, "server: rate_limit_per_sec must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
