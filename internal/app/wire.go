package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/insiderscan/internal/blob/s3"
	"github.com/alanyoungcy/insiderscan/internal/cache/redis"
	"github.com/alanyoungcy/insiderscan/internal/config"
	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/alanyoungcy/insiderscan/internal/notify"
	"github.com/alanyoungcy/insiderscan/internal/platform/onchain"
	"github.com/alanyoungcy/insiderscan/internal/platform/polymarket"
	"github.com/alanyoungcy/insiderscan/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	MarketStore   domain.MarketStore
	TradeStore    domain.TradeStore
	SignalStore   domain.SignalStore
	BacktestStore domain.BacktestStore
	AuditStore    domain.AuditStore

	// Caches
	MarketCache   domain.MarketCache
	TraderHistory domain.TraderHistoryCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Upstream clients
	Gamma  *polymarket.GammaClient
	Data   *polymarket.DataClient
	Nonces *onchain.NonceClient

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "live", "backtest", "scrape", "server", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	switch mode {
	case "backtest", "scrape", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
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

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.SignalStore = postgres.NewSignalStore(pool)
		deps.BacktestStore = postgres.NewBacktestStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

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

	deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
	deps.TraderHistory = redis.NewTraderHistoryCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Polymarket.RateLimitPerSec)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only for modes that need object storage) ---
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

		// Archiver: only when Postgres is also wired (stores with ListBefore).
		if tradeStore, ok := deps.TradeStore.(*postgres.TradeStore); ok {
			signalStore := deps.SignalStore.(*postgres.SignalStore)
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				tradeStore,
				signalStore,
				deps.AuditStore,
			)
		}
	}

	// --- Upstream API clients ---
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, cfg.Polymarket.HTTPTimeout.Duration)
	deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost, cfg.Polymarket.HTTPTimeout.Duration)

	if cfg.Onchain.Enabled {
		nonces, err := onchain.NewNonceClient(cfg.Onchain.RPCURL, cfg.Polymarket.HTTPTimeout.Duration)
		if err != nil {
			logger.Warn("wire: onchain nonce client unavailable, history falls back to the Data API",
				slog.String("rpc_url", cfg.Onchain.RPCURL),
				slog.String("error", err.Error()),
			)
		} else {
			closers = append(closers, nonces.Close)
			deps.Nonces = nonces
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
