package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// MarketSyncer persists a batch of markets to the store.
type MarketSyncer interface {
	SyncMarkets(ctx context.Context, markets []domain.Market) error
}

// MarketFetcher retrieves markets from an external API.
type MarketFetcher interface {
	GetMarkets(ctx context.Context, limit, offset int) ([]domain.Market, error)
}

// MarketScraper walks the Gamma market catalogue and syncs it to the store.
type MarketScraper struct {
	marketSvc MarketSyncer
	fetcher   MarketFetcher
	pageSize  int
	logger    *slog.Logger
}

// NewMarketScraper creates a new MarketScraper. A non-positive pageSize
// defaults to 100.
func NewMarketScraper(syncer MarketSyncer, fetcher MarketFetcher, pageSize int, logger *slog.Logger) *MarketScraper {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &MarketScraper{
		marketSvc: syncer,
		fetcher:   fetcher,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// Run executes a single scrape run that paginates through all markets and syncs
// each batch to the store.
func (s *MarketScraper) Run(ctx context.Context) error {
	offset := 0
	totalSynced := 0

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("market scraper context cancelled: %w", err)
		}

		markets, err := s.fetcher.GetMarkets(ctx, s.pageSize, offset)
		if err != nil {
			return fmt.Errorf("fetching markets at offset %d: %w", offset, err)
		}

		if len(markets) == 0 {
			break
		}

		if err := s.marketSvc.SyncMarkets(ctx, markets); err != nil {
			return fmt.Errorf("syncing %d markets at offset %d: %w", len(markets), offset, err)
		}

		totalSynced += len(markets)
		s.logger.Info("synced market batch",
			slog.Int("batch_size", len(markets)),
			slog.Int("total_synced", totalSynced),
			slog.Int("offset", offset),
		)

		if len(markets) < s.pageSize {
			break
		}

		offset += s.pageSize
	}

	s.logger.Info("market scrape complete", slog.Int("total_synced", totalSynced))
	return nil
}

// RunLoop runs the market scraper on a repeating interval until the context is
// cancelled.
func (s *MarketScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := s.Run(ctx); err != nil {
		s.logger.Error("market scrape failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("market scraper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("market scrape failed", slog.String("error", err.Error()))
			}
		}
	}
}
