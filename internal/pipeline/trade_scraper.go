package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// ActiveMarketLister lists the markets whose trades should be ingested.
type ActiveMarketLister interface {
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// TradeFetcher retrieves the trades of one market from an external API.
type TradeFetcher interface {
	ListTrades(ctx context.Context, marketID string, since *time.Time) ([]domain.Trade, error)
}

// TradeIngester enriches and persists trade batches, and reports the newest
// stored timestamp per market for incremental resume.
type TradeIngester interface {
	IngestTrades(ctx context.Context, trades []domain.Trade) error
	GetLastTimestamp(ctx context.Context, marketID string) (time.Time, error)
}

// TradeScraper ingests fills incrementally: for each tracked market it fetches
// everything newer than the last stored fill and pushes the batch through the
// enrichment pipeline.
type TradeScraper struct {
	markets     ActiveMarketLister
	fetcher     TradeFetcher
	ingester    TradeIngester
	limiter     domain.RateLimiter
	marketLimit int
	logger      *slog.Logger
}

// NewTradeScraper creates a new TradeScraper. limiter is optional. A
// non-positive marketLimit defaults to 100.
func NewTradeScraper(
	markets ActiveMarketLister,
	fetcher TradeFetcher,
	ingester TradeIngester,
	limiter domain.RateLimiter,
	marketLimit int,
	logger *slog.Logger,
) *TradeScraper {
	if marketLimit <= 0 {
		marketLimit = 100
	}
	return &TradeScraper{
		markets:     markets,
		fetcher:     fetcher,
		ingester:    ingester,
		limiter:     limiter,
		marketLimit: marketLimit,
		logger:      logger,
	}
}

// Run executes a single scrape pass over the tracked markets. Per-market
// failures are logged and skipped; only context cancellation aborts the pass.
func (s *TradeScraper) Run(ctx context.Context) error {
	markets, err := s.markets.ListActive(ctx, domain.ListOpts{Limit: s.marketLimit})
	if err != nil {
		return fmt.Errorf("trade scraper: list markets: %w", err)
	}

	totalIngested := 0
	for _, m := range markets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("trade scraper context cancelled: %w", err)
		}

		n, err := s.scrapeMarket(ctx, m.ID)
		if err != nil {
			s.logger.Warn("market trade scrape failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		totalIngested += n
	}

	s.logger.Info("trade scrape complete",
		slog.Int("markets", len(markets)),
		slog.Int("total_ingested", totalIngested),
	)
	return nil
}

func (s *TradeScraper) scrapeMarket(ctx context.Context, marketID string) (int, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, "trades:fetch"); err != nil {
			return 0, err
		}
	}

	var since *time.Time
	last, err := s.ingester.GetLastTimestamp(ctx, marketID)
	if err != nil {
		s.logger.Warn("last timestamp lookup failed, fetching full history",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	} else if !last.IsZero() {
		// Strictly-after cutoff so the newest stored fill is not re-fetched.
		after := last.Add(time.Second)
		since = &after
	}

	trades, err := s.fetcher.ListTrades(ctx, marketID, since)
	if err != nil {
		return 0, err
	}
	if len(trades) == 0 {
		return 0, nil
	}

	if err := s.ingester.IngestTrades(ctx, trades); err != nil {
		return 0, err
	}
	return len(trades), nil
}

// RunLoop runs the trade scraper on a repeating interval until the context is
// cancelled.
func (s *TradeScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := s.Run(ctx); err != nil {
		s.logger.Error("trade scrape failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("trade scraper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("trade scrape failed", slog.String("error", err.Error()))
			}
		}
	}
}
