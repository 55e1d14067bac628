package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages all pipeline goroutines: market catalogue scraping,
// incremental trade ingestion, and cold-storage archival.
type Orchestrator struct {
	marketScraper  *MarketScraper
	tradeScraper   *TradeScraper
	archiver       *Archiver
	marketInterval time.Duration
	tradeInterval  time.Duration
	archiveCron    string
	logger         *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates all pipeline
// sub-systems. archiver is optional and skipped when nil.
func NewOrchestrator(
	marketScraper *MarketScraper,
	tradeScraper *TradeScraper,
	archiver *Archiver,
	marketInterval time.Duration,
	tradeInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		marketScraper:  marketScraper,
		tradeScraper:   tradeScraper,
		archiver:       archiver,
		marketInterval: marketInterval,
		tradeInterval:  tradeInterval,
		archiveCron:    archiveCron,
		logger:         logger,
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("market_interval", o.marketInterval),
		slog.Duration("trade_interval", o.tradeInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	// 1. Market scraper on ticker.
	g.Go(func() error {
		o.logger.Info("starting market scraper loop")
		err := o.marketScraper.RunLoop(ctx, o.marketInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("market scraper: %w", err)
	})

	// 2. Trade scraper on ticker.
	g.Go(func() error {
		o.logger.Info("starting trade scraper loop")
		err := o.tradeScraper.RunLoop(ctx, o.tradeInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("trade scraper: %w", err)
	})

	// 3. Archiver on cron schedule.
	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
