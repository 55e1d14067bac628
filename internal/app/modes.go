package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/insiderscan/internal/backtest"
	"github.com/alanyoungcy/insiderscan/internal/detector"
	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/alanyoungcy/insiderscan/internal/pipeline"
	"github.com/alanyoungcy/insiderscan/internal/server"
	"github.com/alanyoungcy/insiderscan/internal/server/handler"
	"github.com/alanyoungcy/insiderscan/internal/server/ws"
	"github.com/alanyoungcy/insiderscan/internal/service"
)

// ---------------------------------------------------------------------------
// Trade and market source adapters.
//
// The scoring core consumes narrow sources so modes can wire it either
// directly against the public APIs (live, backtest) or against the ingested
// store (full, where the pipeline keeps the database current).
// ---------------------------------------------------------------------------

// enrichedTradeSource fetches fills from the Data API and resolves trader
// history before handing them to the scoring core.
type enrichedTradeSource struct {
	fetcher pipeline.TradeFetcher
	trades  *service.TradeService
}

func (s *enrichedTradeSource) ListTrades(ctx context.Context, marketID string, since *time.Time) ([]domain.Trade, error) {
	trades, err := s.fetcher.ListTrades(ctx, marketID, since)
	if err != nil {
		return nil, err
	}
	return s.trades.Enrich(ctx, trades), nil
}

// storeMarketSource adapts the market store to the scanner's market listing.
type storeMarketSource struct {
	markets domain.MarketStore
}

func (s *storeMarketSource) ListActiveMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	return s.markets.ListActive(ctx, domain.ListOpts{Limit: limit})
}

// storeTradeSource reads already-enriched fills back out of the trade store.
type storeTradeSource struct {
	trades domain.TradeStore
}

func (s *storeTradeSource) ListTrades(ctx context.Context, marketID string, since *time.Time) ([]domain.Trade, error) {
	return s.trades.ListByMarket(ctx, marketID, domain.ListOpts{Since: since})
}

// ---------------------------------------------------------------------------
// Shared builders.
// ---------------------------------------------------------------------------

// buildTradeService wires the enrichment chain: history cache, Data API
// activity counts, and the optional on-chain nonce fallback.
func (a *App) buildTradeService(deps *Dependencies) *service.TradeService {
	var nonces service.NonceSource
	if deps.Nonces != nil {
		nonces = deps.Nonces
	}
	return service.NewTradeService(
		deps.TradeStore,
		deps.TraderHistory,
		deps.Data,
		nonces,
		deps.SignalBus,
		deps.AuditStore,
		a.cfg.Detector.Params(),
		a.logger,
	)
}

// buildScanner assembles the live scoring scanner over the given sources.
// limiter may be nil when the sources are local.
func (a *App) buildScanner(markets detector.MarketSource, trades detector.TradeSource, limiter domain.RateLimiter) *detector.Scanner {
	return detector.NewScanner(markets, trades, limiter, a.logger, detector.ScannerOpts{
		Params:      a.cfg.Detector.Params(),
		Concurrency: a.cfg.Detector.Concurrency,
		MarketLimit: a.cfg.Detector.MarketLimit,
		Lookback:    a.cfg.Detector.TradeLookback.Duration,
	})
}

// buildBacktestRunner assembles the backtest runner against the public APIs so
// a run replays the full recorded fill history of each resolved market.
func (a *App) buildBacktestRunner(deps *Dependencies) *backtest.Runner {
	validator := backtest.NewValidator(
		a.cfg.Detector.Params(),
		a.cfg.Backtest.Horizon.Duration,
		a.cfg.Backtest.Stride,
	)
	src := &enrichedTradeSource{fetcher: deps.Data, trades: a.buildTradeService(deps)}
	return backtest.NewRunner(
		validator,
		deps.Gamma,
		src,
		deps.BacktestStore,
		deps.SignalBus,
		deps.LockManager,
		deps.BlobWriter,
		deps.RateLimiter,
		a.logger,
		backtest.RunnerOpts{
			LookbackDays: a.cfg.Backtest.LookbackDays,
			MarketLimit:  a.cfg.Backtest.MarketLimit,
			Workers:      a.cfg.Backtest.Workers,
		},
	)
}

// buildOrchestrator assembles the data pipeline: market catalogue sync,
// incremental trade ingestion, and the cold-storage archiver cron.
func (a *App) buildOrchestrator(deps *Dependencies) *pipeline.Orchestrator {
	marketSvc := service.NewMarketService(deps.MarketStore, deps.MarketCache, a.logger)
	tradeSvc := a.buildTradeService(deps)

	marketScraper := pipeline.NewMarketScraper(marketSvc, deps.Gamma, a.cfg.Pipeline.MarketPageSize, a.logger)
	tradeScraper := pipeline.NewTradeScraper(
		marketSvc,
		deps.Data,
		tradeSvc,
		deps.RateLimiter,
		a.cfg.Detector.MarketLimit,
		a.logger,
	)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.RetentionDays, a.logger)
	}

	return pipeline.NewOrchestrator(
		marketScraper,
		tradeScraper,
		archiver,
		a.cfg.Pipeline.MarketSyncInterval.Duration,
		a.cfg.Pipeline.TradeScrapeInterval.Duration,
		a.cfg.Pipeline.ArchiveCron,
		a.logger,
	)
}

// runBacktestOnTrigger consumes the trigger channel and runs one backtest per
// request. Used by the server and full modes to serve POST /api/backtests/trigger.
func (a *App) runBacktestOnTrigger(ctx context.Context, runner *backtest.Runner, deps *Dependencies, triggerCh <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-triggerCh:
			summary, err := runner.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.ErrorContext(ctx, "triggered backtest failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			a.notifyBacktest(ctx, deps, summary)
		}
	}
}

func (a *App) notifyBacktest(ctx context.Context, deps *Dependencies, summary domain.BacktestSummary) {
	title := fmt.Sprintf("Backtest %s finished", summary.RunID)
	message := fmt.Sprintf(
		"scored=%d skipped=%d accuracy=%.1f%% avg_movement=%.2f%%",
		summary.MarketsScored, summary.MarketsSkipped,
		summary.Accuracy*100, summary.AvgMovementPct,
	)
	if err := deps.Notifier.Notify(ctx, "backtest_completed", title, message); err != nil {
		a.logger.WarnContext(ctx, "backtest notification failed",
			slog.String("run_id", summary.RunID),
			slog.String("error", err.Error()),
		)
	}
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. backtestTriggerCh is optional; when non-nil, POST
// /api/backtests/trigger sends on it to request one run.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, backtestTriggerCh chan<- struct{}) {
	marketSvc := service.NewMarketService(deps.MarketStore, deps.MarketCache, a.logger)
	tradeSvc := a.buildTradeService(deps)

	backtests := handler.NewBacktestHandler(deps.BacktestStore, a.logger)
	if backtestTriggerCh != nil {
		backtests = backtests.WithTriggerChannel(backtestTriggerCh)
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Detector.AlertThreshold),
		Markets:   handler.NewMarketHandler(marketSvc, a.logger),
		Trades:    handler.NewTradeHandler(tradeSvc, a.logger),
		Signals:   handler.NewSignalHandler(deps.SignalStore, a.logger),
		Backtests: backtests,
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("ws hub: %w", err)
	})

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}
	if a.cfg.Server.RateLimitPerSec > 0 {
		srvCfg.RateLimiter = deps.RateLimiter
		srvCfg.RateLimit = a.cfg.Server.RateLimitPerSec
		srvCfg.RateWindow = time.Second
	}

	srv := server.NewServer(srvCfg, handlers, hub, a.logger)

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

// ---------------------------------------------------------------------------
// Modes.
// ---------------------------------------------------------------------------

// LiveMode scans active markets against the public APIs on an interval,
// persists every scored signal, and alerts on signals above the configured
// threshold.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode",
		slog.Duration("scan_interval", a.cfg.Detector.ScanInterval.Duration),
		slog.Float64("alert_threshold", a.cfg.Detector.AlertThreshold),
	)

	g, ctx := errgroup.WithContext(ctx)

	tradeSvc := a.buildTradeService(deps)
	src := &enrichedTradeSource{fetcher: deps.Data, trades: tradeSvc}
	scanner := a.buildScanner(deps.Gamma, src, deps.RateLimiter)

	scanSvc := service.NewScanService(
		scanner,
		deps.SignalStore,
		deps.SignalBus,
		deps.Notifier,
		a.cfg.Detector.AlertThreshold,
		a.cfg.Detector.ScanInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		err := scanSvc.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("scan loop: %w", err)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, nil)
	}

	return g.Wait()
}

// BacktestMode executes one backtest run over resolved markets and exits.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backtest mode",
		slog.Int("lookback_days", a.cfg.Backtest.LookbackDays),
		slog.Duration("horizon", a.cfg.Backtest.Horizon.Duration),
		slog.Int("stride", a.cfg.Backtest.Stride),
	)

	runner := a.buildBacktestRunner(deps)
	summary, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	a.notifyBacktest(ctx, deps, summary)
	return nil
}

// ScrapeMode runs only the data pipeline: market catalogue sync, incremental
// trade ingestion, and the archiver cron.
func (a *App) ScrapeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scrape mode")

	if !a.cfg.Pipeline.Enabled {
		a.logger.WarnContext(ctx, "pipeline.enabled is false, but scrape mode always runs the pipeline")
	}

	g, ctx := errgroup.WithContext(ctx)
	orch := a.buildOrchestrator(deps)
	g.Go(func() error {
		err := orch.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})
	return g.Wait()
}

// ServerMode serves the REST API and WebSocket hub over already-ingested data.
// Backtests can still be triggered through the API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)

	triggerCh := make(chan struct{}, 1)
	runner := a.buildBacktestRunner(deps)
	g.Go(func() error {
		return a.runBacktestOnTrigger(ctx, runner, deps, triggerCh)
	})

	a.startHTTPServer(ctx, g, deps, triggerCh)

	return g.Wait()
}

// FullMode runs every subsystem: the data pipeline keeps the store current,
// the scanner scores the ingested fills, backtests run on demand, and the
// HTTP server exposes it all.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	// Data pipeline.
	if !a.cfg.Pipeline.Enabled {
		a.logger.WarnContext(ctx, "pipeline.enabled is false, but full mode always runs the pipeline")
	}
	orch := a.buildOrchestrator(deps)
	g.Go(func() error {
		err := orch.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	// Scanner over the ingested store. The pipeline already enriched the
	// fills at ingest time, so no limiter or re-enrichment is needed here.
	scanner := a.buildScanner(
		&storeMarketSource{markets: deps.MarketStore},
		&storeTradeSource{trades: deps.TradeStore},
		nil,
	)
	scanSvc := service.NewScanService(
		scanner,
		deps.SignalStore,
		deps.SignalBus,
		deps.Notifier,
		a.cfg.Detector.AlertThreshold,
		a.cfg.Detector.ScanInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		err := scanSvc.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("scan loop: %w", err)
	})

	// On-demand backtests.
	triggerCh := make(chan struct{}, 1)
	runner := a.buildBacktestRunner(deps)
	g.Go(func() error {
		return a.runBacktestOnTrigger(ctx, runner, deps, triggerCh)
	})

	// HTTP server.
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, triggerCh)
	}

	return g.Wait()
}
