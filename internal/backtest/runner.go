package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MarketSource lists resolved markets to replay.
type MarketSource interface {
	ListResolvedMarkets(ctx context.Context, since time.Time, limit int) ([]domain.Market, error)
}

// TradeSource fetches the full trade history of one market, enriched with
// TraderHistoryCount.
type TradeSource interface {
	ListTrades(ctx context.Context, marketID string, since *time.Time) ([]domain.Trade, error)
}

// RunnerOpts tunes a backtest run.
type RunnerOpts struct {
	LookbackDays int // how far back resolved markets are pulled, default 30
	MarketLimit  int // max markets per run, default 200
	Workers      int // parallel market evaluations, default 4
}

// Runner drives a whole backtest: select resolved markets, replay each
// through the Validator on a bounded worker pool, persist the records, and
// archive the run. A per-market failure becomes a skipped record; only
// context cancellation aborts the run.
type Runner struct {
	validator *Validator
	markets   MarketSource
	trades    TradeSource
	store     domain.BacktestStore
	bus       domain.SignalBus
	locks     domain.LockManager
	blob      domain.BlobWriter
	limiter   domain.RateLimiter
	logger    *slog.Logger
	opts      RunnerOpts
}

// NewRunner wires a Runner. Store is required; bus, locks, blob, and limiter
// are optional and skipped when nil.
func NewRunner(
	validator *Validator,
	markets MarketSource,
	trades TradeSource,
	store domain.BacktestStore,
	bus domain.SignalBus,
	locks domain.LockManager,
	blob domain.BlobWriter,
	limiter domain.RateLimiter,
	logger *slog.Logger,
	opts RunnerOpts,
) *Runner {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 30
	}
	if opts.MarketLimit <= 0 {
		opts.MarketLimit = 200
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Runner{
		validator: validator,
		markets:   markets,
		trades:    trades,
		store:     store,
		bus:       bus,
		locks:     locks,
		blob:      blob,
		limiter:   limiter,
		logger:    logger.With(slog.String("component", "backtest")),
		opts:      opts,
	}
}

const runLockTTL = 30 * time.Minute

// Run executes one full backtest and returns its summary.
func (r *Runner) Run(ctx context.Context) (domain.BacktestSummary, error) {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, "backtest:run", runLockTTL)
		if err != nil {
			return domain.BacktestSummary{}, fmt.Errorf("backtest: acquire run lock: %w", err)
		}
		defer unlock()
	}

	runID := uuid.NewString()
	started := time.Now().UTC()
	since := started.AddDate(0, 0, -r.opts.LookbackDays)

	markets, err := r.markets.ListResolvedMarkets(ctx, since, r.opts.MarketLimit)
	if err != nil {
		return domain.BacktestSummary{}, fmt.Errorf("backtest: list resolved markets: %w", err)
	}

	r.logger.InfoContext(ctx, "backtest run started",
		slog.String("run_id", runID),
		slog.Int("markets", len(markets)),
		slog.Int("lookback_days", r.opts.LookbackDays),
	)

	var (
		mu      sync.Mutex
		records []domain.BacktestRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for _, m := range markets {
		g.Go(func() error {
			rec := r.evaluate(gctx, runID, m)
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.store.InsertRecord(gctx, rec); err != nil {
				r.logger.WarnContext(gctx, "persist backtest record failed",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()),
				)
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.BacktestSummary{}, fmt.Errorf("backtest: run %s interrupted: %w", runID, err)
	}

	summary := Summarize(runID, started, time.Now().UTC(), records)

	if err := r.store.InsertSummary(ctx, summary); err != nil {
		return summary, fmt.Errorf("backtest: persist summary %s: %w", runID, err)
	}

	if err := r.archive(ctx, summary, records); err != nil {
		r.logger.WarnContext(ctx, "archive backtest run failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}

	r.publish(ctx, summary)

	r.logger.InfoContext(ctx, "backtest run finished",
		slog.String("run_id", runID),
		slog.Int("scored", summary.MarketsScored),
		slog.Int("skipped", summary.MarketsSkipped),
		slog.Float64("accuracy", summary.Accuracy),
	)

	return summary, nil
}

// evaluate replays one market. Fetch failures are demoted to a skipped
// record so the batch keeps moving.
func (r *Runner) evaluate(ctx context.Context, runID string, m domain.Market) domain.BacktestRecord {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, "trades:fetch"); err != nil {
			return r.skipped(runID, m, SkipFetchFailed)
		}
	}

	trades, err := r.trades.ListTrades(ctx, m.ID, nil)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.WarnContext(ctx, "trade fetch failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
		return r.skipped(runID, m, SkipFetchFailed)
	}

	return r.validator.Evaluate(runID, m, trades, time.Now().UTC())
}

func (r *Runner) skipped(runID string, m domain.Market, reason string) domain.BacktestRecord {
	return domain.BacktestRecord{
		ID:         uuid.NewString(),
		RunID:      runID,
		MarketID:   m.ID,
		Question:   m.Question,
		Outcome:    domain.BacktestSkipped,
		SkipReason: reason,
		CreatedAt:  time.Now().UTC(),
	}
}

// archivePayload is the JSON object uploaded per run.
type archivePayload struct {
	Summary domain.BacktestSummary  `json:"summary"`
	Records []domain.BacktestRecord `json:"records"`
}

// archive uploads the whole run as one JSON object under
// backtests/<run-id>.json.
func (r *Runner) archive(ctx context.Context, summary domain.BacktestSummary, records []domain.BacktestRecord) error {
	if r.blob == nil {
		return nil
	}
	buf, err := json.Marshal(archivePayload{Summary: summary, Records: records})
	if err != nil {
		return fmt.Errorf("backtest: marshal archive: %w", err)
	}
	path := fmt.Sprintf("backtests/%s.json", summary.RunID)
	if err := r.blob.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("backtest: upload archive %s: %w", path, err)
	}
	return nil
}

func (r *Runner) publish(ctx context.Context, summary domain.BacktestSummary) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, "backtest.completed", payload); err != nil {
		r.logger.WarnContext(ctx, "publish backtest summary failed",
			slog.String("run_id", summary.RunID),
			slog.String("error", err.Error()),
		)
	}
	if err := r.bus.StreamAppend(ctx, "backtests", payload); err != nil {
		r.logger.WarnContext(ctx, "append backtest stream failed",
			slog.String("run_id", summary.RunID),
			slog.String("error", err.Error()),
		)
	}
}
