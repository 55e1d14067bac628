package detector

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"golang.org/x/sync/errgroup"
)

// MarketSource lists the markets a scan should evaluate.
type MarketSource interface {
	ListActiveMarkets(ctx context.Context, limit int) ([]domain.Market, error)
}

// TradeSource fetches the scoring window of trades for one market. Trades
// must arrive enriched with TraderHistoryCount.
type TradeSource interface {
	ListTrades(ctx context.Context, marketID string, since *time.Time) ([]domain.Trade, error)
}

// Scanner evaluates active markets in parallel and ranks the resulting
// signals by insider probability.
type Scanner struct {
	params      Params
	markets     MarketSource
	trades      TradeSource
	limiter     domain.RateLimiter
	logger      *slog.Logger
	concurrency int
	marketLimit int
	lookback    time.Duration
}

// ScannerOpts configures a Scanner.
type ScannerOpts struct {
	Params      Params
	Concurrency int           // worker pool size, default 4
	MarketLimit int           // max active markets per scan, default 100
	Lookback    time.Duration // trade window lookback, zero = full history
}

// NewScanner wires a Scanner over the given sources. The rate limiter guards
// the upstream trade fetches and may be nil when the source is local.
func NewScanner(markets MarketSource, trades TradeSource, limiter domain.RateLimiter, logger *slog.Logger, opts ScannerOpts) *Scanner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MarketLimit <= 0 {
		opts.MarketLimit = 100
	}
	return &Scanner{
		params:      opts.Params,
		markets:     markets,
		trades:      trades,
		limiter:     limiter,
		logger:      logger.With(slog.String("component", "scanner")),
		concurrency: opts.Concurrency,
		marketLimit: opts.MarketLimit,
		lookback:    opts.Lookback,
	}
}

// Scan evaluates the active markets and returns signals sorted by insider
// probability descending, ties broken by window volume descending. Markets
// with insufficient data are omitted; a single market's failure is logged
// and skipped, never aborts the batch.
func (s *Scanner) Scan(ctx context.Context) ([]domain.Signal, error) {
	markets, err := s.markets.ListActiveMarkets(ctx, s.marketLimit)
	if err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		signals []domain.Signal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, m := range markets {
		g.Go(func() error {
			sig, err := s.evaluate(gctx, m)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				if !errors.Is(err, domain.ErrInsufficientData) {
					s.logger.WarnContext(gctx, "market evaluation failed",
						slog.String("market_id", m.ID),
						slog.String("error", err.Error()),
					)
				}
				return nil
			}
			mu.Lock()
			signals = append(signals, sig)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(signals, func(i, j int) bool {
		if signals[i].InsiderProbability != signals[j].InsiderProbability {
			return signals[i].InsiderProbability > signals[j].InsiderProbability
		}
		if signals[i].RiskScore != signals[j].RiskScore {
			return signals[i].RiskScore > signals[j].RiskScore
		}
		return signals[i].TotalVolumeUSD > signals[j].TotalVolumeUSD
	})

	return signals, nil
}

// evaluate fetches one market's trade window and scores it.
func (s *Scanner) evaluate(ctx context.Context, m domain.Market) (domain.Signal, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, "trades:fetch"); err != nil {
			return domain.Signal{}, err
		}
	}

	var since *time.Time
	if s.lookback > 0 {
		t := time.Now().Add(-s.lookback)
		since = &t
	}

	trades, err := s.trades.ListTrades(ctx, m.ID, since)
	if err != nil {
		return domain.Signal{}, err
	}

	w := NewWindow(s.params)
	for _, t := range trades {
		if err := w.Add(t); err != nil {
			s.logger.DebugContext(ctx, "dropped malformed trade",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	sig, err := w.Signal(m.ID, time.Now().UTC())
	if err != nil {
		return domain.Signal{}, err
	}
	sig.Question = m.Question
	return sig, nil
}
