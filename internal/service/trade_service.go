package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/detector"
	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// HistorySource resolves how many prior activity entries an address has on
// the upstream Data API.
type HistorySource interface {
	UserActivityCount(ctx context.Context, address string) (int, error)
}

// NonceSource resolves an address's on-chain transaction count, used as a
// fallback history signal when the Data API has no record of the address.
type NonceSource interface {
	TransactionCount(ctx context.Context, address string) (int, error)
}

// TradeService handles trade fill ingestion, enrichment, and querying.
type TradeService struct {
	trades  domain.TradeStore
	history domain.TraderHistoryCache
	source  HistorySource
	nonces  NonceSource
	bus     domain.SignalBus
	audit   domain.AuditStore
	params  detector.Params
	logger  *slog.Logger
}

// NewTradeService creates a TradeService. history, source, nonces, bus, and
// audit are optional and skipped when nil.
func NewTradeService(
	trades domain.TradeStore,
	history domain.TraderHistoryCache,
	source HistorySource,
	nonces NonceSource,
	bus domain.SignalBus,
	audit domain.AuditStore,
	params detector.Params,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:  trades,
		history: history,
		source:  source,
		nonces:  nonces,
		bus:     bus,
		audit:   audit,
		params:  params,
		logger:  logger,
	}
}

// Enrich fills in TraderHistoryCount and the detector flag for each trade.
// History counts resolve through the cache, then the Data API, then the
// on-chain nonce. A trade whose history cannot be resolved keeps count zero,
// which errs toward treating the account as fresh.
func (s *TradeService) Enrich(ctx context.Context, trades []domain.Trade) []domain.Trade {
	for i := range trades {
		trades[i].TraderHistoryCount = s.historyCount(ctx, trades[i].TraderAddress)
		trades[i].Flag = s.params.FlagFor(trades[i])
	}
	return trades
}

func (s *TradeService) historyCount(ctx context.Context, address string) int {
	if address == "" {
		return 0
	}

	if s.history != nil {
		if count, err := s.history.GetCount(ctx, address); err == nil {
			return count
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "trade_service: history cache read failed",
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
		}
	}

	count, err := s.resolveHistory(ctx, address)
	if err != nil {
		s.logger.WarnContext(ctx, "trade_service: history lookup failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		return 0
	}

	if s.history != nil {
		if err := s.history.SetCount(ctx, address, count); err != nil {
			s.logger.WarnContext(ctx, "trade_service: history cache write failed",
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
		}
	}
	return count
}

// resolveHistory queries the Data API first; when it reports zero or fails,
// the on-chain nonce serves as a lower bound.
func (s *TradeService) resolveHistory(ctx context.Context, address string) (int, error) {
	var apiErr error
	if s.source != nil {
		count, err := s.source.UserActivityCount(ctx, address)
		if err == nil && count > 0 {
			return count, nil
		}
		apiErr = err
	}

	if s.nonces != nil {
		count, err := s.nonces.TransactionCount(ctx, address)
		if err == nil {
			return count, nil
		}
		if apiErr == nil {
			apiErr = err
		}
	}

	if apiErr != nil {
		return 0, apiErr
	}
	return 0, nil
}

// IngestTrades enriches and inserts a batch of trade fills, publishes an
// event for each flagged trade on the signal bus, and writes an audit log
// entry for the batch.
func (s *TradeService) IngestTrades(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	trades = s.Enrich(ctx, trades)

	if err := s.trades.InsertBatch(ctx, trades); err != nil {
		return fmt.Errorf("trade_service: insert batch: %w", err)
	}

	flagged := 0
	for _, t := range trades {
		if t.Flag == "" {
			continue
		}
		flagged++
		if s.bus == nil {
			continue
		}
		evt, _ := json.Marshal(map[string]any{
			"event":     "trade_flagged",
			"flag":      t.Flag,
			"market":    t.MarketID,
			"trader":    t.TraderAddress,
			"outcome":   t.Outcome,
			"price":     t.Price,
			"size_usd":  t.SizeUSD,
			"timestamp": t.Timestamp.Format(time.RFC3339),
		})
		if pubErr := s.bus.Publish(ctx, "trades.flagged", evt); pubErr != nil {
			s.logger.WarnContext(ctx, "trade_service: publish event failed",
				slog.String("market_id", t.MarketID),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, "trades_ingested", map[string]any{
			"count":   len(trades),
			"flagged": flagged,
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "trade_service: audit log failed",
				slog.String("error", auditErr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "trade_service: ingested trades",
		slog.Int("count", len(trades)),
		slog.Int("flagged", flagged),
	)

	return nil
}

// GetLastTimestamp returns the timestamp of the most recently ingested trade
// for a market, used to resume incremental ingestion.
func (s *TradeService) GetLastTimestamp(ctx context.Context, marketID string) (time.Time, error) {
	ts, err := s.trades.GetLastTimestamp(ctx, marketID)
	if err != nil {
		return time.Time{}, fmt.Errorf("trade_service: get last timestamp: %w", err)
	}
	return ts, nil
}

// ListByMarket returns trades for a specific market with pagination.
func (s *TradeService) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list by market %q: %w", marketID, err)
	}
	return trades, nil
}

// ListRecent returns the newest trades across all markets.
func (s *TradeService) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListRecent(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list recent: %w", err)
	}
	return trades, nil
}
