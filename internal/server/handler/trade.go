package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// TradeService defines the methods that the trade handler requires from the
// service layer.
type TradeService interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error)
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trade-related HTTP endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// listTradesResponse splits the feed the way the dashboard renders it:
// flagged fills on top, the rest below.
type listTradesResponse struct {
	Flagged []domain.Trade `json:"flagged"`
	Trades  []domain.Trade `json:"trades"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// ListTrades returns recent trades across all markets, split into flagged and
// unflagged fills.
// GET /api/trades?limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	trades, err := h.trades.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	writeJSON(w, http.StatusOK, splitTrades(trades, opts))
}

// ListMarketTrades returns the trades of one market.
// GET /api/markets/{id}/trades?limit=50&offset=0
func (h *TradeHandler) ListMarketTrades(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}
	opts := parseListOpts(r)

	trades, err := h.trades.ListByMarket(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market trades failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	writeJSON(w, http.StatusOK, splitTrades(trades, opts))
}

func splitTrades(trades []domain.Trade, opts domain.ListOpts) listTradesResponse {
	resp := listTradesResponse{
		Flagged: []domain.Trade{},
		Trades:  []domain.Trade{},
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}
	for _, t := range trades {
		if t.Flag != "" {
			resp.Flagged = append(resp.Flagged, t)
		} else {
			resp.Trades = append(resp.Trades, t)
		}
	}
	return resp
}
