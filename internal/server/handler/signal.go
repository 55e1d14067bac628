package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// SignalStore defines the read methods the signal handler requires.
type SignalStore interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Signal, error)
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Signal, error)
}

// SignalHandler serves scored-signal HTTP endpoints.
type SignalHandler struct {
	signals SignalStore
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler with the given store and logger.
func NewSignalHandler(signals SignalStore, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		signals: signals,
		logger:  logger,
	}
}

// listSignalsResponse wraps the list endpoint output with metadata.
type listSignalsResponse struct {
	Signals []domain.Signal `json:"signals"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListSignals returns the newest scored signals.
// GET /api/signals?limit=50&offset=0
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	signals, err := h.signals.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list signals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	if signals == nil {
		signals = []domain.Signal{}
	}

	writeJSON(w, http.StatusOK, listSignalsResponse{
		Signals: signals,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// ListMarketSignals returns the signal history of one market.
// GET /api/markets/{id}/signals?limit=50&offset=0
func (h *SignalHandler) ListMarketSignals(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}
	opts := parseListOpts(r)

	signals, err := h.signals.ListByMarket(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market signals failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	if signals == nil {
		signals = []domain.Signal{}
	}

	writeJSON(w, http.StatusOK, listSignalsResponse{
		Signals: signals,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}
