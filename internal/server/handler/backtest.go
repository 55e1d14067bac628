package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// BacktestStore defines the read methods the backtest handler requires.
type BacktestStore interface {
	ListSummaries(ctx context.Context, opts domain.ListOpts) ([]domain.BacktestSummary, error)
	GetSummary(ctx context.Context, runID string) (domain.BacktestSummary, error)
	ListRecords(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.BacktestRecord, error)
}

// BacktestHandler serves backtest HTTP endpoints.
type BacktestHandler struct {
	store     BacktestStore
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one backtest run
}

// NewBacktestHandler creates a BacktestHandler with the given store and logger.
func NewBacktestHandler(store BacktestStore, logger *slog.Logger) *BacktestHandler {
	return &BacktestHandler{
		store:  store,
		logger: logger,
	}
}

// WithTriggerChannel sets the channel to send on when a run is requested. The
// backtest loop must receive from this channel to run one cycle.
func (h *BacktestHandler) WithTriggerChannel(ch chan<- struct{}) *BacktestHandler {
	h.triggerCh = ch
	return h
}

// ListRuns returns backtest run summaries, newest first.
// GET /api/backtests?limit=50&offset=0
func (h *BacktestHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	sums, err := h.store.ListSummaries(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list backtests failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list backtests")
		return
	}
	if sums == nil {
		sums = []domain.BacktestSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":   sums,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// GetRun returns the summary of one run.
// GET /api/backtests/{runID}
func (h *BacktestHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := pathParam(r, "runID")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	sum, err := h.store.GetSummary(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "backtest run not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get backtest failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get backtest")
		return
	}

	writeJSON(w, http.StatusOK, sum)
}

// ListRunRecords returns the per-market records of one run.
// GET /api/backtests/{runID}/records?limit=50&offset=0
func (h *BacktestHandler) ListRunRecords(w http.ResponseWriter, r *http.Request) {
	runID := pathParam(r, "runID")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	opts := parseListOpts(r)

	records, err := h.store.ListRecords(r.Context(), runID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list backtest records failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list backtest records")
		return
	}
	if records == nil {
		records = []domain.BacktestRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  runID,
		"records": records,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// TriggerRun enqueues one backtest run. If a trigger channel is configured, a
// non-blocking send is performed so the backtest loop runs one cycle.
// POST /api/backtests/trigger
func (h *BacktestHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "handler: backtest trigger requested")
	if h.triggerCh != nil {
		select {
		case h.triggerCh <- struct{}{}:
		default:
			// already triggered and not yet consumed
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "backtest trigger enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
