package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTradeService struct {
	recent   []domain.Trade
	byMarket map[string][]domain.Trade
	err      error

	gotMarketID string
	gotOpts     domain.ListOpts
}

func (f *fakeTradeService) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	f.gotOpts = opts
	return f.recent, f.err
}

func (f *fakeTradeService) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	f.gotMarketID = marketID
	f.gotOpts = opts
	return f.byMarket[marketID], f.err
}

type fakeBacktestStore struct {
	summaries  []domain.BacktestSummary
	summaryErr error
}

func (f *fakeBacktestStore) ListSummaries(context.Context, domain.ListOpts) ([]domain.BacktestSummary, error) {
	return f.summaries, nil
}

func (f *fakeBacktestStore) GetSummary(_ context.Context, runID string) (domain.BacktestSummary, error) {
	if f.summaryErr != nil {
		return domain.BacktestSummary{}, f.summaryErr
	}
	return domain.BacktestSummary{RunID: runID}, nil
}

func (f *fakeBacktestStore) ListRecords(context.Context, string, domain.ListOpts) ([]domain.BacktestRecord, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func flaggedTrade(marketID string) domain.Trade {
	return domain.Trade{
		MarketID:      marketID,
		TraderAddress: "0xwhale",
		Outcome:       "Yes",
		Side:          domain.TradeSideBuy,
		Price:         0.5,
		SizeUSD:       15_000,
		Timestamp:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Flag:          domain.TradeFlagInsider,
	}
}

func plainTrade(marketID string) domain.Trade {
	t := flaggedTrade(marketID)
	t.SizeUSD = 50
	t.Flag = ""
	return t
}

func TestListTradesSplitsFlaggedFeed(t *testing.T) {
	svc := &fakeTradeService{recent: []domain.Trade{
		flaggedTrade("mkt-1"),
		plainTrade("mkt-1"),
		plainTrade("mkt-2"),
	}}
	h := NewTradeHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	rec := httptest.NewRecorder()
	h.ListTrades(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Flagged []domain.Trade `json:"flagged"`
		Trades  []domain.Trade `json:"trades"`
		Limit   int            `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Flagged, 1)
	assert.Len(t, resp.Trades, 2)
	assert.Equal(t, 50, resp.Limit, "default page size")
}

func TestListTradesClampsLimit(t *testing.T) {
	svc := &fakeTradeService{}
	h := NewTradeHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/trades?limit=9999&offset=20", nil)
	rec := httptest.NewRecorder()
	h.ListTrades(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, svc.gotOpts.Limit)
	assert.Equal(t, 20, svc.gotOpts.Offset)
}

func TestListMarketTradesUsesPathID(t *testing.T) {
	svc := &fakeTradeService{byMarket: map[string][]domain.Trade{
		"mkt-7": {plainTrade("mkt-7")},
	}}
	h := NewTradeHandler(svc, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}/trades", h.ListMarketTrades)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/mkt-7/trades", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mkt-7", svc.gotMarketID)
}

func TestListTradesInternalError(t *testing.T) {
	svc := &fakeTradeService{err: errors.New("postgres down")}
	h := NewTradeHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	rec := httptest.NewRecorder()
	h.ListTrades(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRunNotFound(t *testing.T) {
	store := &fakeBacktestStore{summaryErr: domain.ErrNotFound}
	h := NewBacktestHandler(store, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/backtests/{runID}", h.GetRun)

	req := httptest.NewRequest(http.MethodGet, "/api/backtests/missing-run", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunReturnsSummary(t *testing.T) {
	h := NewBacktestHandler(&fakeBacktestStore{}, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/backtests/{runID}", h.GetRun)

	req := httptest.NewRequest(http.MethodGet, "/api/backtests/run-42", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var sum domain.BacktestSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "run-42", sum.RunID)
}

func TestListRunsEmptyIsJSONArray(t *testing.T) {
	h := NewBacktestHandler(&fakeBacktestStore{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/backtests", nil)
	rec := httptest.NewRecorder()
	h.ListRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"runs":[]`)
}

func TestTriggerRunEnqueuesOnce(t *testing.T) {
	triggerCh := make(chan struct{}, 1)
	h := NewBacktestHandler(&fakeBacktestStore{}, testLogger()).WithTriggerChannel(triggerCh)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/backtests/trigger", nil)
		rec := httptest.NewRecorder()
		h.TriggerRun(rec, req)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	}

	// Repeated triggers collapse into the single pending slot.
	assert.Len(t, triggerCh, 1)
}

func TestTriggerRunWithoutChannelStillAccepts(t *testing.T) {
	h := NewBacktestHandler(&fakeBacktestStore{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/backtests/trigger", nil)
	rec := httptest.NewRecorder()
	h.TriggerRun(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}
