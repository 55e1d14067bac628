package backtest

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketSource struct {
	markets []domain.Market
}

func (f *fakeMarketSource) ListResolvedMarkets(_ context.Context, _ time.Time, limit int) ([]domain.Market, error) {
	if len(f.markets) > limit {
		return f.markets[:limit], nil
	}
	return f.markets, nil
}

type fakeTradeSource struct {
	byMarket map[string][]domain.Trade
	errFor   map[string]error
}

func (f *fakeTradeSource) ListTrades(_ context.Context, marketID string, _ *time.Time) ([]domain.Trade, error) {
	if err := f.errFor[marketID]; err != nil {
		return nil, err
	}
	return f.byMarket[marketID], nil
}

type memBacktestStore struct {
	mu        sync.Mutex
	records   []domain.BacktestRecord
	summaries []domain.BacktestSummary
}

func (s *memBacktestStore) InsertRecord(_ context.Context, rec domain.BacktestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memBacktestStore) InsertSummary(_ context.Context, sum domain.BacktestSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	return nil
}

func (s *memBacktestStore) ListRecords(_ context.Context, runID string, _ domain.ListOpts) ([]domain.BacktestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BacktestRecord
	for _, r := range s.records {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memBacktestStore) GetSummary(_ context.Context, runID string) (domain.BacktestSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sum := range s.summaries {
		if sum.RunID == runID {
			return sum, nil
		}
	}
	return domain.BacktestSummary{}, domain.ErrNotFound
}

func (s *memBacktestStore) ListSummaries(_ context.Context, _ domain.ListOpts) ([]domain.BacktestSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BacktestSummary(nil), s.summaries...), nil
}

func TestRunnerScoresAndPersists(t *testing.T) {
	resolvedA := resolvedMarket("Yes")
	resolvedA.ID = "mkt-a"
	resolvedB := resolvedMarket("Yes")
	resolvedB.ID = "mkt-b"

	tradesA := quietThenBurst()
	for i := range tradesA {
		tradesA[i].MarketID = "mkt-a"
	}

	store := &memBacktestStore{}
	runner := NewRunner(
		newTestValidator(),
		&fakeMarketSource{markets: []domain.Market{resolvedA, resolvedB}},
		&fakeTradeSource{byMarket: map[string][]domain.Trade{"mkt-a": tradesA}},
		store, nil, nil, nil, nil,
		slog.New(slog.DiscardHandler),
		RunnerOpts{Workers: 2},
	)

	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.MarketsScored)
	assert.Equal(t, 1, sum.MarketsSkipped)
	assert.Equal(t, 1, sum.SkipReasonCounts[SkipInsufficientData])

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.records, 2)
	require.Len(t, store.summaries, 1)
	assert.Equal(t, sum.RunID, store.summaries[0].RunID)
	for _, rec := range store.records {
		assert.Equal(t, sum.RunID, rec.RunID)
	}
}

func TestRunnerDemotesFetchFailures(t *testing.T) {
	broken := resolvedMarket("Yes")
	broken.ID = "mkt-broken"

	store := &memBacktestStore{}
	runner := NewRunner(
		newTestValidator(),
		&fakeMarketSource{markets: []domain.Market{broken}},
		&fakeTradeSource{errFor: map[string]error{"mkt-broken": domain.ErrUpstreamUnavailable}},
		store, nil, nil, nil, nil,
		slog.New(slog.DiscardHandler),
		RunnerOpts{},
	)

	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, sum.MarketsScored)
	assert.Equal(t, 1, sum.MarketsSkipped)
	assert.Equal(t, 1, sum.SkipReasonCounts[SkipFetchFailed])
}

func TestRunnerHonoursMarketLimit(t *testing.T) {
	var markets []domain.Market
	for i := 0; i < 8; i++ {
		m := resolvedMarket("Yes")
		m.ID = "mkt-" + string(rune('a'+i))
		markets = append(markets, m)
	}

	store := &memBacktestStore{}
	runner := NewRunner(
		newTestValidator(),
		&fakeMarketSource{markets: markets},
		&fakeTradeSource{},
		store, nil, nil, nil, nil,
		slog.New(slog.DiscardHandler),
		RunnerOpts{MarketLimit: 3},
	)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.records, 3)
}
