package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActiveMarketLister struct {
	markets []domain.Market
	err     error
}

func (f *fakeActiveMarketLister) ListActive(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}

type fakeTradeFetcher struct {
	byMarket map[string][]domain.Trade
	errFor   map[string]error
	since    map[string]*time.Time
}

func (f *fakeTradeFetcher) ListTrades(_ context.Context, marketID string, since *time.Time) ([]domain.Trade, error) {
	if f.since == nil {
		f.since = map[string]*time.Time{}
	}
	f.since[marketID] = since
	if err := f.errFor[marketID]; err != nil {
		return nil, err
	}
	return f.byMarket[marketID], nil
}

type fakeTradeIngester struct {
	lastByMarket map[string]time.Time
	lastErr      error
	ingested     []domain.Trade
	ingestErr    error
}

func (f *fakeTradeIngester) IngestTrades(_ context.Context, trades []domain.Trade) error {
	if f.ingestErr != nil {
		return f.ingestErr
	}
	f.ingested = append(f.ingested, trades...)
	return nil
}

func (f *fakeTradeIngester) GetLastTimestamp(_ context.Context, marketID string) (time.Time, error) {
	if f.lastErr != nil {
		return time.Time{}, f.lastErr
	}
	return f.lastByMarket[marketID], nil
}

func pipelineTrade(marketID string, ts time.Time) domain.Trade {
	return domain.Trade{
		MarketID:      marketID,
		TraderAddress: "0xabc",
		Outcome:       "Yes",
		Side:          domain.TradeSideBuy,
		Price:         0.5,
		SizeUSD:       100,
		Timestamp:     ts,
	}
}

func TestTradeScraperFetchesStrictlyAfterLastStoredFill(t *testing.T) {
	last := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeTradeFetcher{byMarket: map[string][]domain.Trade{
		"mkt-1": {pipelineTrade("mkt-1", last.Add(time.Minute))},
	}}
	ingester := &fakeTradeIngester{lastByMarket: map[string]time.Time{"mkt-1": last}}

	scraper := NewTradeScraper(
		&fakeActiveMarketLister{markets: []domain.Market{{ID: "mkt-1"}}},
		fetcher, ingester, nil, 100, testLogger(),
	)
	require.NoError(t, scraper.Run(context.Background()))

	require.NotNil(t, fetcher.since["mkt-1"])
	assert.Equal(t, last.Add(time.Second), *fetcher.since["mkt-1"])
	assert.Len(t, ingester.ingested, 1)
}

func TestTradeScraperFetchesFullHistoryForNewMarket(t *testing.T) {
	fetcher := &fakeTradeFetcher{byMarket: map[string][]domain.Trade{
		"mkt-new": {pipelineTrade("mkt-new", time.Now().UTC())},
	}}
	ingester := &fakeTradeIngester{}

	scraper := NewTradeScraper(
		&fakeActiveMarketLister{markets: []domain.Market{{ID: "mkt-new"}}},
		fetcher, ingester, nil, 100, testLogger(),
	)
	require.NoError(t, scraper.Run(context.Background()))

	assert.Nil(t, fetcher.since["mkt-new"], "no stored fills means no since cutoff")
	assert.Len(t, ingester.ingested, 1)
}

func TestTradeScraperSkipsFailedMarkets(t *testing.T) {
	ts := time.Now().UTC()
	fetcher := &fakeTradeFetcher{
		byMarket: map[string][]domain.Trade{
			"mkt-good": {pipelineTrade("mkt-good", ts)},
		},
		errFor: map[string]error{"mkt-bad": errors.New("data api 500")},
	}
	ingester := &fakeTradeIngester{}

	scraper := NewTradeScraper(
		&fakeActiveMarketLister{markets: []domain.Market{{ID: "mkt-bad"}, {ID: "mkt-good"}}},
		fetcher, ingester, nil, 100, testLogger(),
	)

	// One bad market must not abort the pass.
	require.NoError(t, scraper.Run(context.Background()))
	require.Len(t, ingester.ingested, 1)
	assert.Equal(t, "mkt-good", ingester.ingested[0].MarketID)
}

func TestTradeScraperSkipsEmptyBatches(t *testing.T) {
	fetcher := &fakeTradeFetcher{}
	ingester := &fakeTradeIngester{}

	scraper := NewTradeScraper(
		&fakeActiveMarketLister{markets: []domain.Market{{ID: "mkt-quiet"}}},
		fetcher, ingester, nil, 100, testLogger(),
	)
	require.NoError(t, scraper.Run(context.Background()))
	assert.Empty(t, ingester.ingested)
}

func TestTradeScraperPropagatesMarketListFailure(t *testing.T) {
	listErr := errors.New("postgres down")
	scraper := NewTradeScraper(
		&fakeActiveMarketLister{err: listErr},
		&fakeTradeFetcher{}, &fakeTradeIngester{}, nil, 100, testLogger(),
	)
	err := scraper.Run(context.Background())
	require.ErrorIs(t, err, listErr)
}
