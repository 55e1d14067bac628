package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketFetcher struct {
	markets []domain.Market
	err     error
	offsets []int
}

func (f *fakeMarketFetcher) GetMarkets(_ context.Context, limit, offset int) ([]domain.Market, error) {
	f.offsets = append(f.offsets, offset)
	if f.err != nil {
		return nil, f.err
	}
	if offset >= len(f.markets) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.markets) {
		end = len(f.markets)
	}
	return f.markets[offset:end], nil
}

type fakeMarketSyncer struct {
	synced  []domain.Market
	batches int
	err     error
}

func (f *fakeMarketSyncer) SyncMarkets(_ context.Context, markets []domain.Market) error {
	if f.err != nil {
		return f.err
	}
	f.batches++
	f.synced = append(f.synced, markets...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func catalogue(n int) []domain.Market {
	markets := make([]domain.Market, 0, n)
	for i := 0; i < n; i++ {
		markets = append(markets, domain.Market{ID: fmt.Sprintf("mkt-%d", i)})
	}
	return markets
}

func TestMarketScraperPaginatesUntilShortPage(t *testing.T) {
	fetcher := &fakeMarketFetcher{markets: catalogue(25)}
	syncer := &fakeMarketSyncer{}

	scraper := NewMarketScraper(syncer, fetcher, 10, testLogger())
	require.NoError(t, scraper.Run(context.Background()))

	assert.Len(t, syncer.synced, 25)
	assert.Equal(t, 3, syncer.batches)
	// Final page is short (5 of 10), so no fourth fetch happens.
	assert.Equal(t, []int{0, 10, 20}, fetcher.offsets)
}

func TestMarketScraperStopsOnEmptyFirstPage(t *testing.T) {
	fetcher := &fakeMarketFetcher{}
	syncer := &fakeMarketSyncer{}

	scraper := NewMarketScraper(syncer, fetcher, 10, testLogger())
	require.NoError(t, scraper.Run(context.Background()))

	assert.Zero(t, syncer.batches)
	assert.Equal(t, []int{0}, fetcher.offsets)
}

func TestMarketScraperPropagatesFetchFailure(t *testing.T) {
	fetchErr := errors.New("gamma 503")
	fetcher := &fakeMarketFetcher{err: fetchErr}

	scraper := NewMarketScraper(&fakeMarketSyncer{}, fetcher, 10, testLogger())
	err := scraper.Run(context.Background())
	require.ErrorIs(t, err, fetchErr)
}

func TestMarketScraperPropagatesSyncFailure(t *testing.T) {
	syncErr := errors.New("postgres down")
	fetcher := &fakeMarketFetcher{markets: catalogue(5)}
	syncer := &fakeMarketSyncer{err: syncErr}

	scraper := NewMarketScraper(syncer, fetcher, 10, testLogger())
	err := scraper.Run(context.Background())
	require.ErrorIs(t, err, syncErr)
}
