package detector

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketSource struct {
	markets []domain.Market
	err     error
}

func (f *fakeMarketSource) ListActiveMarkets(_ context.Context, limit int) ([]domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
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

func burstTrades(marketID string, n int, sizeUSD float64) []domain.Trade {
	out := make([]domain.Trade, 0, n)
	for i := 0; i < n; i++ {
		tr := makeTrade("0x"+string(rune('a'+i)), "Yes", sizeUSD, 0.5, 0, windowBase.Add(time.Duration(i)*time.Minute))
		tr.MarketID = marketID
		out = append(out, tr)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestScannerRanksByProbability(t *testing.T) {
	markets := &fakeMarketSource{markets: []domain.Market{
		{ID: "quiet", Question: "Quiet?", Status: domain.MarketStatusActive},
		{ID: "hot", Question: "Hot?", Status: domain.MarketStatusActive},
	}}
	trades := &fakeTradeSource{byMarket: map[string][]domain.Trade{
		"hot":   burstTrades("hot", 6, 10_000),
		"quiet": burstTrades("quiet", 6, 50),
	}}

	s := NewScanner(markets, trades, nil, testLogger(), ScannerOpts{Params: DefaultParams()})
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 2)

	assert.Equal(t, "hot", signals[0].MarketID)
	assert.Equal(t, "Hot?", signals[0].Question)
	assert.Greater(t, signals[0].InsiderProbability, signals[1].InsiderProbability)
}

func TestScannerOmitsThinMarkets(t *testing.T) {
	markets := &fakeMarketSource{markets: []domain.Market{
		{ID: "thin", Status: domain.MarketStatusActive},
		{ID: "ok", Status: domain.MarketStatusActive},
	}}
	trades := &fakeTradeSource{byMarket: map[string][]domain.Trade{
		"thin": burstTrades("thin", 2, 10_000),
		"ok":   burstTrades("ok", 8, 1000),
	}}

	s := NewScanner(markets, trades, nil, testLogger(), ScannerOpts{Params: DefaultParams()})
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "ok", signals[0].MarketID)
}

func TestScannerSkipsFailedMarkets(t *testing.T) {
	markets := &fakeMarketSource{markets: []domain.Market{
		{ID: "broken", Status: domain.MarketStatusActive},
		{ID: "ok", Status: domain.MarketStatusActive},
	}}
	trades := &fakeTradeSource{
		byMarket: map[string][]domain.Trade{"ok": burstTrades("ok", 8, 1000)},
		errFor:   map[string]error{"broken": domain.ErrUpstreamUnavailable},
	}

	s := NewScanner(markets, trades, nil, testLogger(), ScannerOpts{Params: DefaultParams(), Concurrency: 2})
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "ok", signals[0].MarketID)
}

func TestScannerPropagatesMarketListFailure(t *testing.T) {
	upstream := errors.New("gamma timeout")
	markets := &fakeMarketSource{err: upstream}

	s := NewScanner(markets, &fakeTradeSource{}, nil, testLogger(), ScannerOpts{Params: DefaultParams()})
	_, err := s.Scan(context.Background())
	require.ErrorIs(t, err, upstream)
}

func TestScannerHonoursMarketLimit(t *testing.T) {
	var ms []domain.Market
	byMarket := make(map[string][]domain.Trade)
	for i := 0; i < 10; i++ {
		id := "m" + string(rune('0'+i))
		ms = append(ms, domain.Market{ID: id, Status: domain.MarketStatusActive})
		byMarket[id] = burstTrades(id, 6, 500)
	}

	s := NewScanner(&fakeMarketSource{markets: ms}, &fakeTradeSource{byMarket: byMarket}, nil, testLogger(),
		ScannerOpts{Params: DefaultParams(), MarketLimit: 3})
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, signals, 3)
}
