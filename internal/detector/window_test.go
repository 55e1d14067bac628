package detector

import (
	"testing"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var windowBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeTrade(addr, outcome string, sizeUSD, price float64, history int, at time.Time) domain.Trade {
	return domain.Trade{
		MarketID:           "mkt-1",
		TraderAddress:      addr,
		Outcome:            outcome,
		Side:               domain.TradeSideBuy,
		Price:              price,
		SizeUSD:            sizeUSD,
		Timestamp:          at,
		TraderHistoryCount: history,
		TxHash:             addr + at.Format(time.RFC3339Nano),
	}
}

func TestWindowDropsMalformedTrades(t *testing.T) {
	w := NewWindow(DefaultParams())

	bad := []domain.Trade{
		{MarketID: "mkt-1", Price: 1.5, SizeUSD: 100, Timestamp: windowBase},
		{MarketID: "mkt-1", Price: 0.5, SizeUSD: 0, Timestamp: windowBase},
		{MarketID: "mkt-1", Price: 0.5, SizeUSD: 100},
		{Price: 0.5, SizeUSD: 100, Timestamp: windowBase},
	}
	for _, tr := range bad {
		err := w.Add(tr)
		require.ErrorIs(t, err, domain.ErrMalformedTrade)
	}

	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 4, w.Dropped())
	assert.Zero(t, w.TotalVolumeUSD())
}

func TestWindowBurstOfFreshWhalesScoresHigh(t *testing.T) {
	// Five $10k buys on the same outcome from brand-new accounts inside ten
	// minutes. This is the canonical pattern the engine exists to catch.
	w := NewWindow(DefaultParams())
	addrs := []string{"0xa", "0xb", "0xc", "0xd", "0xe"}
	for i, addr := range addrs {
		tr := makeTrade(addr, "Yes", 10_000, 0.5, 0, windowBase.Add(time.Duration(i)*2*time.Minute))
		require.NoError(t, w.Add(tr))
	}

	sig, err := w.Signal("mkt-1", windowBase.Add(time.Hour))
	require.NoError(t, err)

	assert.Greater(t, sig.InsiderProbability, 0.7)
	assert.Equal(t, "Yes", sig.ImpliedDirection)
	assert.InDelta(t, 10.0, sig.Scores.Velocity, 1e-9)
	assert.InDelta(t, 10.0, sig.Scores.Skew, 1e-9)
	assert.InDelta(t, 10.0, sig.Scores.Whale, 1e-9)
	assert.Equal(t, 5, sig.TradeCount)
	assert.InDelta(t, 50_000, sig.TotalVolumeUSD, 1e-9)
}

func TestWindowQuietMarketScoresLow(t *testing.T) {
	// Fifty small balanced trades from many seasoned accounts spread over a
	// week should light up nothing.
	w := NewWindow(DefaultParams())
	for i := 0; i < 50; i++ {
		outcome := "Yes"
		price := 0.52
		if i%2 == 1 {
			outcome = "No"
			price = 0.48
		}
		addr := "0x" + string(rune('a'+i%25))
		tr := makeTrade(addr, outcome, 100, price, 50, windowBase.Add(time.Duration(i)*3*time.Hour))
		require.NoError(t, w.Add(tr))
	}

	sig, err := w.Signal("mkt-1", windowBase.Add(200*time.Hour))
	require.NoError(t, err)

	assert.Less(t, sig.InsiderProbability, 0.2)
	assert.Less(t, sig.Scores.Concentration, 2.0)
	assert.Less(t, sig.Scores.Velocity, 1.0)
	assert.InDelta(t, 0.0, sig.Scores.Skew, 1e-9)
	assert.Less(t, sig.Scores.Whale, 1.0)
}

func TestWindowFreshAccountsWeighConcentration(t *testing.T) {
	params := DefaultParams()
	params.TopK = 1

	build := func(history int) *Window {
		w := NewWindow(params)
		require.NoError(t, w.Add(makeTrade("0xfresh", "Yes", 1000, 0.5, history, windowBase)))
		for i := 0; i < 9; i++ {
			addr := "0xold" + string(rune('0'+i))
			require.NoError(t, w.Add(makeTrade(addr, "Yes", 1000, 0.5, 100, windowBase.Add(time.Duration(i+1)*time.Minute))))
		}
		return w
	}

	fresh := build(0)
	seasoned := build(100)

	assert.Greater(t, fresh.concentrationScore(), seasoned.concentrationScore())
	// Raw volumes are identical, so the difference is the freshness
	// multiplier and nothing else.
	assert.InDelta(t, fresh.TotalVolumeUSD(), seasoned.TotalVolumeUSD(), 1e-9)
}

func TestWindowWhaleScoreMonotoneInLargestTrade(t *testing.T) {
	prev := -1.0
	for _, size := range []float64{500, 2000, 5000, 10_000, 40_000} {
		w := NewWindow(DefaultParams())
		require.NoError(t, w.Add(makeTrade("0xwhale", "Yes", size, 0.5, 50, windowBase)))
		for i := 0; i < 9; i++ {
			addr := "0x" + string(rune('a'+i))
			require.NoError(t, w.Add(makeTrade(addr, "Yes", 100, 0.5, 50, windowBase.Add(time.Duration(i+1)*time.Minute))))
		}
		score := w.whaleScore()
		assert.GreaterOrEqual(t, score, prev, "whale score must not decrease as the largest trade grows (size %.0f)", size)
		prev = score
	}
}

func TestWindowSkewIsDirectionAgnostic(t *testing.T) {
	build := func(majority string) *Window {
		w := NewWindow(DefaultParams())
		for i := 0; i < 8; i++ {
			require.NoError(t, w.Add(makeTrade("0xa", majority, 100, 0.5, 50, windowBase.Add(time.Duration(i)*time.Minute))))
		}
		minority := "No"
		if majority == "No" {
			minority = "Yes"
		}
		require.NoError(t, w.Add(makeTrade("0xb", minority, 100, 0.5, 50, windowBase.Add(10*time.Minute))))
		return w
	}

	yesScore, yesDir := build("Yes").skewScore()
	noScore, noDir := build("No").skewScore()

	assert.InDelta(t, yesScore, noScore, 1e-9)
	assert.Equal(t, "Yes", yesDir)
	assert.Equal(t, "No", noDir)
}

func TestWindowVolatilityNeedsThreePricedTrades(t *testing.T) {
	w := NewWindow(DefaultParams())
	require.NoError(t, w.Add(makeTrade("0xa", "Yes", 100, 0.2, 50, windowBase)))
	require.NoError(t, w.Add(makeTrade("0xb", "Yes", 100, 0.8, 50, windowBase.Add(time.Minute))))
	assert.Zero(t, w.volatilityScore())

	require.NoError(t, w.Add(makeTrade("0xc", "Yes", 100, 0.5, 50, windowBase.Add(2*time.Minute))))
	assert.Greater(t, w.volatilityScore(), 0.0)
}
