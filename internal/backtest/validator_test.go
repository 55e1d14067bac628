package backtest

import (
	"math/rand"
	"testing"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/detector"
	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var btBase = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func resolvedMarket(outcome string) domain.Market {
	at := btBase.Add(72 * time.Hour)
	return domain.Market{
		ID:              "mkt-bt",
		Question:        "Will it happen?",
		Outcomes:        []string{"Yes", "No"},
		Status:          domain.MarketStatusSettled,
		Resolved:        true,
		ResolvedOutcome: outcome,
		ResolvedAt:      &at,
	}
}

func trade(id int64, addr, outcome string, sizeUSD, price float64, history int, at time.Time) domain.Trade {
	return domain.Trade{
		ID:                 id,
		MarketID:           "mkt-bt",
		TraderAddress:      addr,
		Outcome:            outcome,
		Side:               domain.TradeSideBuy,
		Price:              price,
		SizeUSD:            sizeUSD,
		Timestamp:          at,
		TraderHistoryCount: history,
	}
}

// quietThenBurst builds a history where insider-looking activity appears in
// the middle, followed by calmer trades well past the horizon.
func quietThenBurst() []domain.Trade {
	var trades []domain.Trade
	id := int64(1)
	for i := 0; i < 20; i++ {
		outcome := "Yes"
		if i%2 == 1 {
			outcome = "No"
		}
		addr := "0xq" + string(rune('a'+i%7))
		trades = append(trades, trade(id, addr, outcome, 150, 0.5, 60, btBase.Add(time.Duration(i)*20*time.Minute)))
		id++
	}
	burstAt := btBase.Add(8 * time.Hour)
	for i := 0; i < 5; i++ {
		trades = append(trades, trade(id, "0xw"+string(rune('a'+i)), "Yes", 12_000, 0.6, 1, burstAt.Add(time.Duration(i)*time.Minute)))
		id++
	}
	for i := 0; i < 4; i++ {
		trades = append(trades, trade(id, "0xlate", "Yes", 200, 0.62, 60, burstAt.Add(2*time.Hour+time.Duration(i)*10*time.Minute)))
		id++
	}
	return trades
}

func newTestValidator() *Validator {
	return NewValidator(detector.DefaultParams(), time.Hour, 1)
}

func TestValidatorSkipsUnresolvedMarket(t *testing.T) {
	m := resolvedMarket("Yes")
	m.Resolved = false
	m.ResolvedOutcome = ""

	rec := newTestValidator().Evaluate("run-1", m, quietThenBurst(), btBase)
	assert.Equal(t, domain.BacktestSkipped, rec.Outcome)
	assert.Equal(t, SkipUnresolved, rec.SkipReason)
}

func TestValidatorSkipsThinHistory(t *testing.T) {
	trades := quietThenBurst()[:3]
	rec := newTestValidator().Evaluate("run-1", resolvedMarket("Yes"), trades, btBase)
	assert.Equal(t, domain.BacktestSkipped, rec.Outcome)
	assert.Equal(t, SkipInsufficientData, rec.SkipReason)
	assert.Equal(t, 3, rec.TradesAnalyzed)
}

func TestValidatorScoresPeakAtBurst(t *testing.T) {
	trades := quietThenBurst()
	rec := newTestValidator().Evaluate("run-1", resolvedMarket("Yes"), trades, btBase)

	require.Equal(t, domain.BacktestScored, rec.Outcome)
	assert.Equal(t, "Yes", rec.PredictedDirection)
	assert.True(t, rec.PredictedCorrectly)
	assert.Equal(t, 29, rec.TradesAnalyzed)

	// The peak must land inside the burst, not in the quiet prelude and not
	// in the late cool-down.
	burstStart := btBase.Add(8 * time.Hour)
	burstEnd := burstStart.Add(5 * time.Minute)
	assert.False(t, rec.PeakSignalAt.Before(burstStart))
	assert.False(t, rec.PeakSignalAt.After(burstEnd))

	assert.InDelta(t, 0.6, rec.PriceAtPeak, 1e-9)
	// First trade at or after peak+1h has price 0.62.
	assert.InDelta(t, 0.62, rec.PriceAfterHorizon, 1e-9)
	assert.InDelta(t, (0.62-0.6)/0.6*100, rec.PriceMovementPct, 1e-6)
}

func TestValidatorWrongDirectionIsIncorrect(t *testing.T) {
	rec := newTestValidator().Evaluate("run-1", resolvedMarket("No"), quietThenBurst(), btBase)
	require.Equal(t, domain.BacktestScored, rec.Outcome)
	assert.Equal(t, "Yes", rec.PredictedDirection)
	assert.False(t, rec.PredictedCorrectly)
}

func TestValidatorTiesPreferLaterCursor(t *testing.T) {
	// Every whale trade saturates all weighted indicators, so the running
	// probability plateaus; the peak must sit at the last plateau cursor.
	var trades []domain.Trade
	for i := 0; i < 10; i++ {
		trades = append(trades, trade(int64(i+1), "0xwhale", "Yes", 50_000, 0.6, 0, btBase.Add(time.Duration(i)*time.Minute)))
	}
	// The cool-down trades arrive much later at the same price, so velocity
	// collapses and the probability drops off the plateau.
	for i := 0; i < 2; i++ {
		trades = append(trades, trade(int64(20+i), "0xcool", "Yes", 50, 0.6, 90, btBase.Add(50*time.Hour+time.Duration(i)*time.Minute)))
	}

	rec := newTestValidator().Evaluate("run-1", resolvedMarket("Yes"), trades, btBase)
	require.Equal(t, domain.BacktestScored, rec.Outcome)
	assert.Equal(t, btBase.Add(9*time.Minute), rec.PeakSignalAt)
	assert.InDelta(t, 0.85, rec.InsiderProbability, 1e-9)
	assert.InDelta(t, 0.6, rec.PriceAfterHorizon, 1e-9)
	assert.Zero(t, rec.PriceMovementPct)
}

func TestValidatorSkipsWhenNoPostPeakPrice(t *testing.T) {
	// The strongest window is the full history, so the peak is the final
	// trade and nothing after it can price the horizon.
	var trades []domain.Trade
	for i := 0; i < 5; i++ {
		trades = append(trades, trade(int64(i+1), "0xwhale", "Yes", 50_000, 0.6, 0, btBase.Add(time.Duration(i)*time.Minute)))
	}

	rec := newTestValidator().Evaluate("run-1", resolvedMarket("Yes"), trades, btBase)
	assert.Equal(t, domain.BacktestSkipped, rec.Outcome)
	assert.Equal(t, SkipNoPostSignalPrice, rec.SkipReason)
}

func TestValidatorFallsBackToLastPriceInsideHorizon(t *testing.T) {
	// All trades sit within 30 minutes; no trade reaches peak+1h, so the
	// last post-peak trade prices the horizon.
	trades := quietThenBurst()
	cut := make([]domain.Trade, 0)
	for _, tr := range trades {
		if tr.SizeUSD > 1000 {
			cut = append(cut, tr)
		}
	}
	// Append one small opposite-side trade two minutes after the last whale;
	// it dilutes the window slightly so the peak stays on the burst.
	last := cut[len(cut)-1].Timestamp
	cut = append(cut, trade(99, "0xafter", "No", 100, 0.6, 60, last.Add(2*time.Minute)))

	rec := newTestValidator().Evaluate("run-1", resolvedMarket("Yes"), cut, btBase)
	require.Equal(t, domain.BacktestScored, rec.Outcome)
	assert.InDelta(t, 0.6, rec.PriceAfterHorizon, 1e-9)
	assert.Zero(t, rec.PriceMovementPct)
}

func TestValidatorDeterministicUnderShuffle(t *testing.T) {
	trades := quietThenBurst()
	shuffled := make([]domain.Trade, len(trades))
	copy(shuffled, trades)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	now := btBase.Add(100 * time.Hour)
	a := newTestValidator().Evaluate("run-1", resolvedMarket("Yes"), trades, now)
	b := newTestValidator().Evaluate("run-1", resolvedMarket("Yes"), shuffled, now)

	b.ID = a.ID
	assert.Equal(t, a, b)
}

func TestValidatorDropsMalformedTrades(t *testing.T) {
	trades := quietThenBurst()
	trades = append(trades, domain.Trade{ID: 500, MarketID: "mkt-bt", Price: 2.0, SizeUSD: 100, Timestamp: btBase})
	trades = append(trades, domain.Trade{ID: 501, MarketID: "mkt-bt", Price: 0.5, SizeUSD: -3, Timestamp: btBase})

	rec := newTestValidator().Evaluate("run-1", resolvedMarket("Yes"), trades, btBase)
	require.Equal(t, domain.BacktestScored, rec.Outcome)
	assert.Equal(t, 29, rec.TradesAnalyzed)
	// Dropped fills surface on the record instead of vanishing.
	assert.Equal(t, 2, rec.DroppedTrades)
}

func TestValidatorCleanHistoryReportsNoDrops(t *testing.T) {
	rec := newTestValidator().Evaluate("run-1", resolvedMarket("Yes"), quietThenBurst(), btBase)
	require.Equal(t, domain.BacktestScored, rec.Outcome)
	assert.Zero(t, rec.DroppedTrades)
}

func TestPriceAfterMissingIsSentinel(t *testing.T) {
	trades := []domain.Trade{
		trade(1, "0xw", "Yes", 100, 0.5, 0, btBase),
		trade(2, "0xw", "Yes", 100, 0.5, 0, btBase.Add(time.Minute)),
	}

	_, err := priceAfter(trades, len(trades)-1, btBase.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrNoPostSignalPrice)

	price, err := priceAfter(trades, 0, btBase.Add(time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, price, 1e-9)
}
