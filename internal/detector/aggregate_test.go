package detector

import (
	"testing"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalInsufficientDataBelowMinTrades(t *testing.T) {
	params := DefaultParams()
	w := NewWindow(params)
	for i := 0; i < params.MinTrades-1; i++ {
		require.NoError(t, w.Add(makeTrade("0xa", "Yes", 10_000, 0.5, 0, windowBase.Add(time.Duration(i)*time.Minute))))
	}

	_, err := w.Signal("mkt-1", windowBase)
	require.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = w.Probability()
	require.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestSignalRiskScoreIsProbabilityTimesTen(t *testing.T) {
	w := NewWindow(DefaultParams())
	for i := 0; i < 10; i++ {
		addr := "0x" + string(rune('a'+i%4))
		require.NoError(t, w.Add(makeTrade(addr, "Yes", float64(500*(i+1)), 0.4+float64(i)*0.02, i, windowBase.Add(time.Duration(i)*time.Minute))))
	}

	sig, err := w.Signal("mkt-1", windowBase.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, sig.InsiderProbability*10, sig.RiskScore)
	assert.GreaterOrEqual(t, sig.InsiderProbability, 0.0)
	assert.LessOrEqual(t, sig.InsiderProbability, 1.0)
}

func TestSignalProbabilityMatchesProbability(t *testing.T) {
	w := NewWindow(DefaultParams())
	for i := 0; i < 8; i++ {
		require.NoError(t, w.Add(makeTrade("0xa", "Yes", 2000, 0.6, 0, windowBase.Add(time.Duration(i)*time.Minute))))
	}

	p, err := w.Probability()
	require.NoError(t, err)
	sig, err := w.Signal("mkt-1", windowBase)
	require.NoError(t, err)

	assert.Equal(t, p, sig.InsiderProbability)
}

func TestSignalDeterministicForIdenticalInput(t *testing.T) {
	build := func() domain.Signal {
		w := NewWindow(DefaultParams())
		for i := 0; i < 12; i++ {
			addr := "0x" + string(rune('a'+i%5))
			require.NoError(t, w.Add(makeTrade(addr, "Yes", float64(100+i*937%5000), 0.3+float64(i%7)*0.05, i%15, windowBase.Add(time.Duration(i)*time.Minute))))
		}
		sig, err := w.Signal("mkt-1", windowBase.Add(time.Hour))
		require.NoError(t, err)
		return sig
	}

	a, b := build(), build()
	// IDs are freshly minted per signal; everything derived from the trades
	// must be bit-identical.
	b.ID = a.ID
	assert.Equal(t, a, b)
}

func TestZeroWeightsYieldZeroProbability(t *testing.T) {
	params := DefaultParams()
	params.Weights = Weights{}
	w := NewWindow(params)
	for i := 0; i < 6; i++ {
		require.NoError(t, w.Add(makeTrade("0xa", "Yes", 50_000, 0.5, 0, windowBase.Add(time.Duration(i)*time.Minute))))
	}

	sig, err := w.Signal("mkt-1", windowBase)
	require.NoError(t, err)
	assert.Zero(t, sig.InsiderProbability)
	assert.Zero(t, sig.RiskScore)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	bad := DefaultParams()
	bad.MinTrades = 0
	bad.FreshWeightMultiplier = 0.5
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_trades")
	assert.Contains(t, err.Error(), "fresh_weight_multiplier")

	overweight := DefaultParams()
	overweight.Weights.Whale = 0.9
	require.Error(t, overweight.Validate())
}

func TestFlagFor(t *testing.T) {
	params := DefaultParams()

	cases := []struct {
		name  string
		trade domain.Trade
		want  string
	}{
		{
			name:  "large fresh buy",
			trade: domain.Trade{SizeUSD: 12_000, TraderHistoryCount: 2, Side: domain.TradeSideBuy, Price: 0.55},
			want:  domain.TradeFlagInsider,
		},
		{
			name:  "large fresh longshot buy",
			trade: domain.Trade{SizeUSD: 15_000, TraderHistoryCount: 0, Side: domain.TradeSideBuy, Price: 0.08},
			want:  domain.TradeFlagContrarian,
		},
		{
			name:  "large but seasoned account",
			trade: domain.Trade{SizeUSD: 50_000, TraderHistoryCount: 200, Side: domain.TradeSideBuy, Price: 0.5},
			want:  "",
		},
		{
			name:  "fresh but small",
			trade: domain.Trade{SizeUSD: 500, TraderHistoryCount: 0, Side: domain.TradeSideBuy, Price: 0.5},
			want:  "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, params.FlagFor(tc.trade))
		})
	}
}
