package detector

import (
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

const maxScore = 10.0

// minVolatilityTrades is the minimum number of priced trades before the
// volatility indicator contributes; below it the score is zero.
const minVolatilityTrades = 3

// minVelocityDuration floors the window span so single-burst windows do not
// divide by a near-zero duration.
const minVelocityDuration = time.Minute

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > maxScore {
		return maxScore
	}
	return v
}

// concentrationScore scales the top-K effective-volume share so that a share
// equal to the saturation point maps to 10.
func (w *Window) concentrationScore() float64 {
	if w.effectiveUSD == 0 {
		return 0
	}
	top := w.topAddresses(w.params.TopK)
	var share float64
	for _, a := range top {
		share += a.Share
	}
	return clamp(share / w.params.ConcentrationSaturation * maxScore)
}

// velocityScore compares the window's hourly dollar volume against the
// reference hourly volume.
func (w *Window) velocityScore() float64 {
	if w.count == 0 {
		return 0
	}
	dur := w.Duration()
	if dur < minVelocityDuration {
		dur = minVelocityDuration
	}
	hourly := w.totalUSD / dur.Hours()
	return clamp(hourly / w.params.ReferenceHourlyVolumeUSD * maxScore)
}

// skewScore measures how lopsided volume is across outcomes: an even split
// scores 0, a fully one-sided window scores 10. Magnitude only; the majority
// outcome itself becomes the signal's implied direction.
func (w *Window) skewScore() (score float64, direction string) {
	direction, share := w.majorityOutcome()
	if share <= 0.5 {
		return 0, direction
	}
	return clamp((share - 0.5) * 20), direction
}

// whaleScore is driven by the single largest trade: either its effective
// share of window volume or its raw size relative to the large-trade
// threshold, whichever is stronger. Monotone in the largest trade size.
func (w *Window) whaleScore() float64 {
	if w.effectiveUSD == 0 {
		return 0
	}
	share := w.largestEffectiveUSD / w.effectiveUSD
	threshold := w.largestRawUSD / w.params.LargeTradeThresholdUSD
	v := share
	if threshold > v {
		v = threshold
	}
	return clamp(v * maxScore)
}

// volatilityScore scales the stddev of trade prices; 0.25 of price stddev
// maps to 10. Requires at least minVolatilityTrades priced trades.
func (w *Window) volatilityScore() float64 {
	if w.priceCount < minVolatilityTrades {
		return 0
	}
	return clamp(w.priceStddev() * 40)
}

// contrarianPriceCeiling is the implied probability under which a flagged
// trade is considered a contrarian bet rather than a straight insider one.
const contrarianPriceCeiling = 0.20

// FlagFor classifies a single trade for the dashboard feed. Trades at or
// above the large-trade threshold from fresh accounts are flagged INSIDER,
// or CONTRARIAN when they buy deep underdog odds. Everything else is
// unflagged.
func (p Params) FlagFor(t domain.Trade) string {
	if t.SizeUSD < p.LargeTradeThresholdUSD {
		return ""
	}
	if t.TraderHistoryCount >= p.MaxAccountHistory {
		return ""
	}
	if t.Side == domain.TradeSideBuy && t.Price < contrarianPriceCeiling {
		return domain.TradeFlagContrarian
	}
	return domain.TradeFlagInsider
}
