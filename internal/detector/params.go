// Package detector implements the insider-signal scoring core: a streaming
// trade-window accumulator, the individual indicator calculators, and the
// weighted aggregation into a Signal. The package is pure -- no I/O -- so the
// live scanner and the backtest validator share identical scoring behaviour.
package detector

import (
	"fmt"
	"strings"
)

// Weights are the non-negative aggregation weights for each indicator. They
// must sum to at most 1; any remainder dilutes the final probability.
type Weights struct {
	Concentration float64
	Velocity      float64
	Skew          float64
	Whale         float64
	Volatility    float64
}

// DefaultWeights returns the baseline weighting.
func DefaultWeights() Weights {
	return Weights{
		Concentration: 0.25,
		Velocity:      0.15,
		Skew:          0.20,
		Whale:         0.25,
		Volatility:    0.15,
	}
}

// Sum returns the total weight mass.
func (w Weights) Sum() float64 {
	return w.Concentration + w.Velocity + w.Skew + w.Whale + w.Volatility
}

// Params tunes the scoring core. Zero values are invalid; use DefaultParams
// and override from config.
type Params struct {
	// LargeTradeThresholdUSD is the size at which a single trade is
	// considered whale activity on its own.
	LargeTradeThresholdUSD float64

	// MaxAccountHistory is the prior-trade count below which an account is
	// treated as fresh.
	MaxAccountHistory int

	// FreshWeightMultiplier scales the effective size of trades from fresh
	// accounts in the concentration and whale indicators.
	FreshWeightMultiplier float64

	// MinTrades is the minimum number of valid trades required before a
	// window can be scored at all.
	MinTrades int

	// TopK is how many top addresses the concentration indicator considers.
	TopK int

	// ReferenceHourlyVolumeUSD is the hourly volume that maps to a velocity
	// score of 10.
	ReferenceHourlyVolumeUSD float64

	// ConcentrationSaturation is the effective-volume share of the top-K
	// addresses that maps to a concentration score of 10.
	ConcentrationSaturation float64

	Weights Weights
}

// DefaultParams returns the baseline tuning.
func DefaultParams() Params {
	return Params{
		LargeTradeThresholdUSD:   10_000,
		MaxAccountHistory:        10,
		FreshWeightMultiplier:    1.5,
		MinTrades:                5,
		TopK:                     3,
		ReferenceHourlyVolumeUSD: 25_000,
		ConcentrationSaturation:  1.0,
		Weights:                  DefaultWeights(),
	}
}

// Validate reports all problems with the params at once.
func (p Params) Validate() error {
	var errs []string
	if p.LargeTradeThresholdUSD <= 0 {
		errs = append(errs, "large_trade_threshold_usd must be positive")
	}
	if p.MaxAccountHistory < 0 {
		errs = append(errs, "max_account_history must be non-negative")
	}
	if p.FreshWeightMultiplier < 1 {
		errs = append(errs, "fresh_weight_multiplier must be >= 1")
	}
	if p.MinTrades < 1 {
		errs = append(errs, "min_trades must be at least 1")
	}
	if p.TopK < 1 {
		errs = append(errs, "top_k must be at least 1")
	}
	if p.ReferenceHourlyVolumeUSD <= 0 {
		errs = append(errs, "reference_hourly_volume_usd must be positive")
	}
	if p.ConcentrationSaturation <= 0 || p.ConcentrationSaturation > 1 {
		errs = append(errs, "concentration_saturation must be in (0,1]")
	}
	w := p.Weights
	if w.Concentration < 0 || w.Velocity < 0 || w.Skew < 0 || w.Whale < 0 || w.Volatility < 0 {
		errs = append(errs, "weights must be non-negative")
	}
	if w.Sum() > 1+1e-9 {
		errs = append(errs, fmt.Sprintf("weights sum %.4f exceeds 1", w.Sum()))
	}
	if len(errs) > 0 {
		return fmt.Errorf("detector: invalid params: %s", strings.Join(errs, "; "))
	}
	return nil
}
