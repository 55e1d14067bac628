// Package backtest replays resolved markets through the scoring core to
// measure how well peak insider signals predicted the eventual outcome.
package backtest

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/detector"
	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/google/uuid"
)

// Skip reasons recorded on skipped markets.
const (
	SkipUnresolved        = "unresolved"
	SkipInsufficientData  = "insufficient_trades"
	SkipNoPostSignalPrice = "no_post_signal_price"
	SkipFetchFailed       = "fetch_failed"
)

// Validator scores one resolved market's trade history causally: the signal
// at cursor i sees only trades [0, i]. Evaluation is deterministic --
// identical input produces identical records.
type Validator struct {
	params  detector.Params
	horizon time.Duration
	stride  int
}

// NewValidator builds a Validator. Horizon is how far past the peak signal
// the price comparison looks (default 1h); stride evaluates every n-th
// cursor position to trade precision for speed on deep histories.
func NewValidator(params detector.Params, horizon time.Duration, stride int) *Validator {
	if horizon <= 0 {
		horizon = time.Hour
	}
	if stride < 1 {
		stride = 1
	}
	return &Validator{params: params, horizon: horizon, stride: stride}
}

// Evaluate replays one market and returns its terminal record, either Scored
// or Skipped. The trades slice is not mutated.
func (v *Validator) Evaluate(runID string, market domain.Market, trades []domain.Trade, now time.Time) domain.BacktestRecord {
	rec := domain.BacktestRecord{
		ID:        uuid.NewString(),
		RunID:     runID,
		MarketID:  market.ID,
		Question:  market.Question,
		CreatedAt: now,
	}

	if !market.Resolved || market.ResolvedOutcome == "" {
		rec.Outcome = domain.BacktestSkipped
		rec.SkipReason = SkipUnresolved
		return rec
	}

	valid := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Validate() == nil {
			valid = append(valid, t)
		}
	}
	rec.DroppedTrades = len(trades) - len(valid)
	sort.SliceStable(valid, func(i, j int) bool {
		if !valid[i].Timestamp.Equal(valid[j].Timestamp) {
			return valid[i].Timestamp.Before(valid[j].Timestamp)
		}
		return valid[i].ID < valid[j].ID
	})

	rec.TradesAnalyzed = len(valid)
	if len(valid) < v.params.MinTrades {
		rec.Outcome = domain.BacktestSkipped
		rec.SkipReason = SkipInsufficientData
		return rec
	}

	peakIdx, peakSig := v.scanPeak(market.ID, valid)

	rec.PeakSignalAt = valid[peakIdx].Timestamp
	rec.InsiderProbability = peakSig.InsiderProbability
	rec.Scores = peakSig.Scores
	rec.PredictedDirection = peakSig.ImpliedDirection
	rec.ActualOutcome = market.ResolvedOutcome
	rec.PriceAtPeak = valid[peakIdx].Price

	after, err := priceAfter(valid, peakIdx, rec.PeakSignalAt.Add(v.horizon))
	if err != nil {
		rec.Outcome = domain.BacktestSkipped
		if errors.Is(err, domain.ErrNoPostSignalPrice) {
			rec.SkipReason = SkipNoPostSignalPrice
		}
		return rec
	}
	rec.PriceAfterHorizon = after
	if rec.PriceAtPeak > 0 {
		rec.PriceMovementPct = (after - rec.PriceAtPeak) / rec.PriceAtPeak * 100
	}

	rec.PredictedCorrectly = strings.EqualFold(rec.PredictedDirection, rec.ActualOutcome)
	rec.Outcome = domain.BacktestScored
	return rec
}

// scanPeak advances the cursor through the sorted trades, scoring the
// growing prefix and tracking the running maximum probability. Ties resolve
// toward the later cursor.
func (v *Validator) scanPeak(marketID string, valid []domain.Trade) (int, domain.Signal) {
	w := detector.NewWindow(v.params)
	minIdx := v.params.MinTrades - 1
	last := len(valid) - 1

	peakIdx := minIdx
	peakProb := -1.0
	var peakSig domain.Signal

	for i, t := range valid {
		// Valid trades cannot fail the fold.
		_ = w.Add(t)
		if i < minIdx {
			continue
		}
		if (i-minIdx)%v.stride != 0 && i != last {
			continue
		}
		p, err := w.Probability()
		if err != nil {
			continue
		}
		if p >= peakProb {
			sig, err := w.Signal(marketID, t.Timestamp)
			if err != nil {
				continue
			}
			peakProb = p
			peakIdx = i
			peakSig = sig
		}
	}
	return peakIdx, peakSig
}

// priceAfter returns the first price at or after the target time, falling
// back to the last trade when the history ends before the horizon but still
// extends past the peak. Returns ErrNoPostSignalPrice when no post-peak
// price exists at all.
func priceAfter(valid []domain.Trade, peakIdx int, target time.Time) (float64, error) {
	for i := peakIdx + 1; i < len(valid); i++ {
		if !valid[i].Timestamp.Before(target) {
			return valid[i].Price, nil
		}
	}
	if peakIdx < len(valid)-1 {
		return valid[len(valid)-1].Price, nil
	}
	return 0, domain.ErrNoPostSignalPrice
}
