package detector

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/google/uuid"
)

// Probability computes the weighted insider probability of the current
// window without materialising a full Signal. Used by the backtest cursor
// scan, where a Signal per step would be wasted allocation.
func (w *Window) Probability() (float64, error) {
	if w.count < w.params.MinTrades {
		return 0, fmt.Errorf("detector: %d of %d required trades: %w",
			w.count, w.params.MinTrades, domain.ErrInsufficientData)
	}
	scores := w.scores()
	return w.probabilityFrom(scores), nil
}

func (w *Window) scores() domain.IndicatorScores {
	skew, _ := w.skewScore()
	return domain.IndicatorScores{
		Concentration: w.concentrationScore(),
		Velocity:      w.velocityScore(),
		Skew:          skew,
		Whale:         w.whaleScore(),
		Volatility:    w.volatilityScore(),
	}
}

func (w *Window) probabilityFrom(s domain.IndicatorScores) float64 {
	wt := w.params.Weights
	p := (wt.Concentration*s.Concentration +
		wt.Velocity*s.Velocity +
		wt.Skew*s.Skew +
		wt.Whale*s.Whale +
		wt.Volatility*s.Volatility) / maxScore
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Signal aggregates the window into a scored signal for the given market.
// Returns ErrInsufficientData when fewer than MinTrades valid trades have
// been folded; callers must treat such markets as unscored, never as
// low-risk.
func (w *Window) Signal(marketID string, at time.Time) (domain.Signal, error) {
	if w.count < w.params.MinTrades {
		return domain.Signal{}, fmt.Errorf("detector: market %s: %d of %d required trades: %w",
			marketID, w.count, w.params.MinTrades, domain.ErrInsufficientData)
	}

	scores := w.scores()
	_, direction := w.skewScore()
	prob := w.probabilityFrom(scores)

	return domain.Signal{
		ID:                 uuid.NewString(),
		MarketID:           marketID,
		EvaluatedAt:        at,
		InsiderProbability: prob,
		RiskScore:          prob * maxScore,
		Scores:             scores,
		ImpliedDirection:   direction,
		TopAddresses:       w.topAddresses(w.params.TopK),
		TradeCount:         w.count,
		TotalVolumeUSD:     w.totalUSD,
		DroppedTrades:      w.dropped,
	}, nil
}
