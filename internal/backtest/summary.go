package backtest

import (
	"sort"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// Summarize aggregates the records of one run. Accuracy and averages cover
// scored markets only; skipped markets are tallied by reason.
func Summarize(runID string, started, finished time.Time, records []domain.BacktestRecord) domain.BacktestSummary {
	sum := domain.BacktestSummary{
		RunID:            runID,
		StartedAt:        started,
		FinishedAt:       finished,
		SkipReasonCounts: make(map[string]int),
	}

	var correct int
	var movement, probability float64

	for _, rec := range records {
		if rec.Outcome != domain.BacktestScored {
			sum.MarketsSkipped++
			sum.SkipReasonCounts[rec.SkipReason]++
			continue
		}
		sum.MarketsScored++
		if rec.PredictedCorrectly {
			correct++
		}
		movement += rec.PriceMovementPct
		probability += rec.InsiderProbability
	}

	if sum.MarketsScored > 0 {
		n := float64(sum.MarketsScored)
		sum.Accuracy = float64(correct) / n
		sum.AvgMovementPct = movement / n
		sum.AvgProbability = probability / n
	}

	sum.Effectiveness = effectiveness(records)
	return sum
}

type meanAcc struct {
	sum   float64
	count int
}

func (m *meanAcc) add(v float64) { m.sum += v; m.count++ }

func (m meanAcc) mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// effectiveness ranks indicators by how much higher they scored on markets
// whose direction was called correctly versus incorrectly.
func effectiveness(records []domain.BacktestRecord) []domain.IndicatorEffectiveness {
	indicators := []struct {
		name  string
		score func(domain.IndicatorScores) float64
	}{
		{"concentration", func(s domain.IndicatorScores) float64 { return s.Concentration }},
		{"velocity", func(s domain.IndicatorScores) float64 { return s.Velocity }},
		{"skew", func(s domain.IndicatorScores) float64 { return s.Skew }},
		{"whale", func(s domain.IndicatorScores) float64 { return s.Whale }},
		{"volatility", func(s domain.IndicatorScores) float64 { return s.Volatility }},
	}

	out := make([]domain.IndicatorEffectiveness, 0, len(indicators))
	for _, ind := range indicators {
		var correct, incorrect meanAcc
		for _, rec := range records {
			if rec.Outcome != domain.BacktestScored {
				continue
			}
			if rec.PredictedCorrectly {
				correct.add(ind.score(rec.Scores))
			} else {
				incorrect.add(ind.score(rec.Scores))
			}
		}
		out = append(out, domain.IndicatorEffectiveness{
			Indicator:     ind.name,
			MeanCorrect:   correct.mean(),
			MeanIncorrect: incorrect.mean(),
			Delta:         correct.mean() - incorrect.mean(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Delta > out[j].Delta })
	return out
}
