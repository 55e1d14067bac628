package domain

import "time"

// BacktestOutcome is the terminal state of a per-market backtest.
type BacktestOutcome string

const (
	BacktestScored  BacktestOutcome = "scored"
	BacktestSkipped BacktestOutcome = "skipped"
)

// BacktestRecord is the result of replaying one resolved market.
type BacktestRecord struct {
	ID                 string          `json:"id"`
	RunID              string          `json:"run_id"`
	MarketID           string          `json:"market_id"`
	Question           string          `json:"question,omitempty"`
	Outcome            BacktestOutcome `json:"outcome"`
	SkipReason         string          `json:"skip_reason,omitempty"`
	PeakSignalAt       time.Time       `json:"peak_signal_at"`
	InsiderProbability float64         `json:"insider_probability"`
	Scores             IndicatorScores `json:"scores"`
	PredictedDirection string          `json:"predicted_direction"`
	ActualOutcome      string          `json:"actual_outcome"`
	PredictedCorrectly bool            `json:"predicted_correctly"`
	PriceAtPeak        float64         `json:"price_at_peak"`
	PriceAfterHorizon  float64         `json:"price_after_horizon"`
	PriceMovementPct   float64         `json:"price_movement_pct"`
	TradesAnalyzed     int             `json:"trades_analyzed"`
	DroppedTrades      int             `json:"dropped_trades"`
	CreatedAt          time.Time       `json:"created_at"`
}

// IndicatorEffectiveness measures how well one indicator separated correct
// from incorrect predictions: mean score on correct calls minus mean score on
// incorrect ones.
type IndicatorEffectiveness struct {
	Indicator     string  `json:"indicator"`
	MeanCorrect   float64 `json:"mean_correct"`
	MeanIncorrect float64 `json:"mean_incorrect"`
	Delta         float64 `json:"delta"`
}

// BacktestSummary aggregates the records of one backtest run.
type BacktestSummary struct {
	RunID             string                   `json:"run_id"`
	StartedAt         time.Time                `json:"started_at"`
	FinishedAt        time.Time                `json:"finished_at"`
	MarketsScored     int                      `json:"markets_scored"`
	MarketsSkipped    int                      `json:"markets_skipped"`
	Accuracy          float64                  `json:"accuracy"` // over scored markets only
	AvgMovementPct    float64                  `json:"avg_movement_pct"`
	AvgProbability    float64                  `json:"avg_probability"`
	Effectiveness     []IndicatorEffectiveness `json:"effectiveness"` // ranked by Delta desc
	SkipReasonCounts  map[string]int           `json:"skip_reason_counts,omitempty"`
}
