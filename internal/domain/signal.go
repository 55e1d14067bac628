package domain

import "time"

// IndicatorScores holds the per-indicator components of a signal. Each score
// is in [0,10].
type IndicatorScores struct {
	Concentration float64 `json:"concentration"`
	Velocity      float64 `json:"velocity"`
	Skew          float64 `json:"skew"`
	Whale         float64 `json:"whale"`
	Volatility    float64 `json:"volatility"`
}

// AddressVolume is one entry of a signal's top-trader breakdown.
type AddressVolume struct {
	Address   string  `json:"address"`
	VolumeUSD float64 `json:"volume_usd"`
	Share     float64 `json:"share"` // effective-volume share, [0,1]
}

// Signal is the scored output for one market at one evaluation instant.
type Signal struct {
	ID                 string          `json:"id"`
	MarketID           string          `json:"market_id"`
	Question           string          `json:"question,omitempty"`
	EvaluatedAt        time.Time       `json:"evaluated_at"`
	InsiderProbability float64         `json:"insider_probability"` // [0,1]
	RiskScore          float64         `json:"risk_score"`          // probability * 10
	Scores             IndicatorScores `json:"scores"`
	ImpliedDirection   string          `json:"implied_direction"` // majority outcome
	TopAddresses       []AddressVolume `json:"top_addresses"`
	TradeCount         int             `json:"trade_count"`
	TotalVolumeUSD     float64         `json:"total_volume_usd"`
	DroppedTrades      int             `json:"dropped_trades"`
}
