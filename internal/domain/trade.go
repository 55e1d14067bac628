package domain

import (
	"fmt"
	"time"
)

// TradeSide is the taker direction of a fill.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade flags assigned by the detector for the dashboard feed. A trade above
// the large-trade threshold from a low-history account is flagged INSIDER,
// or CONTRARIAN when it buys deep underdog odds.
const (
	TradeFlagInsider    = "INSIDER"
	TradeFlagContrarian = "CONTRARIAN"
)

// Trade represents a single normalized trade fill on a market.
type Trade struct {
	ID            int64     `json:"id"`
	MarketID      string    `json:"market_id"`
	TraderAddress string    `json:"trader_address"`
	Outcome       string    `json:"outcome"` // e.g. "Yes" or "No"
	Side          TradeSide `json:"side"`
	Price         float64   `json:"price"` // implied probability, [0,1]
	SizeUSD       float64   `json:"size_usd"`
	Timestamp     time.Time `json:"timestamp"`
	TxHash        string    `json:"tx_hash"`

	// TraderHistoryCount is how many prior trades the account had at fill
	// time. Zero means a brand-new account.
	TraderHistoryCount int `json:"trader_history_count"`

	// Flag is set by the detector ("INSIDER", "CONTRARIAN") or empty.
	Flag string `json:"flag,omitempty"`
}

// Validate reports whether the trade satisfies the model invariants. Records
// that fail are dropped and counted by callers, never zero-defaulted.
func (t Trade) Validate() error {
	if t.MarketID == "" {
		return fmt.Errorf("trade %s: empty market id: %w", t.TxHash, ErrMalformedTrade)
	}
	if t.Price < 0 || t.Price > 1 {
		return fmt.Errorf("trade %s: price %.4f out of [0,1]: %w", t.TxHash, t.Price, ErrMalformedTrade)
	}
	if t.SizeUSD <= 0 {
		return fmt.Errorf("trade %s: non-positive size %.2f: %w", t.TxHash, t.SizeUSD, ErrMalformedTrade)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("trade %s: zero timestamp: %w", t.TxHash, ErrMalformedTrade)
	}
	return nil
}
