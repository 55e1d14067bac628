package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market represents a Polymarket prediction market.
type Market struct {
	ID              string       `json:"id"`
	Question        string       `json:"question"`
	Slug            string       `json:"slug"`
	Outcomes        []string     `json:"outcomes"` // e.g. ["Yes","No"]
	Volume          float64      `json:"volume"`
	Status          MarketStatus `json:"status"`
	Resolved        bool         `json:"resolved"`
	ResolvedOutcome string       `json:"resolved_outcome,omitempty"` // set iff Resolved
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
