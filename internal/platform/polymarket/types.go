// Package polymarket contains REST clients for the public Polymarket APIs:
// the Gamma API for market discovery and metadata, and the Data API for
// trade history and per-account activity.
package polymarket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string, which the
// Gamma API mixes freely for volume fields.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID                  string    `json:"id"`
	Question            string    `json:"question"`
	Slug                string    `json:"slug"`
	Active              flexBool  `json:"active"`
	Closed              flexBool  `json:"closed"`
	Outcomes            string    `json:"outcomes"`      // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	OutcomePrices       string    `json:"outcomePrices"` // JSON-encoded: e.g. "[\"1\",\"0\"]"
	Volume              flexFloat `json:"volume"`
	EndDate             string    `json:"endDate"`
	UmaResolutionStatus string    `json:"umaResolutionStatus"`
	CreatedAt           string    `json:"createdAt"`
	UpdatedAt           string    `json:"updatedAt"`
}

// resolvedPriceFloor is how close to 1.0 an outcome price must be before the
// market counts as resolved toward that outcome.
const resolvedPriceFloor = 0.99

// ToDomainMarket converts a Gamma APIMarket to a domain.Market. The resolved
// outcome is derived from outcomePrices: a closed market whose winning
// outcome has settled to ~1.0.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:       m.ID,
		Question: m.Question,
		Slug:     m.Slug,
		Volume:   float64(m.Volume),
	}
	if dm.Question == "" {
		dm.Question = "Unknown"
	}

	dm.Outcomes = decodeStringList(m.Outcomes)
	if len(dm.Outcomes) == 0 {
		dm.Outcomes = []string{"Yes", "No"}
	}

	switch {
	case bool(m.Closed):
		dm.Status = domain.MarketStatusClosed
	case bool(m.Active):
		dm.Status = domain.MarketStatusActive
	default:
		dm.Status = domain.MarketStatusSettled
	}

	if bool(m.Closed) {
		if outcome, ok := winningOutcome(dm.Outcomes, m.OutcomePrices); ok {
			dm.Resolved = true
			dm.ResolvedOutcome = outcome
			dm.Status = domain.MarketStatusSettled
		}
	}

	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		dm.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		dm.UpdatedAt = t
	}
	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			dm.ResolvedAt = &t
		}
	}

	return dm
}

// decodeStringList parses the Gamma convention of JSON-encoded string lists
// ("[\"Yes\",\"No\"]"). Returns nil on malformed input.
func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// winningOutcome pairs the outcome list with the settled prices and returns
// the outcome whose price reached ~1.0.
func winningOutcome(outcomes []string, rawPrices string) (string, bool) {
	prices := decodeStringList(rawPrices)
	if len(prices) == 0 || len(prices) != len(outcomes) {
		return "", false
	}
	for i, p := range prices {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			continue
		}
		if v >= resolvedPriceFloor {
			return outcomes[i], true
		}
	}
	return "", false
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APITrade represents one fill as returned by the Data API /trades endpoint.
type APITrade struct {
	ProxyWallet     string    `json:"proxyWallet"`
	Side            string    `json:"side"` // "BUY" or "SELL"
	ConditionID     string    `json:"conditionId"`
	Size            flexFloat `json:"size"`  // shares
	Price           flexFloat `json:"price"` // implied probability
	Timestamp       int64     `json:"timestamp"`
	Outcome         string    `json:"outcome"`
	TransactionHash string    `json:"transactionHash"`
}

// ToDomainTrade converts an APITrade to a domain.Trade for the given market.
// The notional is shares x price; the account history count is filled in
// later by the enrichment layer.
func (t *APITrade) ToDomainTrade(marketID string) domain.Trade {
	side := domain.TradeSideBuy
	if strings.EqualFold(t.Side, "SELL") {
		side = domain.TradeSideSell
	}
	return domain.Trade{
		MarketID:      marketID,
		TraderAddress: strings.ToLower(t.ProxyWallet),
		Outcome:       t.Outcome,
		Side:          side,
		Price:         float64(t.Price),
		SizeUSD:       float64(t.Size) * float64(t.Price),
		Timestamp:     time.Unix(t.Timestamp, 0).UTC(),
		TxHash:        t.TransactionHash,
	}
}

// APIActivity is one entry of the Data API /activity endpoint.
type APIActivity struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// --------------------------------------------------------------------------
// Shared HTTP helpers
// --------------------------------------------------------------------------

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstreamUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
