package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexBoolAcceptsBoolAndString(t *testing.T) {
	var m APIMarket
	require.NoError(t, json.Unmarshal([]byte(`{"active": true, "closed": "false"}`), &m))
	assert.True(t, bool(m.Active))
	assert.False(t, bool(m.Closed))

	require.NoError(t, json.Unmarshal([]byte(`{"active": "1"}`), &m))
	assert.True(t, bool(m.Active))
}

func TestFlexFloatAcceptsNumberAndString(t *testing.T) {
	var m APIMarket
	require.NoError(t, json.Unmarshal([]byte(`{"volume": 12345.5}`), &m))
	assert.InDelta(t, 12345.5, float64(m.Volume), 1e-9)

	require.NoError(t, json.Unmarshal([]byte(`{"volume": "678.25"}`), &m))
	assert.InDelta(t, 678.25, float64(m.Volume), 1e-9)

	require.NoError(t, json.Unmarshal([]byte(`{"volume": ""}`), &m))
	assert.Zero(t, float64(m.Volume))
}

func TestToDomainMarketActive(t *testing.T) {
	api := APIMarket{
		ID:       "0xcond",
		Question: "Will X win?",
		Slug:     "will-x-win",
		Active:   true,
		Outcomes: `["Yes","No"]`,
		Volume:   50000,
	}

	m := api.ToDomainMarket()
	assert.Equal(t, domain.MarketStatusActive, m.Status)
	assert.False(t, m.Resolved)
	assert.Equal(t, []string{"Yes", "No"}, m.Outcomes)
	assert.InDelta(t, 50000.0, m.Volume, 1e-9)
}

func TestToDomainMarketResolvedFromOutcomePrices(t *testing.T) {
	api := APIMarket{
		ID:            "0xcond",
		Question:      "Will X win?",
		Closed:        true,
		Outcomes:      `["Yes","No"]`,
		OutcomePrices: `["0","1"]`,
		EndDate:       "2026-02-10T00:00:00Z",
	}

	m := api.ToDomainMarket()
	assert.True(t, m.Resolved)
	assert.Equal(t, "No", m.ResolvedOutcome)
	assert.Equal(t, domain.MarketStatusSettled, m.Status)
	require.NotNil(t, m.ResolvedAt)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), m.ResolvedAt.UTC())
}

func TestToDomainMarketClosedButUnsettledIsNotResolved(t *testing.T) {
	api := APIMarket{
		ID:            "0xcond",
		Closed:        true,
		Outcomes:      `["Yes","No"]`,
		OutcomePrices: `["0.6","0.4"]`,
	}

	m := api.ToDomainMarket()
	assert.False(t, m.Resolved)
	assert.Empty(t, m.ResolvedOutcome)
	assert.Equal(t, domain.MarketStatusClosed, m.Status)
}

func TestToDomainMarketDefaultsMalformedOutcomes(t *testing.T) {
	api := APIMarket{ID: "0xcond", Outcomes: `not-json`}
	m := api.ToDomainMarket()
	assert.Equal(t, []string{"Yes", "No"}, m.Outcomes)
	assert.Equal(t, "Unknown", m.Question)
}

func TestAPITradeToDomainTrade(t *testing.T) {
	api := APITrade{
		ProxyWallet:     "0xABCDEF",
		Side:            "BUY",
		Size:            20000,
		Price:           0.5,
		Timestamp:       1767225600,
		Outcome:         "Yes",
		TransactionHash: "0xhash",
	}

	tr := api.ToDomainTrade("mkt-1")
	assert.Equal(t, "mkt-1", tr.MarketID)
	assert.Equal(t, "0xabcdef", tr.TraderAddress)
	assert.Equal(t, domain.TradeSideBuy, tr.Side)
	assert.InDelta(t, 10_000.0, tr.SizeUSD, 1e-9)
	assert.InDelta(t, 0.5, tr.Price, 1e-9)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), tr.Timestamp)
	require.NoError(t, tr.Validate())

	api.Side = "SELL"
	assert.Equal(t, domain.TradeSideSell, api.ToDomainTrade("mkt-1").Side)
}
