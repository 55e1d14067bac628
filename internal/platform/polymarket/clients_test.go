package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortRetries shrinks the retry backoff so failure-path tests stay fast.
func shortRetries(t *testing.T) {
	t.Helper()
	old := retryBaseDelay
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = old })
}

func TestGammaListActiveMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		assert.Equal(t, "volume", r.URL.Query().Get("order"))

		fmt.Fprint(w, `[
			{"id":"m1","question":"Q1","active":true,"outcomes":"[\"Yes\",\"No\"]","volume":"90000"},
			{"id":"m2","question":"Q2","active":true,"outcomes":"[\"Yes\",\"No\"]","volume":"40000"}
		]`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, time.Second)
	markets, err := client.ListActiveMarkets(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "m1", markets[0].ID)
	assert.Equal(t, domain.MarketStatusActive, markets[0].Status)
	assert.InDelta(t, 90000.0, markets[0].Volume, 1e-9)
}

func TestGammaListResolvedMarketsFiltersAndStops(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// One resolved market after the cutoff, one closed-but-unsettled,
		// one resolved before the cutoff. The last one ends pagination.
		fmt.Fprint(w, `[
			{"id":"m1","question":"Q1","closed":true,"outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"1\",\"0\"]","endDate":"2026-03-10T00:00:00Z"},
			{"id":"m2","question":"Q2","closed":true,"outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.6\",\"0.4\"]","endDate":"2026-03-05T00:00:00Z"},
			{"id":"m3","question":"Q3","closed":true,"outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0\",\"1\"]","endDate":"2026-02-01T00:00:00Z"}
		]`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, time.Second)
	markets, err := client.ListResolvedMarkets(context.Background(), since, 50)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "m1", markets[0].ID)
	assert.Equal(t, "Yes", markets[0].ResolvedOutcome)
	assert.Equal(t, 1, calls)
}

func TestGammaGetMarketBySlugNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, time.Second)
	_, err := client.GetMarketBySlug(context.Background(), "no-such-market")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGammaStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, domain.ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimited},
		{"server error", http.StatusBadGateway, domain.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shortRetries(t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := NewGammaClient(srv.URL, time.Second)
			_, err := client.GetMarket(context.Background(), "m1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGammaTransportErrorWrapsUpstream(t *testing.T) {
	shortRetries(t)
	client := NewGammaClient("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := client.GetMarket(context.Background(), "m1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestDataListTradesRetriesTransientFailure(t *testing.T) {
	shortRetries(t)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, time.Second)
	trades, err := client.ListTrades(context.Background(), "mkt-1", nil)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 2, calls, "a single 503 must be retried, not surfaced")
}

func TestGammaRetriesExhaustOnPersistentOutage(t *testing.T) {
	shortRetries(t)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, time.Second)
	_, err := client.ListActiveMarkets(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Equal(t, maxGetAttempts, calls)
}

func TestDataDoesNotRetryPermanentFailure(t *testing.T) {
	shortRetries(t)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, time.Second)
	_, err := client.ListTrades(context.Background(), "mkt-1", nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx responses must not be retried")
}

func TestDataListTradesPaginatesAndSortsAscending(t *testing.T) {
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	// Two pages, newest first across the boundary.
	page := func(start, n int) []APITrade {
		out := make([]APITrade, 0, n)
		for i := 0; i < n; i++ {
			idx := start + i
			out = append(out, APITrade{
				ProxyWallet:     fmt.Sprintf("0xwallet%d", idx),
				Side:            "BUY",
				Size:            100,
				Price:           0.5,
				Timestamp:       base.Add(-time.Duration(idx) * time.Minute).Unix(),
				Outcome:         "Yes",
				TransactionHash: fmt.Sprintf("0xtx%d", idx),
			})
		}
		return out
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		assert.Equal(t, "mkt-1", r.URL.Query().Get("market"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		enc := json.NewEncoder(w)
		if offset == 0 {
			require.NoError(t, enc.Encode(page(0, tradePageSize)))
			return
		}
		require.NoError(t, enc.Encode(page(tradePageSize, 3)))
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, time.Second)
	trades, err := client.ListTrades(context.Background(), "mkt-1", nil)
	require.NoError(t, err)
	require.Len(t, trades, tradePageSize+3)

	for i := 1; i < len(trades); i++ {
		assert.False(t, trades[i].Timestamp.Before(trades[i-1].Timestamp))
	}
	assert.Equal(t, "mkt-1", trades[0].MarketID)
	assert.InDelta(t, 50.0, trades[0].SizeUSD, 1e-9)
}

func TestDataListTradesStopsAtSinceCutoff(t *testing.T) {
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	since := base.Add(-30 * time.Minute)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		trades := make([]APITrade, 0, tradePageSize)
		for i := 0; i < tradePageSize; i++ {
			trades = append(trades, APITrade{
				ProxyWallet: "0xw",
				Side:        "BUY",
				Size:        10,
				Price:       0.5,
				Timestamp:   base.Add(-time.Duration(i) * time.Minute).Unix(),
				Outcome:     "Yes",
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(trades))
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, time.Second)
	trades, err := client.ListTrades(context.Background(), "mkt-1", &since)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, trades, 31)
	for _, tr := range trades {
		assert.False(t, tr.Timestamp.Before(since))
	}
}

func TestDataUserActivityCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activity", r.URL.Path)
		assert.Equal(t, "0xfresh", r.URL.Query().Get("user"))
		fmt.Fprint(w, `[{"type":"TRADE","timestamp":1},{"type":"TRADE","timestamp":2}]`)
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, time.Second)
	n, err := client.UserActivityCount(context.Background(), "0xfresh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDataUserActivityCountUnknownAddressIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, time.Second)
	n, err := client.UserActivityCount(context.Background(), "0xghost")
	require.NoError(t, err)
	assert.Zero(t, n)
}
