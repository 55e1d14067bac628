package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

const (
	tradePageSize = 500
	// maxTradePages caps pagination so one pathological market cannot pin a
	// worker on the upstream API.
	maxTradePages = 20

	activityPageSize = 500
)

// DataClient is the REST client for the Polymarket Data API, which serves
// trade history and per-account activity.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a new Data API client.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL string, timeout time.Duration) *DataClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListTrades returns the trades of one market in ascending timestamp order.
// When since is non-nil, pagination stops once older fills are reached. The
// returned trades are not yet enriched with account history.
func (d *DataClient) ListTrades(ctx context.Context, marketID string, since *time.Time) ([]domain.Trade, error) {
	var out []domain.Trade

	for page := 0; page < maxTradePages; page++ {
		params := url.Values{}
		params.Set("market", marketID)
		params.Set("limit", strconv.Itoa(tradePageSize))
		params.Set("offset", strconv.Itoa(page*tradePageSize))

		body, err := d.doGet(ctx, "/trades?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("polymarket/data: list trades %s: %w", marketID, err)
		}

		var apiTrades []APITrade
		if err := json.Unmarshal(body, &apiTrades); err != nil {
			return nil, fmt.Errorf("polymarket/data: decode trades: %w", err)
		}
		if len(apiTrades) == 0 {
			break
		}

		// The API serves newest first.
		sawOlder := false
		for i := range apiTrades {
			t := apiTrades[i].ToDomainTrade(marketID)
			if since != nil && t.Timestamp.Before(*since) {
				sawOlder = true
				continue
			}
			out = append(out, t)
		}

		if sawOlder || len(apiTrades) < tradePageSize {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// UserActivityCount returns how many activity entries the Data API has for
// an address. Unknown addresses count as zero, not as an error.
func (d *DataClient) UserActivityCount(ctx context.Context, address string) (int, error) {
	params := url.Values{}
	params.Set("user", address)
	params.Set("limit", strconv.Itoa(activityPageSize))

	body, err := d.doGet(ctx, "/activity?"+params.Encode())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("polymarket/data: user activity %s: %w", address, err)
	}

	var entries []APIActivity
	if err := json.Unmarshal(body, &entries); err != nil {
		return 0, fmt.Errorf("polymarket/data: decode activity: %w", err)
	}
	return len(entries), nil
}

// doGet sends an unauthenticated GET request to the Data API, retrying
// transient failures with backoff.
func (d *DataClient) doGet(ctx context.Context, path string) ([]byte, error) {
	return doGet(ctx, d.httpClient, d.baseURL+path)
}
