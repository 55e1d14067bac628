package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// gammaPageSize is the page size used for paginated market listings.
const gammaPageSize = 100

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery, metadata, and search.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, timeout time.Duration) *GammaClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListActiveMarkets returns up to limit open markets ordered by volume
// descending.
func (g *GammaClient) ListActiveMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = gammaPageSize
	}
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("order", "volume")
	params.Set("ascending", "false")

	markets, err := g.getMarkets(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list active markets: %w", err)
	}
	return markets, nil
}

// ListResolvedMarkets returns markets that closed at or after since and have
// a derivable winning outcome, up to limit. Pagination stops early once the
// endDate ordering passes the cutoff.
func (g *GammaClient) ListResolvedMarkets(ctx context.Context, since time.Time, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = 200
	}

	var out []domain.Market
	for offset := 0; len(out) < limit; offset += gammaPageSize {
		params := url.Values{}
		params.Set("closed", "true")
		params.Set("limit", strconv.Itoa(gammaPageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("order", "endDate")
		params.Set("ascending", "false")

		page, err := g.getMarkets(ctx, "/markets?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: list resolved markets: %w", err)
		}
		if len(page) == 0 {
			break
		}

		pastCutoff := false
		for _, m := range page {
			if m.ResolvedAt != nil && m.ResolvedAt.Before(since) {
				pastCutoff = true
				continue
			}
			if !m.Resolved {
				continue
			}
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
		if pastCutoff || len(page) < gammaPageSize {
			break
		}
	}

	return out, nil
}

// GetMarket returns a single market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(id))

	body, err := g.doGet(ctx, path)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var apiMarket APIMarket
	if err := json.Unmarshal(body, &apiMarket); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}

	return apiMarket.ToDomainMarket(), nil
}

// GetMarketBySlug returns a single market looked up by its URL slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	params := url.Values{}
	params.Set("slug", slug)

	markets, err := g.getMarkets(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}
	if len(markets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}
	return markets[0], nil
}

// GetMarkets returns a raw paginated page of markets, used by the scrape
// pipeline to walk the whole catalogue.
func (g *GammaClient) GetMarkets(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	markets, err := g.getMarkets(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}
	return markets, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (g *GammaClient) getMarkets(ctx context.Context, path string) ([]domain.Market, error) {
	body, err := g.doGet(ctx, path)
	if err != nil {
		return nil, err
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		markets = append(markets, apiMarkets[i].ToDomainMarket())
	}
	return markets, nil
}

// doGet sends an unauthenticated GET request to the Gamma API, retrying
// transient failures with backoff.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	return doGet(ctx, g.httpClient, g.baseURL+path)
}
