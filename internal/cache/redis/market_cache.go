package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultMarketTTL = 10 * time.Minute

// MarketCache implements domain.MarketCache using JSON-serialized Market
// values with a secondary slug index.
//
// Key schema:
//
//	market:{id}        - JSON-encoded market
//	market:slug:{slug} - string value of the market ID
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A
// non-positive ttl falls back to 10 minutes.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = defaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func marketKey(id string) string       { return "market:" + id }
func marketSlugKey(slug string) string { return "market:slug:" + slug }

// Set stores a Market in the cache and indexes its slug.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.ID, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Set(ctx, marketKey(market.ID), data, mc.ttl)
	if market.Slug != "" {
		pipe.Set(ctx, marketSlugKey(market.Slug), market.ID, mc.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.ID, err)
	}
	return nil
}

// Get retrieves a Market by its ID from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return market, nil
}

// GetBySlug looks up a Market through the slug index.
// It returns domain.ErrNotFound if the slug mapping or market does not exist.
func (mc *MarketCache) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	marketID, err := mc.rdb.Get(ctx, marketSlugKey(slug)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market by slug %s: %w", slug, err)
	}
	return mc.Get(ctx, marketID)
}

// Invalidate removes a Market and its slug index entry from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, id string) error {
	market, err := mc.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, marketKey(id))
	if err == nil && market.Slug != "" {
		pipe.Del(ctx, marketSlugKey(market.Slug))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
