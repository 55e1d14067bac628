package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
	"github.com/redis/go-redis/v9"
)

// traderHistoryTTL keeps history counts fresh enough that a brand-new account
// stops looking fresh within a day of trading.
const traderHistoryTTL = 24 * time.Hour

// TraderHistoryCache implements domain.TraderHistoryCache with plain integer
// keys. History counts only grow, so a stale value errs toward treating an
// account as fresher than it is.
type TraderHistoryCache struct {
	rdb *redis.Client
}

// NewTraderHistoryCache creates a TraderHistoryCache backed by the given
// Client.
func NewTraderHistoryCache(c *Client) *TraderHistoryCache {
	return &TraderHistoryCache{rdb: c.Underlying()}
}

func traderHistoryKey(address string) string {
	return "trader:history:" + strings.ToLower(address)
}

// SetCount stores the prior-activity count for an address.
func (tc *TraderHistoryCache) SetCount(ctx context.Context, address string, count int) error {
	if err := tc.rdb.Set(ctx, traderHistoryKey(address), count, traderHistoryTTL).Err(); err != nil {
		return fmt.Errorf("redis: set trader history %s: %w", address, err)
	}
	return nil
}

// GetCount retrieves the cached prior-activity count for an address.
// It returns domain.ErrNotFound on a cache miss.
func (tc *TraderHistoryCache) GetCount(ctx context.Context, address string) (int, error) {
	count, err := tc.rdb.Get(ctx, traderHistoryKey(address)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("redis: get trader history %s: %w", address, err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.TraderHistoryCache = (*TraderHistoryCache)(nil)
