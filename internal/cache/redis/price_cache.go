package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/sink"
)

// PriceCache stores each market's latest trade price as a hash at
// "price:{tokenID}" with fields "price" (18-fractional-digit decimal
// string), "block" and "ts". Prices are written as emitted, so the cache is
// last-write-wins like the in-memory store it mirrors.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(tokenID string) string {
	return "price:" + tokenID
}

// Set stores the latest price for one market.
func (pc *PriceCache) Set(ctx context.Context, p domain.TokenPrice) error {
	fields := map[string]interface{}{
		"price": p.Price,
		"block": strconv.FormatUint(p.BlockNumber, 10),
		"ts":    strconv.FormatInt(p.Timestamp, 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(p.TokenID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", p.TokenID, err)
	}
	return nil
}

// Get retrieves the latest price for a market. It returns domain.ErrNotFound
// when the market has never traded.
func (pc *PriceCache) Get(ctx context.Context, tokenID string) (domain.TokenPrice, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(tokenID)).Result()
	if err != nil {
		return domain.TokenPrice{}, fmt.Errorf("redis: get price %s: %w", tokenID, err)
	}
	if len(vals) == 0 {
		return domain.TokenPrice{}, domain.ErrNotFound
	}

	p := domain.TokenPrice{TokenID: tokenID, Price: vals["price"]}
	if p.Price == "" {
		return domain.TokenPrice{}, domain.ErrNotFound
	}
	if p.BlockNumber, err = strconv.ParseUint(vals["block"], 10, 64); err != nil {
		return domain.TokenPrice{}, fmt.Errorf("redis: parse price block %s: %w", tokenID, err)
	}
	if p.Timestamp, err = strconv.ParseInt(vals["ts"], 10, 64); err != nil {
		return domain.TokenPrice{}, fmt.Errorf("redis: parse price ts %s: %w", tokenID, err)
	}
	return p, nil
}

// WriteBlock implements sink.Sink: it pipelines one HSet per market whose
// price moved in the block.
func (pc *PriceCache) WriteBlock(ctx context.Context, res *domain.BlockResult) error {
	if len(res.PriceUpdates) == 0 {
		return nil
	}

	pipe := pc.rdb.Pipeline()
	for _, p := range res.PriceUpdates {
		pipe.HSet(ctx, priceKey(p.TokenID), map[string]interface{}{
			"price": p.Price,
			"block": strconv.FormatUint(p.BlockNumber, 10),
			"ts":    strconv.FormatInt(p.Timestamp, 10),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish prices for block %d: %w", res.BlockNumber, err)
	}
	return nil
}

var _ sink.Sink = (*PriceCache)(nil)
