package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// PriceCache implements domain.PriceCache. Each symbol is a hash at
// {prefix}:price:{symbol} with fields "px" and "ts" (unix nanoseconds). A
// non-zero TTL lets quotes for symbols that drop off the watchlist expire.
type PriceCache struct {
	c   *Client
	ttl time.Duration
}

func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: c, ttl: ttl}
}

// SetPrice stores the latest price. An older timestamp never overwrites
// a newer one.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	key := pc.c.key("price", symbol)
	if _, prevTS, err := pc.GetPrice(ctx, symbol); err == nil && prevTS.After(ts) {
		return nil
	}
	_, err := pc.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "px", strconv.FormatFloat(price, 'f', -1, 64), "ts", strconv.FormatInt(ts.UnixNano(), 10))
		if pc.ttl > 0 {
			p.Expire(ctx, key, pc.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice returns domain.ErrNotFound for an unknown or expired symbol.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.c.key("price", symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	px, ts, ok := parseQuote(vals)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, domain.ErrNotFound)
	}
	return px, ts, nil
}

func parseQuote(vals map[string]string) (float64, time.Time, bool) {
	px, err := strconv.ParseFloat(vals["px"], 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	ns, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return px, time.Unix(0, ns).UTC(), true
}

var _ domain.PriceCache = (*PriceCache)(nil)
