package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cached wraps a primary Source with a Redis read-through cache. Reads
// check Redis first then fall back to the primary; only known prices are
// cached, so unpriced symbols stay a primary lookup.
type Cached struct {
	primary Source
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCached creates a cached wrapper around a primary source.
func NewCached(primary Source, rdb *redis.Client, ttl time.Duration) *Cached {
	return &Cached{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (c *Cached) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	// Try cache. Any cache failure degrades to a primary read.
	if raw, err := c.rdb.Get(ctx, priceKey(symbol)).Result(); err == nil {
		if p, perr := decimal.NewFromString(raw); perr == nil {
			return p, true, nil
		}
	}

	price, ok, err := c.primary.Price(ctx, symbol)
	if err != nil || !ok {
		return decimal.Zero, false, err
	}

	c.rdb.Set(ctx, priceKey(symbol), price.String(), c.ttl)
	return price, true, nil
}

func (c *Cached) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	var misses []string

	for _, sym := range symbols {
		raw, err := c.rdb.Get(ctx, priceKey(sym)).Result()
		if err != nil {
			misses = append(misses, sym)
			continue
		}
		p, perr := decimal.NewFromString(raw)
		if perr != nil {
			misses = append(misses, sym)
			continue
		}
		out[sym] = p
	}

	if len(misses) > 0 {
		fetched, err := c.primary.Prices(ctx, misses)
		if err != nil {
			return nil, err
		}
		for sym, p := range fetched {
			out[sym] = p
			c.rdb.Set(ctx, priceKey(sym), p.String(), c.ttl)
		}
	}
	return out, nil
}

func priceKey(symbol string) string { return fmt.Sprintf("price:%s", symbol) }
