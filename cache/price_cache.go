package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/icodeforyou/meterit-go/metrics"
	"github.com/icodeforyou/meterit-go/types/maybe"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL = time.Minute
	// Bounds a lookup shared by concurrent callers, none of which own it.
	lookupTimeout = 10 * time.Second
)

type PriceLookup interface {
	GetCurrentPrice(ctx context.Context, now time.Time) (maybe.Maybe[decimal.Decimal], error)
}

// PriceCache is a read-through cache of the price in force right now.
// The entry expires ttl after it was computed, whatever slot it belongs to,
// so a price can be served up to ttl past its slot boundary.
type PriceCache struct {
	logger  *slog.Logger
	lookup  PriceLookup
	store   Store
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	group   singleflight.Group
}

func NewPriceCache(lookup PriceLookup, store Store, ttl time.Duration, m *metrics.Metrics) *PriceCache {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PriceCache{
		logger:  slog.Default().With(slog.String("module", "cache")),
		lookup:  lookup,
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
	}
}

func (c *PriceCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get never fails. Store errors are logged and reported as an unknown
// price, they are not cached so the next call tries again.
func (c *PriceCache) Get(ctx context.Context) maybe.Maybe[decimal.Decimal] {
	now := c.now()

	e, ok, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("cache store load failed", slog.Any("error", err))
	} else if ok && now.Sub(e.ComputedAt) < c.ttl {
		c.metrics.CacheLookup(metrics.CacheResultHit)
		return e.Price
	}

	c.metrics.CacheLookup(metrics.CacheResultMiss)

	v, err, _ := c.group.Do("current_price", func() (any, error) {
		// The first caller going away must not fail the callers sharing its flight.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		price, err := c.lookup.GetCurrentPrice(ctx, now)
		if err != nil {
			return nil, err
		}
		entry := Entry{Price: price, ComputedAt: now}
		if err := c.store.Save(ctx, entry, c.ttl); err != nil {
			c.logger.Warn("cache store save failed", slog.Any("error", err))
		}
		return price, nil
	})
	if err != nil {
		c.metrics.CacheLookup(metrics.CacheResultStoreError)
		c.logger.Error("failed to look up current price", slog.Any("error", err))
		return maybe.None[decimal.Decimal]()
	}
	return v.(maybe.Maybe[decimal.Decimal])
}

func (c *PriceCache) Invalidate(ctx context.Context) {
	if err := c.store.Delete(ctx); err != nil {
		c.logger.Warn("cache invalidation failed", slog.Any("error", err))
	}
}
