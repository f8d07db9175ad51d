// Package cache provides a Redis read-through cache for the product catalog.
package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/ruxstar-pod/internal/domain/pricing"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/pkg/opt"
)

const (
	keyPrefix = "pod:product:"
	listKey   = "pod:products"

	// DefaultTTL bounds how stale a cached product may be.
	DefaultTTL = 5 * time.Minute

	filterFPR = 0.001
)

var _ product.Repository = (*Products)(nil)

// Products caches product reads in Redis. Cache failures fall back to the
// underlying repository. A bloom filter of known IDs sends lookups of IDs
// that were not in the catalog at the last Warm straight to the repository,
// skipping Redis; IDs found there are added to the filter.
type Products struct {
	next   product.Repository
	rdb    redis.UniversalClient
	ttl    time.Duration
	filter atomic.Pointer[bloom.BloomFilter]
}

// NewProducts wraps next with a cache backed by rdb.
func NewProducts(next product.Repository, rdb redis.UniversalClient, ttl time.Duration) *Products {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Products{next: next, rdb: rdb, ttl: ttl}
}

// Warm rebuilds the known-ID filter from the active catalog. Until the
// first successful Warm every ID is considered possibly present.
func (c *Products) Warm(ctx context.Context) error {
	products, err := c.next.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	f := bloom.NewWithEstimates(uint(max(len(products), 1)*2), filterFPR)
	for _, p := range products {
		f.AddString(p.ID)
	}
	c.filter.Store(f)
	zctx.From(ctx).Debug("Product filter warmed", zap.Int("products", len(products)))
	return nil
}

// Refresh re-warms the filter every interval until ctx is done.
func (c *Products) Refresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Warm(ctx); err != nil && ctx.Err() == nil {
				zctx.From(ctx).Warn("Product filter refresh failed", zap.Error(err))
			}
		}
	}
}

func (c *Products) mayExist(id string) bool {
	f := c.filter.Load()
	return f == nil || f.TestString(id)
}

// List returns the active catalog.
func (c *Products) List(ctx context.Context) ([]product.Product, error) {
	var cached []cachedProduct
	if c.load(ctx, listKey, &cached) {
		out := make([]product.Product, len(cached))
		for i, p := range cached {
			out[i] = p.product()
		}
		return out, nil
	}

	products, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]cachedProduct, len(products))
	for i, p := range products {
		entries[i] = newCachedProduct(p)
	}
	c.store(ctx, listKey, entries)
	return products, nil
}

// GetByID returns a product, consulting Redis first for known IDs.
func (c *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	known := c.mayExist(id)
	if known {
		var cached cachedProduct
		if c.load(ctx, keyPrefix+id, &cached) {
			p := cached.product()
			return &p, nil
		}
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !known {
		c.learn(id)
	}
	c.store(ctx, keyPrefix+id, newCachedProduct(*p))
	return p, nil
}

// learn adds id to the filter. The filter is replaced, not mutated, since
// readers test it without locking; a concurrent Warm or learn may drop the
// addition until the next one.
func (c *Products) learn(id string) {
	f := c.filter.Load()
	if f == nil {
		return
	}
	next := f.Copy()
	next.AddString(id)
	c.filter.CompareAndSwap(f, next)
}

// Invalidate drops id and the catalog list from the cache.
func (c *Products) Invalidate(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, keyPrefix+id, listKey).Err(); err != nil {
		return errors.Wrapf(err, "invalidate product %s", id)
	}
	return nil
}

func (c *Products) load(ctx context.Context, key string, v any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zctx.From(ctx).Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		zctx.From(ctx).Warn("Dropping corrupt product cache entry", zap.String("key", key), zap.Error(err))
		_ = c.rdb.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Products) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// cachedProduct is the cache wire form. Optional price fields keep their
// absent/empty distinction through opt.Opt's null handling.
type cachedProduct struct {
	ID                string                        `json:"id"`
	Name              string                        `json:"name"`
	Category          string                        `json:"category"`
	Image             string                        `json:"image"`
	BasePrice         decimal.Decimal               `json:"base_price"`
	QuantitySlabs     opt.Opt[[]pricing.Slab]       `json:"quantity_slabs"`
	TurnaroundOptions opt.Opt[[]pricing.Turnaround] `json:"turnaround_options"`
	PrintTypes        []string                      `json:"print_types"`
	Sizes             []string                      `json:"sizes"`
	Colors            []string                      `json:"colors"`
	Active            bool                          `json:"active"`
}

func newCachedProduct(p product.Product) cachedProduct {
	return cachedProduct{
		ID:                p.ID,
		Name:              p.Name,
		Category:          p.Category,
		Image:             p.Image,
		BasePrice:         p.BasePrice,
		QuantitySlabs:     p.QuantitySlabs,
		TurnaroundOptions: p.TurnaroundOptions,
		PrintTypes:        p.SupportedPrintTypes,
		Sizes:             p.Sizes,
		Colors:            p.Colors,
		Active:            p.Active,
	}
}

func (c cachedProduct) product() product.Product {
	return product.Product{
		ID:                  c.ID,
		Name:                c.Name,
		Category:            c.Category,
		Image:               c.Image,
		BasePrice:           c.BasePrice,
		QuantitySlabs:       c.QuantitySlabs,
		TurnaroundOptions:   c.TurnaroundOptions,
		SupportedPrintTypes: c.PrintTypes,
		Sizes:               c.Sizes,
		Colors:              c.Colors,
		Active:              c.Active,
	}
}
