// Package quota enforces the usage limits tied to the user's entitlement
// tier. The gate is a pure decision consulted before a create; entitlement
// state is fetched asynchronously and cached, so the interactive path never
// waits on the network.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clipdeck/clipdeck/internal/common"
	"github.com/clipdeck/clipdeck/internal/logging"
	"github.com/clipdeck/clipdeck/internal/models"
)

// Entitlements are the limits derived from the user's tier. Zero means
// unlimited.
type Entitlements struct {
	MaxRecords    int `json:"max_records"`
	MaxCategories int `json:"max_categories"`
}

// FreeTier is the fallback used until the first successful fetch.
var FreeTier = Entitlements{MaxRecords: 100, MaxCategories: 10}

// Source provides entitlement state from an external system (store receipt
// validation, account service).
type Source interface {
	Entitlements(ctx context.Context) (Entitlements, error)
}

// Cache holds the last known entitlements with bounded staleness. Reads are
// always served from memory; refreshes happen in the background.
type Cache struct {
	src Source
	log logging.Logger

	mu        sync.RWMutex
	cur       Entitlements
	fetchedAt time.Time
}

func NewCache(src Source, fallback Entitlements, log logging.Logger) *Cache {
	return &Cache{src: src, cur: fallback, log: log}
}

// Current returns the cached entitlements. It never blocks.
func (c *Cache) Current() Entitlements {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

// FetchedAt reports when the cached value was last refreshed (zero if never).
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Refresh fetches fresh entitlements. On failure the previous cached value
// stays in effect.
func (c *Cache) Refresh(ctx context.Context) error {
	ents, err := c.src.Entitlements(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh entitlements: %w", err)
	}

	c.mu.Lock()
	c.cur = ents
	c.fetchedAt = time.Now().UTC()
	c.mu.Unlock()
	return nil
}

// Run refreshes the cache on the given interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.log.Warn(ctx, "entitlement refresh failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Counter counts live records; satisfied by the records repository.
type Counter interface {
	CountActive(ctx context.Context, kind models.Kind) (int, error)
}

// Gate decides whether a create is allowed under the current entitlements.
type Gate struct {
	cache   *Cache
	counter Counter
}

func NewGate(cache *Cache, counter Counter) *Gate {
	return &Gate{cache: cache, counter: counter}
}

// AllowCreate returns nil when a record of the given kind may be created,
// or common.ErrQuotaExceeded. It mutates nothing.
func (g *Gate) AllowCreate(ctx context.Context, kind models.Kind) error {
	ents := g.cache.Current()

	limit := ents.MaxRecords
	countKind := models.Kind("")
	if kind == models.KindCategory {
		limit = ents.MaxCategories
		countKind = models.KindCategory
	}
	if limit <= 0 {
		return nil
	}

	n, err := g.counter.CountActive(ctx, countKind)
	if err != nil {
		return fmt.Errorf("failed to count records for quota: %w", err)
	}
	if n >= limit {
		return fmt.Errorf("%w: %d of %d used", common.ErrQuotaExceeded, n, limit)
	}
	return nil
}
