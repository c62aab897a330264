// Package zones resolves placement positions to zone configuration through a
// process wide cache.
package zones

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

// DefaultFetchTimeout bounds one shared zone list fetch.
const DefaultFetchTimeout = 5 * time.Second

// Source loads the full zone list. *db.Postgres implements it.
type Source interface {
	FetchZones(ctx context.Context) ([]models.AdZone, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]models.AdZone, error)

// FetchZones calls f(ctx).
func (f SourceFunc) FetchZones(ctx context.Context) ([]models.AdZone, error) { return f(ctx) }

// Cache memoizes the zone list after the first successful fetch. Concurrent
// callers on a cold cache share one fetch, which is detached from any single
// caller's cancellation. Failed fetches are not memoized. Entries never
// expire on their own; call Invalidate after zone writes.
type Cache struct {
	src          Source
	metrics      observability.MetricsRegistry
	logger       *zap.Logger
	fetchTimeout time.Duration

	group singleflight.Group

	mu     sync.RWMutex
	zones  []models.AdZone
	loaded bool
	gen    uint64
}

// NewCache creates an empty Cache over src.
func NewCache(src Source, metrics observability.MetricsRegistry, logger *zap.Logger) *Cache {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Cache{src: src, metrics: metrics, logger: logger, fetchTimeout: DefaultFetchTimeout}
}

// SetFetchTimeout overrides DefaultFetchTimeout. Non-positive values are
// ignored. Call it before the cache is shared.
func (c *Cache) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		c.fetchTimeout = d
	}
}

// Zones returns the full zone list, fetching it on first use. The slice is
// shared and must not be modified.
func (c *Cache) Zones(ctx context.Context) ([]models.AdZone, error) {
	c.mu.RLock()
	if c.loaded {
		zones := c.zones
		c.mu.RUnlock()
		return zones, nil
	}
	gen := c.gen
	c.mu.RUnlock()

	ch := c.group.DoChan(flightKey(gen), func() (any, error) {
		return c.fetch(ctx, gen)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.AdZone), nil
	}
}

func (c *Cache) fetch(ctx context.Context, gen uint64) ([]models.AdZone, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	zones, err := c.src.FetchZones(fetchCtx)
	if err != nil {
		c.metrics.IncrementZoneCacheFetch("error")
		c.logger.Error("zone list fetch failed", zap.Error(err))
		return nil, err
	}
	c.metrics.IncrementZoneCacheFetch("ok")

	c.mu.Lock()
	// An Invalidate during the fetch makes this result stale for later
	// callers; it is still handed to the callers that were waiting on it.
	if c.gen == gen {
		c.zones = zones
		c.loaded = true
	}
	c.mu.Unlock()
	return zones, nil
}

// GetZoneConfig returns the enabled zone whose position matches exactly. A
// missing and a disabled zone both yield nil.
func (c *Cache) GetZoneConfig(ctx context.Context, position string) (*models.AdZone, error) {
	zones, err := c.Zones(ctx)
	if err != nil {
		return nil, err
	}
	for i := range zones {
		if zones[i].Position == position && zones[i].IsEnabled {
			z := zones[i]
			return &z, nil
		}
	}
	return nil, nil
}

// Invalidate drops the memoized list so the next lookup fetches again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	old := c.gen
	c.gen++
	c.zones = nil
	c.loaded = false
	c.mu.Unlock()

	c.group.Forget(flightKey(old))
	c.metrics.IncrementZoneCacheInvalidations()
}

// Loaded reports whether a zone list is currently memoized.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func flightKey(gen uint64) string {
	return "zones:" + strconv.FormatUint(gen, 10)
}
