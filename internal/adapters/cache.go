package adapters

import (
	"sync"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

// SeriesCache holds two tiers per symbol: a short-TTL copy served as-is and a
// long-lived "last known good" copy served only when every provider failed.
// Both tiers are written together on a live success and never from a read.
type SeriesCache struct {
	mu          sync.Mutex
	fresh       map[string]CachedSeries
	fallback    map[string]CachedSeries
	ttl         time.Duration
	fallbackTTL time.Duration
	metrics     CacheMetrics
	now         func() time.Time
}

// CachedSeries is a series plus the time it was stored.
type CachedSeries struct {
	Series   PriceSeries `json:"series"`
	CachedAt time.Time   `json:"cached_at"`
}

// CacheMetrics tracks cache performance
type CacheMetrics struct {
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	FallbackHits   int64     `json:"fallback_hits"`
	FallbackMisses int64     `json:"fallback_misses"`
	Evictions      int64     `json:"evictions"`
	LastUpdated    time.Time `json:"last_updated"`
}

func NewSeriesCache(ttl, fallbackTTL time.Duration) *SeriesCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if fallbackTTL <= 0 {
		fallbackTTL = 24 * time.Hour
	}
	return &SeriesCache{
		fresh:       make(map[string]CachedSeries),
		fallback:    make(map[string]CachedSeries),
		ttl:         ttl,
		fallbackTTL: fallbackTTL,
		now:         time.Now,
	}
}

// Get returns the short-TTL entry if it is younger than the TTL.
func (c *SeriesCache) Get(symbol string) (PriceSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.fresh[symbol]
	if !ok || c.now().Sub(cached.CachedAt) >= c.ttl {
		c.metrics.Misses++
		observ.RecordCacheLookup("fresh", "miss")
		return PriceSeries{}, false
	}
	c.metrics.Hits++
	observ.RecordCacheLookup("fresh", "hit")
	return copySeries(cached.Series), true
}

// GetFallback returns the last known good series marked stale, provided it
// is younger than the fallback window.
func (c *SeriesCache) GetFallback(symbol string) (PriceSeries, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.fallback[symbol]
	if !ok {
		c.metrics.FallbackMisses++
		observ.RecordCacheLookup("fallback", "miss")
		return PriceSeries{}, 0, false
	}
	age := c.now().Sub(cached.CachedAt)
	if age >= c.fallbackTTL {
		c.metrics.FallbackMisses++
		observ.RecordCacheLookup("fallback", "expired")
		return PriceSeries{}, age, false
	}
	c.metrics.FallbackHits++
	observ.RecordCacheLookup("fallback", "hit")
	s := copySeries(cached.Series)
	s.Stale = true
	return s, age, true
}

// Set stores a live series in both tiers.
func (c *SeriesCache) Set(symbol string, series PriceSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	series = copySeries(series)
	series.Stale = false
	entry := CachedSeries{Series: series, CachedAt: c.now()}
	c.fresh[symbol] = entry
	c.fallback[symbol] = entry
	c.metrics.LastUpdated = entry.CachedAt
}

// GetMetrics returns current cache metrics
func (c *SeriesCache) GetMetrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Cleanup removes entries that can no longer be served from either tier.
func (c *SeriesCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for symbol, cached := range c.fresh {
		if now.Sub(cached.CachedAt) >= c.ttl {
			delete(c.fresh, symbol)
			evicted++
		}
	}
	for symbol, cached := range c.fallback {
		if now.Sub(cached.CachedAt) >= c.fallbackTTL {
			delete(c.fallback, symbol)
			evicted++
		}
	}
	c.metrics.Evictions += int64(evicted)
	if evicted > 0 {
		observ.Log("series_cache_evicted", map[string]any{"evicted": evicted})
	}
	return evicted
}

func copySeries(s PriceSeries) PriceSeries {
	s.Bars = append([]Bar(nil), s.Bars...)
	return s
}
