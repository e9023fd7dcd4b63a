package storage

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"lens_gateway/internal/models"
)

type cachedProvider struct {
	provider  *models.Provider
	expiresAt time.Time
}

// CachedStore keeps recently read providers in an LRU with a TTL, in front of
// a slower registry such as PostgreSQL. Lookups that fail are not cached.
type CachedStore struct {
	next  ProviderStore
	cache *lru.Cache[string, *cachedProvider]
	ttl   time.Duration
	now   func() time.Time

	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewCachedStore wraps next. A non-positive capacity or ttl returns next
// unchanged.
func NewCachedStore(next ProviderStore, capacity int, ttl time.Duration) ProviderStore {
	if capacity <= 0 || ttl <= 0 {
		return next
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, *cachedProvider](capacity)
	return &CachedStore{
		next:     next,
		cache:    cache,
		ttl:      ttl,
		now:      time.Now,
		capacity: capacity,
	}
}

// GetByID serves from the cache when the entry is fresh
func (c *CachedStore) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	if p, ok := c.get(id); ok {
		return p, nil
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	cp := *p
	c.cache.Add(id, &cachedProvider{provider: &cp, expiresAt: c.now().Add(c.ttl)})
	return p, nil
}

// List always reads through
func (c *CachedStore) List(ctx context.Context) ([]*models.Provider, error) {
	return c.next.List(ctx)
}

// Purge drops every cached provider
func (c *CachedStore) Purge() {
	c.cache.Purge()
}

// CacheStats reports cache occupancy and hit counts
type CacheStats struct {
	Capacity int
	Size     int
	TTL      time.Duration
	Hits     uint64
	Misses   uint64
}

// Stats returns current cache statistics
func (c *CachedStore) Stats() CacheStats {
	return CacheStats{
		Capacity: c.capacity,
		Size:     c.cache.Len(),
		TTL:      c.ttl,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

func (c *CachedStore) get(id string) (*models.Provider, bool) {
	entry, ok := c.cache.Get(id)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if c.now().After(entry.expiresAt) {
		c.cache.Remove(id)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	cp := *entry.provider
	return &cp, true
}
