package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"jan-server/services/envchat-api/internal/domain/environment"
)

// MemoryCache is an in-process LRU of resolved environment lists with a TTL.
type MemoryCache struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex

	// purges and generations back Version; both only move forward.
	purges      uint64
	generations map[string]uint64
}

var _ environment.Cache = (*MemoryCache)(nil)

type cacheEntry struct {
	value     []*environment.Environment
	expiresAt time.Time
}

func NewMemoryCache(maxSize int, ttl time.Duration) (*MemoryCache, error) {
	cache, err := lru.New(maxSize)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{
		cache:       cache,
		ttl:         ttl,
		now:         time.Now,
		generations: map[string]uint64{},
	}, nil
}

func (c *MemoryCache) Get(_ context.Context, ownerID string) ([]*environment.Environment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, found := c.cache.Get(ownerID)
	if !found {
		return nil, false
	}
	entry := val.(cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.cache.Remove(ownerID)
		return nil, false
	}
	return append([]*environment.Environment(nil), entry.value...), true
}

func (c *MemoryCache) Version(_ context.Context, ownerID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versionLocked(ownerID)
}

func (c *MemoryCache) versionLocked(ownerID string) string {
	return strconv.FormatUint(c.purges, 10) + ":" + strconv.FormatUint(c.generations[ownerID], 10)
}

// Set drops the list when ownerID was invalidated or the cache purged after
// version was taken.
func (c *MemoryCache) Set(_ context.Context, ownerID, version string, environments []*environment.Environment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if version != c.versionLocked(ownerID) {
		return
	}
	c.cache.Add(ownerID, cacheEntry{
		value:     append([]*environment.Environment(nil), environments...),
		expiresAt: c.now().Add(c.ttl),
	})
}

func (c *MemoryCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[ownerID]++
	c.cache.Remove(ownerID)
	return nil
}

func (c *MemoryCache) Purge(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purges++
	c.generations = map[string]uint64{}
	c.cache.Purge()
	return nil
}
