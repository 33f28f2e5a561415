package rules

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// SnapshotCache keeps compiled rule snapshots per owner for a bounded time.
// Each owner has a generation that Invalidate advances, so a snapshot loaded
// before an invalidation is never stored after it.
type SnapshotCache struct {
	cache       *gocache.Cache
	generations map[string]uint64
	mu          sync.Mutex
}

// NewSnapshotCache creates a cache whose entries expire after ttl.
func NewSnapshotCache(ttl, cleanupInterval time.Duration) *SnapshotCache {
	return &SnapshotCache{
		cache:       gocache.New(ttl, cleanupInterval),
		generations: make(map[string]uint64),
	}
}

// Get returns the cached scorer for an owner.
func (c *SnapshotCache) Get(ownerID string) (*Scorer, bool) {
	if val, found := c.cache.Get(ownerID); found {
		return val.(*Scorer), true
	}
	return nil, false
}

// Generation returns the owner's current generation. Read it before loading
// rules and pass it to Set.
func (c *SnapshotCache) Generation(ownerID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[ownerID]
}

// Set stores the scorer for an owner with the default TTL, unless the owner
// was invalidated since generation was read. It reports whether it stored.
func (c *SnapshotCache) Set(ownerID string, generation uint64, scorer *Scorer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[ownerID] != generation {
		return false
	}
	c.cache.SetDefault(ownerID, scorer)
	return true
}

// Invalidate drops the owner's snapshot so the next evaluation reloads rules.
func (c *SnapshotCache) Invalidate(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[ownerID]++
	c.cache.Delete(ownerID)
}
