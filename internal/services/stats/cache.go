package stats

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"scenereview/internal/models"
)

// SceneRefresher recomputes a scene snapshot on cache misses.
type SceneRefresher interface {
	RefreshScene(ctx context.Context, sceneID int64) (*models.SceneSnapshot, error)
}

// cacheEntry holds one scene's snapshot together with the time it was
// cached; expiry is computed from that stored time, never from the
// caller's clock.
type cacheEntry struct {
	sceneID  int64
	snap     *models.SceneSnapshot
	cachedAt time.Time
}

// Cache is a bounded TTL read cache in front of the refresh coordinator,
// keyed by scene id with LRU eviction. When a refresh fails it serves
// the last-known-good snapshot if one exists.
type Cache struct {
	refresher SceneRefresher
	ttl       time.Duration
	capacity  int

	mu      sync.Mutex
	ll      *list.List
	entries map[int64]*list.Element

	now    func() time.Time
	logger zerolog.Logger
}

// NewCache creates a statistics cache with the given TTL window and
// maximum number of cached scenes.
func NewCache(refresher SceneRefresher, ttl time.Duration, capacity int, logger zerolog.Logger) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		refresher: refresher,
		ttl:       ttl,
		capacity:  capacity,
		ll:        list.New(),
		entries:   make(map[int64]*list.Element),
		now:       time.Now,
		logger:    logger.With().Str("service", "stats-cache").Logger(),
	}
}

// Get returns the scene's snapshot, serving from memory within the TTL
// window and refreshing synchronously on a miss or expiry.
func (c *Cache) Get(ctx context.Context, sceneID int64) (*models.SceneSnapshot, error) {
	c.mu.Lock()
	var stale *models.SceneSnapshot
	if el, ok := c.entries[sceneID]; ok {
		entry := el.Value.(*cacheEntry)
		if c.now().Sub(entry.cachedAt) < c.ttl {
			c.ll.MoveToFront(el)
			snap := entry.snap
			c.mu.Unlock()
			return snap, nil
		}
		stale = entry.snap
	}
	c.mu.Unlock()

	// The refresh runs outside the cache lock; the coordinator already
	// collapses concurrent refreshes for the same scene.
	snap, err := c.refresher.RefreshScene(ctx, sceneID)
	if err != nil {
		if stale != nil {
			c.logger.Warn().Err(err).Int64("scene_id", sceneID).Msg("refresh failed, serving stale snapshot")
			return stale, nil
		}
		return nil, err
	}

	c.put(sceneID, snap)
	return snap, nil
}

// Invalidate drops the cached snapshot for a scene, forcing the next
// read to refresh. Called after review transitions.
func (c *Cache) Invalidate(sceneID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[sceneID]; ok {
		c.ll.Remove(el)
		delete(c.entries, sceneID)
	}
}

// Len returns the number of cached scenes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) put(sceneID int64, snap *models.SceneSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[sceneID]; ok {
		entry := el.Value.(*cacheEntry)
		entry.snap = snap
		entry.cachedAt = c.now()
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{sceneID: sceneID, snap: snap, cachedAt: c.now()})
	c.entries[sceneID] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry)
		c.ll.Remove(oldest)
		delete(c.entries, evicted.sceneID)
		c.logger.Debug().Int64("scene_id", evicted.sceneID).Msg("evicted least recently used snapshot")
	}
}
