// Package viewcache keeps Link Registry read views fresh after writes.
//
// The registry serves two read views per content item: "links for source X"
// and "links for target Y". This package provides:
//
//   - Key: the canonical identity of one read view
//   - Cache: a thread-safe LRU + TTL cache of view results that also acts
//     as a StaleSink
//   - Coordinator: computes the correct and minimal invalidation set from a
//     batch of written links and fires the sink once per batch
//
// Invalidation is idempotent (marking the same key stale twice has no
// effect beyond the first) and batched, so a strategy run that writes N
// links costs O(distinct keys), not O(N) sink calls.
//
// Usage:
//
//	cache := viewcache.NewCache(1000, 5*time.Minute)
//	coordinator := viewcache.NewCoordinator(cache)
//
//	// Read path
//	if links, ok := cache.Get(viewcache.SourceKey(ref)); ok {
//		return links // cache hit
//	}
//	links, _ := store.ListBySource(ctx, ref.Type, ref.ID)
//	cache.Put(viewcache.SourceKey(ref), links)
//
//	// Write path, once per batch
//	coordinator.InvalidateLinks(created)
package viewcache

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geofora/forumlink/pkg/content"
	"github.com/geofora/forumlink/pkg/registry"
)

// View names the two registry read views.
type View string

const (
	// ViewSource is the "links for source X" view.
	ViewSource View = "source"
	// ViewTarget is the "links for target Y" view.
	ViewTarget View = "target"
)

// Key identifies one cached read view.
type Key struct {
	View View
	Ref  content.Ref
}

// SourceKey returns the by-source view key for a content item.
func SourceKey(ref content.Ref) Key {
	return Key{View: ViewSource, Ref: ref}
}

// TargetKey returns the by-target view key for a content item.
func TargetKey(ref content.Ref) Key {
	return Key{View: ViewTarget, Ref: ref}
}

// String returns the canonical "view/type:id" encoding.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.View, k.Ref)
}

// StaleSink receives invalidation batches.
//
// Implementations must be idempotent: marking an already-stale (or absent)
// key again has no additional effect.
type StaleSink interface {
	MarkStale(keys []Key)
}

// Coordinator turns a batch of registry writes into one minimal
// invalidation.
//
// For each written link both endpoints go stale in both affected views: the
// source's by-source view and the target's by-target view. Duplicate keys
// across the batch collapse to one entry, and the sink fires exactly once
// per InvalidateLinks call.
type Coordinator struct {
	sink StaleSink
}

// NewCoordinator creates a Coordinator over the given sink.
func NewCoordinator(sink StaleSink) *Coordinator {
	return &Coordinator{sink: sink}
}

// InvalidateLinks computes the distinct view keys affected by links and
// fires the sink once. A nil or empty batch is a no-op.
func (c *Coordinator) InvalidateLinks(links []*registry.Interlink) {
	keys := AffectedKeys(links)
	if len(keys) == 0 {
		return
	}
	c.sink.MarkStale(keys)
}

// AffectedKeys returns the distinct view keys a batch of writes touches,
// in first-seen order.
func AffectedKeys(links []*registry.Interlink) []Key {
	seen := make(map[Key]struct{}, len(links)*2)
	keys := make([]Key, 0, len(links)*2)

	add := func(k Key) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	for _, link := range links {
		if link == nil {
			continue
		}
		add(SourceKey(link.Source()))
		add(TargetKey(link.Target()))
	}
	return keys
}

// Cache is a thread-safe LRU cache of read-view results with TTL expiry.
//
// The cache uses:
//   - Hash map for O(1) lookups
//   - Doubly-linked list for LRU ordering
//   - TTL for automatic expiration
//
// It implements StaleSink, so it can sit directly behind a Coordinator.
type Cache struct {
	mu sync.RWMutex

	maxSize int
	ttl     time.Duration

	list  *list.List
	items map[Key]*list.Element

	hits   uint64
	misses uint64
}

// cacheEntry holds one cached view with metadata.
type cacheEntry struct {
	key       Key
	links     []*registry.Interlink
	expiresAt time.Time
}

// NewCache creates a view cache.
//
// Parameters:
//   - maxSize: maximum number of cached views (LRU eviction when exceeded;
//     <= 0 uses 1000)
//   - ttl: time-to-live per entry (0 = no expiration)
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		list:    list.New(),
		items:   make(map[Key]*list.Element, maxSize),
	}
}

// Get retrieves a cached view if present and not expired.
//
// Returns (links, true) on hit, (nil, false) on miss. Moves the entry to
// the front of the LRU list on hit.
func (c *Cache) Get(key Key) ([]*registry.Interlink, bool) {
	// Entry fields are mutated in place by Put, so they must only be read
	// while the lock is held.
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)

	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.mu.Unlock()
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	c.list.MoveToFront(elem)
	links := entry.links
	c.mu.Unlock()

	atomic.AddUint64(&c.hits, 1)
	return links, true
}

// Put caches a view result. An existing entry for the key is replaced.
func (c *Cache) Put(key Key, links []*registry.Interlink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.links = links
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry{key: key, links: links}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.items[key] = c.list.PushFront(entry)
}

// MarkStale drops the given views from the cache. Implements StaleSink.
// Marking an absent key is a no-op, which makes invalidation idempotent.
func (c *Cache) MarkStale(keys []Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if elem, ok := c.items[key]; ok {
			c.removeElement(elem)
		}
	}
}

// Len returns the number of cached views.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list.Len()
}

// Stats returns cache hit/miss counters.
func (c *Cache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := c.list.Len()
	c.mu.RUnlock()

	return Stats{Size: size, MaxSize: c.maxSize, Hits: hits, Misses: misses}
}

// Stats holds cache performance counters.
type Stats struct {
	Size    int    `json:"size"`
	MaxSize int    `json:"max_size"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *Cache) evictOldest() {
	if elem := c.list.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element. Caller holds the lock.
func (c *Cache) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}
