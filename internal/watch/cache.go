package watch

import (
	"container/list"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// Cache is a sharded, TTL-expiring LRU cache shared by every watcher for
// its private Target Snapshots: token last-price, wallet last-seen
// block/balance, and the tx_seen and airdrop seen-alert dedup sets.
// Grounded on the sharded RWMutex+list.List design from the
// go-concurrency cache exercise, generalized from interface{} values to
// a type parameter and from a single shard count to a caller-chosen one
// (these caches are sized per watcher, not at the 256-shard scale a
// process-wide cache needs).
type Cache[K comparable, V any] struct {
	shards  []*shard[V]
	ttl     time.Duration
	maxSize int

	done chan struct{}
	wg   sync.WaitGroup
}

type shard[V any] struct {
	mu      sync.RWMutex
	items   map[string]*entry[V]
	lru     *list.List
	maxSize int
}

type entry[V any] struct {
	key     string
	value   V
	expires time.Time
	element *list.Element
}

// NewCache builds a cache with numShards shards, each holding up to
// maxSize/numShards entries, expiring entries after ttl. A background
// goroutine sweeps expired entries every cleanupInterval; Close stops it.
func NewCache[K comparable, V any](numShards, maxSize int, ttl, cleanupInterval time.Duration) *Cache[K, V] {
	if numShards <= 0 {
		numShards = 16
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	perShard := maxSize / numShards
	if perShard <= 0 {
		perShard = 1
	}

	c := &Cache[K, V]{
		shards: make([]*shard[V], numShards),
		ttl:    ttl,
		done:   make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard[V]{
			items:   make(map[string]*entry[V]),
			lru:     list.New(),
			maxSize: perShard,
		}
	}

	if cleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

func (c *Cache[K, V]) keyString(key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return fmt.Sprintf("%v", key)
}

func (c *Cache[K, V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Set stores value under key with the cache's default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL. ttl <= 0 means
// the entry never expires on its own (still subject to LRU eviction).
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	ks := c.keyString(key)
	s := c.shardFor(ks)

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[ks]; ok {
		e.value = value
		e.expires = expires
		s.lru.MoveToFront(e.element)
		return
	}

	if s.lru.Len() >= s.maxSize {
		if oldest := s.lru.Back(); oldest != nil {
			old := oldest.Value.(*entry[V])
			delete(s.items, old.key)
			s.lru.Remove(oldest)
		}
	}

	e := &entry[V]{key: ks, value: value, expires: expires}
	e.element = s.lru.PushFront(e)
	s.items[ks] = e
}

// Get returns the value stored under key, if present and unexpired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	ks := c.keyString(key)
	s := c.shardFor(ks)

	s.mu.RLock()
	e, ok := s.items[ks]
	if !ok {
		s.mu.RUnlock()
		return zero, false
	}
	expired := !e.expires.IsZero() && time.Now().After(e.expires)
	s.mu.RUnlock()
	if expired {
		s.mu.Lock()
		if e2, ok := s.items[ks]; ok {
			delete(s.items, ks)
			s.lru.Remove(e2.element)
		}
		s.mu.Unlock()
		return zero, false
	}

	s.mu.Lock()
	s.lru.MoveToFront(e.element)
	value := e.value
	s.mu.Unlock()
	return value, true
}

// Seen reports whether key is already cached, marking it present for
// ttl if it wasn't. Used by the tx_seen dedup sets: a single call
// replaces the check-then-set pair the watchers would otherwise need.
func (c *Cache[K, V]) Seen(key K) bool {
	if _, ok := c.Get(key); ok {
		return true
	}
	var zero V
	c.Set(key, zero)
	return false
}

// Delete removes key from the cache, if present.
func (c *Cache[K, V]) Delete(key K) {
	ks := c.keyString(key)
	s := c.shardFor(ks)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[ks]; ok {
		delete(s.items, ks)
		s.lru.Remove(e.element)
	}
}

func (c *Cache[K, V]) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache[K, V]) sweep() {
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.items {
			if !e.expires.IsZero() && now.After(e.expires) {
				delete(s.items, key)
				s.lru.Remove(e.element)
			}
		}
		s.mu.Unlock()
	}
}

// Close stops the background cleanup goroutine.
func (c *Cache[K, V]) Close() {
	close(c.done)
	c.wg.Wait()
}
