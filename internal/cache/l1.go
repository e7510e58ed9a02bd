package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/divyang-garg/docxtract/internal/fingerprint"
	"github.com/divyang-garg/docxtract/internal/model"
)

// l1Cache is the in-memory LRU tier (spec.md §4.2). Capacity defaults to
// 100 entries. Get only takes the read lock, matching the teacher's own
// lock discipline in internal/extraction/memory_cache.go where reads
// never block other readers; recency is tracked with an atomic
// per-entry timestamp instead of relinking a list, so Get genuinely
// needs no write lock.
type l1Cache struct {
	mu       sync.RWMutex
	entries  map[fingerprint.Key]*l1Entry
	capacity int

	hits   atomic.Int64
	misses atomic.Int64
}

type l1Entry struct {
	value      *model.ExtractionResult
	lastAccess atomic.Int64 // unix nanos
}

func newL1Cache(capacity int) *l1Cache {
	if capacity <= 0 {
		capacity = 100
	}
	return &l1Cache{
		entries:  make(map[fingerprint.Key]*l1Entry),
		capacity: capacity,
	}
}

func (c *l1Cache) get(key fingerprint.Key) (*model.ExtractionResult, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	e.lastAccess.Store(time.Now().UnixNano())
	c.hits.Add(1)
	return e.value, true
}

// put inserts or refreshes key, evicting the least-recently-used entry
// if the cache is at capacity. The new entry is always the MRU.
func (c *l1Cache) put(key fingerprint.Key, value *model.ExtractionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.value = value
		existing.lastAccess.Store(time.Now().UnixNano())
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictLocked()
	}

	e := &l1Entry{value: value}
	e.lastAccess.Store(time.Now().UnixNano())
	c.entries[key] = e
}

// evictLocked removes the entry with the oldest lastAccess. Caller must
// hold c.mu for writing.
func (c *l1Cache) evictLocked() {
	var oldestKey fingerprint.Key
	var oldestTime int64
	first := true

	for k, e := range c.entries {
		t := e.lastAccess.Load()
		if first || t < oldestTime {
			oldestKey = k
			oldestTime = t
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

func (c *l1Cache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
