// Package cache implements the two-tier response cache (spec.md §4.2):
// L1 is an in-memory LRU, L2 is the bbolt-backed persistent store in
// l2.go. Lookup order is strictly L1 -> L2; a hit in L2 promotes the
// entry into L1. Writes populate both tiers and are idempotent.
package cache

import (
	"github.com/divyang-garg/docxtract/internal/fingerprint"
	"github.com/divyang-garg/docxtract/internal/logging"
	"github.com/divyang-garg/docxtract/internal/metrics"
	"github.com/divyang-garg/docxtract/internal/model"
)

// Stats reports cache tier counters (spec.md §4.2).
type Stats struct {
	L1Size    int
	L1Hits    int64
	L1Misses  int64
	L2Hits    int64
	L2Misses  int64
}

// Cache is the two-tier store the pipeline orchestrator consults first.
type Cache struct {
	l1  *l1Cache
	l2  *l2Store
	met *metrics.Registry
	log logging.Logger
}

// New builds a Cache with the given L1 capacity backed by an already
// opened L2 store (see OpenL2). met/log may be nil for tests.
func New(l1Capacity int, l2 *l2Store, met *metrics.Registry, log logging.Logger) *Cache {
	if log == nil {
		log = logging.Nop()
	}
	if met == nil {
		met = metrics.Noop()
	}
	return &Cache{l1: newL1Cache(l1Capacity), l2: l2, met: met, log: log}
}

// Get looks up key, checking L1 then L2. A hit in L2 is promoted to L1.
func (c *Cache) Get(key fingerprint.Key) (*model.ExtractionResult, model.Method, bool) {
	if v, ok := c.l1.get(key); ok {
		c.met.CacheHits.WithLabelValues("l1", "hit").Inc()
		return v, model.MethodCacheL1, true
	}
	c.met.CacheHits.WithLabelValues("l1", "miss").Inc()

	if c.l2 == nil {
		return nil, "", false
	}

	if v, ok := c.l2.get(key); ok {
		c.met.CacheHits.WithLabelValues("l2", "hit").Inc()
		c.l1.put(key, v) // promote
		return v, model.MethodCacheL2, true
	}
	c.met.CacheHits.WithLabelValues("l2", "miss").Inc()
	return nil, "", false
}

// Put writes value into both tiers. L2 failures are logged and demoted
// to L1-only (spec.md §7: persistence failures never fail a request).
func (c *Cache) Put(key fingerprint.Key, value *model.ExtractionResult) {
	c.l1.put(key, value)
	if c.l2 == nil {
		return
	}
	if err := c.l2.put(key, value); err != nil {
		c.log.Warn("L2 cache write failed, continuing with L1 only", "key", key.String(), "error", err.Error())
	}
}

// Stats reports current tier counters.
func (c *Cache) Stats() Stats {
	s := Stats{L1Size: c.l1.size(), L1Hits: c.l1.hits.Load(), L1Misses: c.l1.misses.Load()}
	if c.l2 != nil {
		s.L2Hits = c.l2.hits
		s.L2Misses = c.l2.misses
	}
	return s
}
