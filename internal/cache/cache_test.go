package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/divyang-garg/docxtract/internal/fingerprint"
	"github.com/divyang-garg/docxtract/internal/model"
)

func strPtr(s string) *string { return &s }

func sampleResult(v string) *model.ExtractionResult {
	return &model.ExtractionResult{
		Success: true,
		Data:    map[string]*string{"nome": strPtr(v)},
		Metadata: model.Metadata{
			Method: model.MethodLLM,
		},
	}
}

func TestCache_PutThenGet_IsIdempotent(t *testing.T) {
	c := New(10, nil, nil, nil)
	key := fingerprint.Key("abc")

	c.Put(key, sampleResult("João"))
	got, method, ok := c.Get(key)

	require.True(t, ok)
	require.Equal(t, model.MethodCacheL1, method)
	require.Equal(t, "João", *got.Data["nome"])

	// Re-put with the same key must not change the stored data.
	c.Put(key, sampleResult("João"))
	got2, _, _ := c.Get(key)
	require.Equal(t, *got.Data["nome"], *got2.Data["nome"])
}

func TestCache_Get_MissWhenAbsent(t *testing.T) {
	c := New(10, nil, nil, nil)
	_, _, ok := c.Get(fingerprint.Key("nope"))
	require.False(t, ok)
}

func TestL1Cache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, nil, nil, nil)

	c.Put("k1", sampleResult("a"))
	c.Put("k2", sampleResult("b"))

	// Touch k1 so it becomes more recently used than k2.
	_, _, _ = c.Get("k1")

	// Capacity is 2; inserting a third key must evict the LRU entry (k2).
	c.Put("k3", sampleResult("c"))

	_, _, k1ok := c.Get("k1")
	_, _, k2ok := c.Get("k2")
	_, _, k3ok := c.Get("k3")

	require.True(t, k1ok, "k1 was touched most recently and must survive")
	require.False(t, k2ok, "k2 is the LRU entry and must be evicted")
	require.True(t, k3ok, "k3 is newly inserted and must be the MRU entry")
}

func TestCache_Stats_TracksHitsAndMisses(t *testing.T) {
	c := New(10, nil, nil, nil)
	c.Put("k1", sampleResult("a"))

	_, _, _ = c.Get("k1")
	_, _, _ = c.Get("missing")

	stats := c.Stats()
	require.Equal(t, 1, stats.L1Size)
	require.Equal(t, int64(1), stats.L1Hits)
	require.Equal(t, int64(1), stats.L1Misses)
}
