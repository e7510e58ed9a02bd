package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/divyang-garg/docxtract/internal/fingerprint"
	"github.com/divyang-garg/docxtract/internal/logging"
)

func TestL2Store_PutGet_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	l2, err := OpenL2(dir, 1024, logging.Nop())
	require.NoError(t, err)
	defer l2.Close()

	key := fingerprint.Key("k1")
	require.NoError(t, l2.put(key, sampleResult("Maria")))

	got, ok := l2.get(key)
	require.True(t, ok)
	require.Equal(t, "Maria", *got.Data["nome"])
}

func TestL2Store_EvictsLeastRecentlyAccessedOverQuota(t *testing.T) {
	dir := t.TempDir()
	// A tiny quota forces eviction after a couple of entries.
	l2, err := OpenL2(dir, 0, logging.Nop())
	require.NoError(t, err)
	l2.quotaB = 200
	defer l2.Close()

	require.NoError(t, l2.put("k1", sampleResult("a")))
	_, _ = l2.get("k1") // touched before k2 is written, so k1 is still the least recently accessed
	require.NoError(t, l2.put("k2", sampleResult("b")))
	require.NoError(t, l2.put("k3", sampleResult("c")))

	// With a 200-byte quota and three ~small JSON blobs written, at
	// least one of the earliest entries must have been evicted.
	_, k1ok := l2.get("k1")
	_, k2ok := l2.get("k2")
	_, k3ok := l2.get("k3")
	require.True(t, k3ok, "most recently written entry must survive")
	require.False(t, k1ok && k2ok, "quota eviction must have reclaimed at least one older entry")
}

func TestL2Store_CorruptEntryTreatedAsMiss(t *testing.T) {
	dir := t.TempDir()
	l2, err := OpenL2(dir, 1024, logging.Nop())
	require.NoError(t, err)
	defer l2.Close()

	require.NoError(t, l2.put("k1", sampleResult("a")))

	// Tamper with the stored payload directly to simulate on-disk corruption.
	require.NoError(t, l2.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResults).Put([]byte("k1"), []byte("{not-json"))
	}))

	_, ok := l2.get("k1")
	require.False(t, ok, "corrupt entries must be treated as misses")

	// And it must have been evicted, not merely ignored.
	require.NoError(t, l2.db.View(func(tx *bbolt.Tx) error {
		require.Nil(t, tx.Bucket(bucketResults).Get([]byte("k1")))
		return nil
	}))
}
