package cache

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/divyang-garg/docxtract/internal/docerrors"
	"github.com/divyang-garg/docxtract/internal/fingerprint"
	"github.com/divyang-garg/docxtract/internal/logging"
	"github.com/divyang-garg/docxtract/internal/model"
)

var (
	bucketResults = []byte("results")
	bucketAccess  = []byte("access")
	bucketMeta    = []byte("meta")
	keyTotalBytes = []byte("total_bytes")
)

// l2Store is the persistent on-disk tier (spec.md §4.2). It is backed by
// bbolt (pulled from laplaque-ai-anonymizing-proxy, which uses it as an
// embedded single-writer/multi-reader store for the same shape of
// problem: small records, process-local, survives restarts) rather than
// the teacher's one-JSON-file-per-key FileCache
// (internal/extraction/cache/file_cache.go), trading many small files
// for one db file with three buckets: results (key -> json blob),
// access (key -> last-access unix nanos), so eviction can pick the
// least-recently-accessed entry without a directory scan, and meta
// (the running total of stored payload bytes checked against the quota).
type l2Store struct {
	db       *bbolt.DB
	quotaB   int64
	log      logging.Logger
	hits     int64
	misses   int64
}

// OpenL2 opens (creating if absent) the bbolt-backed L2 store at dir/cache.db.
func OpenL2(dir string, quotaMB int, log logging.Logger) (*l2Store, error) {
	if log == nil {
		log = logging.Nop()
	}
	path := dir + "/cache.db"
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, docerrors.Wrap(docerrors.KindPersistence, "cache.OpenL2", "failed to open bbolt store", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketResults, bucketAccess, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, docerrors.Wrap(docerrors.KindPersistence, "cache.OpenL2", "failed to initialize buckets", err)
	}

	quota := int64(quotaMB) * 1024 * 1024
	if quota <= 0 {
		quota = 1024 * 1024 * 1024 // 1 GiB default
	}

	return &l2Store{db: db, quotaB: quota, log: log}, nil
}

func (s *l2Store) Close() error { return s.db.Close() }

// get returns the cached result, degrading to a miss (ok=false) on any
// I/O error or corrupt payload instead of failing the caller (spec.md
// §4.2 "L2 I/O errors degrade to L1-only ... Corrupt L2 entries are
// treated as misses and evicted").
func (s *l2Store) get(key fingerprint.Key) (*model.ExtractionResult, bool) {
	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload = tx.Bucket(bucketResults).Get([]byte(key))
		return nil
	})
	if err != nil || payload == nil {
		s.misses++
		return nil, false
	}

	var result model.ExtractionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		s.log.Warn("corrupt L2 entry, evicting", "key", string(key), "error", err.Error())
		_ = s.delete(key)
		s.misses++
		return nil, false
	}

	s.touch(key)
	s.hits++
	return &result, true
}

func (s *l2Store) touch(key fingerprint.Key) {
	_ = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccess).Put([]byte(key), encodeTime(time.Now()))
	})
}

// put stores value, idempotently, and enforces the disk quota by
// evicting least-recently-accessed entries when the store grows past
// its configured size.
func (s *l2Store) put(key fingerprint.Key, value *model.ExtractionResult) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return docerrors.Wrap(docerrors.KindInternal, "cache.put", "failed to marshal result", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		results := tx.Bucket(bucketResults)
		meta := tx.Bucket(bucketMeta)

		var sizeDelta int64
		if existing := results.Get([]byte(key)); existing != nil {
			sizeDelta = int64(len(payload)) - int64(len(existing))
		} else {
			sizeDelta = int64(len(payload))
		}

		if err := results.Put([]byte(key), payload); err != nil {
			return err
		}
		if err := tx.Bucket(bucketAccess).Put([]byte(key), encodeTime(time.Now())); err != nil {
			return err
		}
		return bumpTotal(meta, sizeDelta)
	})
	if err != nil {
		return docerrors.Wrap(docerrors.KindPersistence, "cache.put", "failed to write L2 entry", err)
	}

	s.evictIfOverQuota()
	return nil
}

func (s *l2Store) delete(key fingerprint.Key) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		results := tx.Bucket(bucketResults)
		if existing := results.Get([]byte(key)); existing != nil {
			if err := bumpTotal(tx.Bucket(bucketMeta), -int64(len(existing))); err != nil {
				return err
			}
		}
		if err := results.Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(bucketAccess).Delete([]byte(key))
	})
}

func (s *l2Store) totalBytes() int64 {
	var total int64
	_ = s.db.View(func(tx *bbolt.Tx) error {
		total = readTotal(tx.Bucket(bucketMeta))
		return nil
	})
	return total
}

func (s *l2Store) evictIfOverQuota() {
	for s.totalBytes() > s.quotaB {
		oldest, ok := s.oldestKey()
		if !ok {
			return
		}
		if err := s.delete(oldest); err != nil {
			s.log.Warn("failed to evict L2 entry", "key", string(oldest), "error", err.Error())
			return
		}
	}
}

func (s *l2Store) oldestKey() (fingerprint.Key, bool) {
	var oldest fingerprint.Key
	var oldestTime time.Time
	found := false

	_ = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAccess).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			t := decodeTime(v)
			if !found || t.Before(oldestTime) {
				oldest = fingerprint.Key(k)
				oldestTime = t
				found = true
			}
		}
		return nil
	})
	return oldest, found
}

func encodeTime(t time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	return b
}

func decodeTime(b []byte) time.Time {
	if len(b) != 8 {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(b)))
}

func bumpTotal(meta *bbolt.Bucket, delta int64) error {
	total := readTotal(meta) + delta
	if total < 0 {
		total = 0
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(total))
	return meta.Put(keyTotalBytes, b)
}

func readTotal(meta *bbolt.Bucket) int64 {
	v := meta.Get(keyTotalBytes)
	if len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}
