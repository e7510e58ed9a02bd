// Package fingerprint derives the stable, content-addressed cache key
// used by the cache and the singleflight coordinator (spec.md §4.1).
// It generalizes the teacher's generateCacheKey (internal/extraction/
// extractor.go, a bare sha256 over a fixed string) to the three-part
// (pdf bytes, label, schema) input the spec requires, using xxhash for
// the final fold since spec.md explicitly allows "any fast
// non-cryptographic hash".
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"

	"github.com/divyang-garg/docxtract/internal/model"
)

// Key is a 128-bit (32 hex char) content-addressed cache/singleflight key.
type Key string

// Compute derives the fingerprint for a request. The same bytes+label+
// schema always yields the same Key; reordering schema keys does not
// change it, because model.Schema.Canonical sorts field names first.
func Compute(pdfBytes []byte, label string, schema model.Schema) Key {
	contentHash := sha256.Sum256(pdfBytes)

	h := xxhash.New()
	h.Write(contentHash[:])
	h.WriteString("\x00")
	h.WriteString(label)
	h.WriteString("\x00")
	h.WriteString(schema.Canonical())
	low := h.Sum64()

	// Fold a second, salted xxhash pass over the same material to reach
	// 128 bits of key space, matching the "128-bit content-addressed
	// key" requirement without re-hashing the whole PDF twice.
	h2 := xxhash.New()
	h2.WriteString("docxtract-fingerprint-v1\x00")
	h2.Write(contentHash[:])
	h2.WriteString(label)
	h2.WriteString(schema.Canonical())
	high := h2.Sum64()

	var buf [16]byte
	putUint64(buf[:8], high)
	putUint64(buf[8:], low)
	return Key(hex.EncodeToString(buf[:]))
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// String satisfies fmt.Stringer for logging.
func (k Key) String() string { return string(k) }
