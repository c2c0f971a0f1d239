// Package cache implements the Cache Manager (component E): three logical
// caches (response, query-result, fingerprint interning) over one shared
// L1 (in-process) / L2 (Redis) primitive, with pluggable eviction
// policies, single-flight stampede prevention, and optional compression.
package cache

import "time"

// Entry is the unit stored in both L1 and L2. Value already carries any
// compression applied by the Manager before it reaches either layer, so
// L1 and L2 are opaque byte stores that only need to track metadata.
type Entry struct {
	Value       []byte
	Size        int64
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastAccess  time.Time
	AccessCount int64
	Compressed  bool
	// Encrypted marks whether an encryption transform was applied after
	// compression. No endpoint in this service requires encrypted cache
	// payloads yet, so this is always false today; it exists so a future
	// AES-GCM transform has a place to record itself without widening the
	// Entry shape (see DESIGN.md's Open Question resolution).
	Encrypted bool
}

// Expired reports whether the entry is past its TTL at t.
func (e *Entry) Expired(t time.Time) bool {
	return t.After(e.ExpiresAt)
}

// touch records an access for LFU/hybrid scoring and LRU recency.
func (e *Entry) touch(now time.Time) {
	e.AccessCount++
	e.LastAccess = now
}
