package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// L1Cache is the in-process layer. Under the LRU policy it is a thin
// wrapper over hashicorp/golang-lru/v2's expirable generic LRU, which
// gives bounded-size + TTL eviction for free instead of the hand-rolled
// map-and-mutex sweep the teacher package used. Every other policy needs
// a scoring pass the library doesn't implement, so those fall back to a
// plain ledger guarded by an evictor strategy.
type L1Cache struct {
	policy EvictionPolicy

	lru *expirable.LRU[string, *Entry]

	mu         sync.RWMutex
	entries    map[string]*Entry
	evictor    evictor
	maxEntries int
	maxBytes   int64
	sizeBytes  int64
	defaultTTL time.Duration
}

// NewL1Cache builds the in-process layer for the given policy. maxEntries
// and maxSizeBytes bound both paths: the library enforces maxEntries on the
// LRU path, and Set evicts the oldest LRU entries itself to stay within
// maxSizeBytes (the library has no byte-size awareness).
func NewL1Cache(policy EvictionPolicy, maxEntries int, maxSizeBytes int64, defaultTTL time.Duration) *L1Cache {
	c := &L1Cache{
		policy:     policy,
		maxEntries: maxEntries,
		maxBytes:   maxSizeBytes,
		defaultTTL: defaultTTL,
	}
	if policy == PolicyLRU {
		c.lru = expirable.NewLRU[string, *Entry](maxEntries, nil, defaultTTL)
		return c
	}
	c.entries = make(map[string]*Entry, maxEntries)
	c.evictor = newEvictor(policy)
	return c
}

// Get returns the entry for key if present and unexpired, touching its
// access metadata for LFU/hybrid scoring and LRU recency.
func (c *L1Cache) Get(key string) (*Entry, bool) {
	now := time.Now()
	if c.lru != nil {
		e, ok := c.lru.Get(key)
		if !ok {
			return nil, false
		}
		if e.Expired(now) {
			c.lru.Remove(key)
			return nil, false
		}
		e.touch(now)
		return e, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.Expired(now) {
		delete(c.entries, key)
		c.sizeBytes -= e.Size
		return nil, false
	}
	e.touch(now)
	return e, true
}

// Set stores an entry, evicting by the configured policy when a bound
// would otherwise be violated.
func (c *L1Cache) Set(key string, entry *Entry) {
	if c.lru != nil {
		if c.maxBytes > 0 {
			c.lru.Remove(key)
			for c.lru.Len() > 0 && c.SizeBytes()+entry.Size > c.maxBytes {
				if _, _, ok := c.lru.RemoveOldest(); !ok {
					break
				}
			}
		}
		c.lru.Add(key, entry)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		c.sizeBytes -= old.Size
	}
	for (c.maxEntries > 0 && len(c.entries) >= c.maxEntries) ||
		(c.maxBytes > 0 && c.sizeBytes+entry.Size > c.maxBytes) {
		victim, ok := c.evictor.selectVictim(c.entries)
		if !ok {
			break
		}
		c.sizeBytes -= c.entries[victim].Size
		delete(c.entries, victim)
	}
	c.entries[key] = entry
	c.sizeBytes += entry.Size
}

// Delete removes key unconditionally.
func (c *L1Cache) Delete(key string) {
	if c.lru != nil {
		c.lru.Remove(key)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.sizeBytes -= e.Size
		delete(c.entries, key)
	}
}

// DeletePrefix removes every key sharing the given prefix, used by the
// watcher's targeted invalidation (scope/kind/path-prefix matching).
func (c *L1Cache) DeletePrefix(prefix string) int {
	removed := 0
	for _, key := range c.Keys() {
		if hasPrefix(key, prefix) {
			c.Delete(key)
			removed++
		}
	}
	return removed
}

// Keys returns a snapshot of all currently tracked keys.
func (c *L1Cache) Keys() []string {
	if c.lru != nil {
		return c.lru.Keys()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	return out
}

// Len reports the current entry count.
func (c *L1Cache) Len() int {
	if c.lru != nil {
		return c.lru.Len()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SizeBytes reports tracked byte usage. Under the LRU policy this is an
// approximation summed on demand since the library doesn't track it.
func (c *L1Cache) SizeBytes() int64 {
	if c.lru != nil {
		var total int64
		for _, k := range c.lru.Keys() {
			if e, ok := c.lru.Peek(k); ok {
				total += e.Size
			}
		}
		return total
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sizeBytes
}

// Purge clears the layer entirely.
func (c *L1Cache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry, c.maxEntries)
	c.sizeBytes = 0
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
