// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the bounded in-memory response cache for the
// UrbanQuery pipeline.
//
// Entries are keyed by a deterministic fingerprint over (normalized
// question, context). Expiry is lazy (checked on read, never by a
// background sweep) and eviction is true LRU by last access time,
// triggered only when a write would exceed the configured capacity.
//
// The cache is deliberately process-local: losing it on restart costs
// one reasoning-engine call per warm query, nothing more.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "urbanquery",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "urbanquery",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses (absent or expired)",
	})

	cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "urbanquery",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total LRU evictions on insert at capacity",
	})

	cacheExpirationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "urbanquery",
		Subsystem: "cache",
		Name:      "expirations_total",
		Help:      "Total entries removed by lazy TTL expiry on read",
	})
)

// =============================================================================
// Defaults
// =============================================================================

// DefaultMaxSize bounds the cache when no explicit size is configured.
const DefaultMaxSize = 1000

// DefaultTTL is the default entry lifetime. One hour keeps answers fresh
// relative to the underlying indicator views, which update at most daily.
const DefaultTTL = time.Hour

// =============================================================================
// QueryCache
// =============================================================================

// entry is a single cached answer with its bookkeeping timestamps.
type entry struct {
	payload      any
	question     string
	createdAt    time.Time
	lastAccessed time.Time

	// elem points into the access-order list; front = most recently
	// accessed, back = eviction candidate.
	elem *list.Element
}

// QueryCache is a bounded mapping from (question, context) fingerprints
// to previously produced answers.
//
// # Description
//
// Semantics, in order of precedence:
//   - An entry older than TTL (since creation) is never returned; a read
//     that finds one removes it and reports a miss.
//   - A hit refreshes the entry's last-access time.
//   - A write at capacity evicts exactly one entry, the one with the
//     oldest last-access time, before inserting. Ties between equal
//     access times resolve to the older insertion (list order), which is
//     deterministic.
//   - The size never exceeds MaxSize, even under concurrent writes.
//
// # Thread Safety
//
// Safe for concurrent use. Every operation is atomic under a single
// mutex; the read-modify-write sequences (lazy expiry, access-time
// touch, eviction+insert) never interleave.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // access order; Value is the fingerprint string
	maxSize int
	ttl     time.Duration
	logger  *slog.Logger

	// now is the clock; replaced in tests to exercise TTL behavior
	// without sleeping.
	now func() time.Time
}

// Stats is a read-only snapshot of cache occupancy.
//
// Valid and Expired are computed by re-evaluating every entry's expiry
// predicate at call time; taking a Stats snapshot never mutates the
// cache (unlike the lazy-expiry path in Get).
type Stats struct {
	Total      int     `json:"total_entries"`
	Valid      int     `json:"valid_entries"`
	Expired    int     `json:"expired_entries"`
	MaxSize    int     `json:"max_size"`
	TTLSeconds float64 `json:"ttl_seconds"`
}

// New creates a QueryCache.
//
// # Inputs
//
//   - maxSize: Capacity bound. Values < 1 fall back to DefaultMaxSize.
//   - ttl: Entry lifetime. Values <= 0 fall back to DefaultTTL.
//   - logger: Logger for hit/miss/eviction diagnostics. May be nil.
//
// # Outputs
//
//   - *QueryCache: Ready-to-use cache. Never nil.
//
// # Thread Safety
//
// The returned cache is safe for concurrent use.
func New(maxSize int, ttl time.Duration, logger *slog.Logger) *QueryCache {
	if maxSize < 1 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryCache{
		entries: make(map[string]*entry),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Fingerprint derives the deterministic cache key for a question and
// context pair.
//
// # Description
//
// The question is normalized (lowercased, trimmed) before hashing; the
// context participates verbatim. Context is part of the identity, not a
// modifier: the same question under different contexts produces
// different keys. The digest is SHA-256, hex-encoded.
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func Fingerprint(question, context string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	sum := sha256.Sum256([]byte(normalized + "|" + context))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached payload for (question, context), or (nil, false)
// on a miss.
//
// # Description
//
// A lookup that finds an expired entry removes it as a side effect and
// reports a miss. A hit refreshes the entry's last-access time, moving
// it to the front of the eviction order.
//
// # Thread Safety
//
// Safe for concurrent use.
func (c *QueryCache) Get(question, context string) (any, bool) {
	key := Fingerprint(question, context)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}

	if c.now().Sub(e.createdAt) > c.ttl {
		c.removeLocked(key, e)
		cacheMissesTotal.Inc()
		cacheExpirationsTotal.Inc()
		c.logger.Debug("query cache: expired entry removed",
			slog.String("fingerprint", shortKey(key)),
		)
		return nil, false
	}

	e.lastAccessed = c.now()
	c.order.MoveToFront(e.elem)
	cacheHitsTotal.Inc()
	return e.payload, true
}

// Set inserts or overwrites the payload for (question, context).
//
// # Description
//
// An existing entry with the same fingerprint is overwritten in place
// (fresh creation time, fresh access time). If the cache is at capacity
// before a genuinely new insertion, the least recently accessed entry
// is evicted first, so the size bound holds at every
// instant.
//
// # Thread Safety
//
// Safe for concurrent use.
func (c *QueryCache) Set(question string, payload any, context string) {
	key := Fingerprint(question, context)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.payload = payload
		e.createdAt = c.now()
		e.lastAccessed = e.createdAt
		c.order.MoveToFront(e.elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	e := &entry{
		payload:      payload,
		question:     question,
		createdAt:    c.now(),
		lastAccessed: c.now(),
	}
	e.elem = c.order.PushFront(key)
	c.entries[key] = e
}

// Clear removes all entries unconditionally.
//
// # Thread Safety
//
// Safe for concurrent use. No partial-clear state is observable.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.order.Init()
	c.logger.Info("query cache cleared")
}

// GetStats returns a read-only occupancy snapshot.
//
// # Thread Safety
//
// Safe for concurrent use. Does not mutate cache state.
func (c *QueryCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	valid := 0
	for _, e := range c.entries {
		if now.Sub(e.createdAt) <= c.ttl {
			valid++
		}
	}

	return Stats{
		Total:      len(c.entries),
		Valid:      valid,
		Expired:    len(c.entries) - valid,
		MaxSize:    c.maxSize,
		TTLSeconds: c.ttl.Seconds(),
	}
}

// Len returns the current entry count. Exposed for the size-bound
// invariant checks in tests and the debug endpoint.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// =============================================================================
// Internal
// =============================================================================

// evictOldestLocked removes the entry with the oldest last-access time.
// Caller must hold c.mu.
//
// The access-order list makes the victim its back element; entries with
// equal access times keep list order, so ties resolve deterministically
// to the older insertion.
func (c *QueryCache) evictOldestLocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	e := c.entries[key]
	c.removeLocked(key, e)
	cacheEvictionsTotal.Inc()
	c.logger.Debug("query cache: evicted least recently used entry",
		slog.String("fingerprint", shortKey(key)),
		slog.Int("size", len(c.entries)),
	)
}

// removeLocked deletes an entry from both the map and the order list.
// Caller must hold c.mu.
func (c *QueryCache) removeLocked(key string, e *entry) {
	if e != nil && e.elem != nil {
		c.order.Remove(e.elem)
	}
	delete(c.entries, key)
}

// shortKey truncates a fingerprint for log display.
func shortKey(k string) string {
	if len(k) > 8 {
		return k[:8] + "..."
	}
	return k
}
