// Package cache keeps generated summaries in memory so repeated reads
// of the same patient do not re-run aggregation and model inference.
// Entries age rather than expire: a stale entry is still served, with
// staleness reported to the caller.
package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/praxisgate/go-handover/internal/domain/patient"
	"github.com/praxisgate/go-handover/internal/summary"
)

// StalenessThreshold is the age at which a cached summary is reported
// stale. Stale entries are never evicted automatically; a regenerate
// request replaces them.
const StalenessThreshold = 3600 * time.Second

// Entry is one cached summary with its provenance.
type Entry struct {
	Summary     summary.StructuredSummary
	Bundle      *patient.Bundle
	LegacyText  string
	Source      string // "database" or "bdt"
	GeneratedAt time.Time
}

// Snapshot is what Get returns: the entry plus derived staleness.
type Snapshot struct {
	Entry
	AgeSeconds int64
	IsStale    bool
}

// Cache is a mutex-guarded summary store keyed by patient identity.
// Keys are the decimal patient id, or "First_Last" for patients known
// only from an exchange file.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
	logger  *zap.Logger
}

// New creates an empty cache.
func New(logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries: make(map[string]Entry),
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock overrides the time source for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the cached summary for key if one exists.
func (c *Cache) Get(key string) (Snapshot, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	age := c.now().Sub(entry.GeneratedAt)
	return Snapshot{
		Entry:      entry,
		AgeSeconds: int64(age.Seconds()),
		IsStale:    age >= StalenessThreshold,
	}, true
}

// Put stores or replaces the entry for key, stamping the generation
// time from the cache clock.
func (c *Cache) Put(key string, entry Entry) {
	entry.GeneratedAt = c.now()
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	c.logger.Debug("summary cached", zap.String("key", key), zap.String("source", entry.Source))
}

// Invalidate removes the entry for key. Removing a missing key is not
// an error.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// ClearAll empties the cache and reports how many entries were dropped.
func (c *Cache) ClearAll() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]Entry)
	c.mu.Unlock()

	c.logger.Info("summary cache cleared", zap.Int("entries", n))
	return n
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns a snapshot of the cached keys.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
