// Package cache keeps the most recent record seen for each ABN so the API
// can answer lookups without a new run.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/charitybot/models"
)

type entry struct {
	record   models.CharityRecord
	storedAt time.Time
}

// Cache maps ABN to its latest record. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries records, each valid for
// ttl (zero ttl never expires).
func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: max(1, maxEntries),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the latest unexpired record for abn and when it was stored.
func (c *Cache) Get(abn string) (models.CharityRecord, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.store[abn]
	c.mu.RUnlock()

	if !ok || c.expired(e) {
		return models.CharityRecord{}, time.Time{}, false
	}
	return e.record, e.storedAt, true
}

// Set stores rec as the latest for its ABN. At capacity an arbitrary entry
// is evicted first.
func (c *Cache) Set(rec models.CharityRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[rec.ABN]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[rec.ABN] = &entry{record: rec, storedAt: c.now()}
}

// Write lets the cache sit behind a dispatcher as a results.Sink.
func (c *Cache) Write(rec models.CharityRecord) error {
	c.Set(rec)
	return nil
}

// Len returns the number of stored records, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Sweep removes expired entries every interval until ctx is done.
func (c *Cache) Sweep(ctx context.Context, interval time.Duration) {
	if c.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if c.expired(e) {
			delete(c.store, k)
		}
	}
}

func (c *Cache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl
}
