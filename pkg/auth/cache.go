package auth

import (
	"sync"
	"time"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

const (
	// DefaultCacheTTL is how long a verified identity stays usable
	// without re-verification.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheMaxEntries is the high-water mark that triggers a
	// full eviction pass on insert.
	DefaultCacheMaxEntries = 1000
)

type cacheEntry struct {
	identity Identity
	cachedAt time.Time
}

// TokenCache keeps recently verified identities keyed by raw bearer
// token so hot tokens skip the round trip to the identity provider.
// It is process-local and never a source of truth: losing it only
// costs re-verification.
type TokenCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	metrics    *observability.Metrics

	now func() time.Time
}

// NewTokenCache creates a token cache with the given TTL and high-water
// mark. Non-positive arguments fall back to the defaults.
func NewTokenCache(ttl time.Duration, maxEntries int) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &TokenCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// WithMetrics attaches Prometheus metrics. Safe to skip in tests.
func (c *TokenCache) WithMetrics(m *observability.Metrics) *TokenCache {
	c.metrics = m
	return c
}

// Get returns the cached identity for a token if present and fresh.
// Expired entries are removed on access.
func (c *TokenCache) Get(token string) (*Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		c.miss()
		return nil, false
	}
	if c.now().Sub(entry.cachedAt) >= c.ttl {
		delete(c.entries, token)
		c.evicted(1)
		c.miss()
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.TokenCacheHitsTotal.Inc()
	}
	identity := entry.identity
	return &identity, true
}

// Put stores a verified identity. When the cache exceeds its high-water
// mark it runs a full scan evicting every expired entry; the scan is
// O(n) over all entries, which is acceptable at the configured sizes.
func (c *TokenCache) Put(token string, identity Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[token] = cacheEntry{identity: identity, cachedAt: c.now()}

	if len(c.entries) > c.maxEntries {
		c.evictExpiredLocked()
	}
	if c.metrics != nil {
		c.metrics.TokenCacheSize.Set(float64(len(c.entries)))
	}
}

// Invalidate drops a single token, used on logout.
func (c *TokenCache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
}

// Cleanup removes every expired entry and reports how many were dropped.
func (c *TokenCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictExpiredLocked()
}

// Len returns the current number of entries, expired or not.
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartCleanup runs periodic cleanup until the context is cancelled.
func (c *TokenCache) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}

func (c *TokenCache) evictExpiredLocked() int {
	now := c.now()
	removed := 0
	for token, entry := range c.entries {
		if now.Sub(entry.cachedAt) >= c.ttl {
			delete(c.entries, token)
			removed++
		}
	}
	c.evicted(removed)
	if c.metrics != nil {
		c.metrics.TokenCacheSize.Set(float64(len(c.entries)))
	}
	return removed
}

func (c *TokenCache) miss() {
	if c.metrics != nil {
		c.metrics.TokenCacheMissesTotal.Inc()
	}
}

func (c *TokenCache) evicted(n int) {
	if c.metrics != nil && n > 0 {
		c.metrics.TokenCacheEvictionsTotal.Add(float64(n))
	}
}
