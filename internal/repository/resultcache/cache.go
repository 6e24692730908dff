package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/db"
	"github.com/quarryhq/quarry/internal/domain"
)

// store is the consumer interface for the result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, keys ...string) (int, error)
}

// unscopedTag is the key segment used when a search names no scope.
const unscopedTag = "global"

// Cache stores final search results in Redis, keyed by query, scope, limit
// and caller identity. The scope is hashed into its own key segment so that
// invalidation can pattern-delete exactly one scope's entries.
type Cache struct {
	store      store
	prefix     string
	baseTTL    time.Duration
	maxTTL     time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a result cache. cacheTotal is a counter vec with label
// "result" ("hit"/"miss"), passed explicitly.
func New(
	s store,
	keyPrefix string,
	baseTTL, maxTTL time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Cache {
	return &Cache{
		store:      s,
		prefix:     keyPrefix + "search:",
		baseTTL:    baseTTL,
		maxTTL:     maxTTL,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Key derives the cache key. Caller identity is part of the hash: two tenants
// issuing the same query string must never share an entry.
func (c *Cache) Key(query, scope string, limit int, identity string) string {
	payload := query + "\x1f" + scope + "\x1f" + strconv.Itoa(limit) + "\x1f" + identity
	sum := sha256.Sum256([]byte(payload))
	return c.prefix + scopeTag(scope) + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached result list for a key, counting a hit or miss.
// Unreadable or undecodable entries degrade to a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]domain.Chunk, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read result cache", zap.String("key", key), zap.Error(err))
		}
		c.incCache("miss")
		return nil, false
	}

	var results []domain.Chunk
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("Failed to decode cached result", zap.String("key", key), zap.Error(err))
		c.incCache("miss")
		return nil, false
	}

	c.incCache("hit")
	return results, true
}

// Put writes a result list best-effort. The returned error is informational;
// a failed write never fails the search that produced the results.
func (c *Cache) Put(ctx context.Context, key, query string, results []domain.Chunk) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	ttl := c.TTLFor(len(results), len(query))
	if err := c.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("write result cache: %w", err)
	}
	return nil
}

// TTLFor computes a dynamic TTL: many results or a short query suggest a
// popular/generic search worth keeping longer. Capped at maxTTL.
func (c *Cache) TTLFor(resultCount, queryLength int) time.Duration {
	ttl := c.baseTTL
	switch {
	case resultCount > 10:
		ttl = 2 * c.baseTTL
	case queryLength < 10:
		ttl = c.baseTTL + c.baseTTL/2
	}
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	return ttl
}

// Invalidate purges every entry for one scope (or all unscoped entries when
// scope is empty). After it returns, no stale entry for the scope is servable.
func (c *Cache) Invalidate(ctx context.Context, scope string) (int, error) {
	pattern := c.prefix + scopeTag(scope) + ":*"
	keys, err := c.store.Scan(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("scan result cache: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := c.store.Del(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("purge result cache: %w", err)
	}
	return deleted, nil
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// scopeTag hashes a scope into a fixed-width key segment, keeping opaque
// scope identifiers out of the glob pattern space.
func scopeTag(scope string) string {
	if scope == "" {
		return unscopedTag
	}
	sum := sha256.Sum256([]byte(scope))
	return hex.EncodeToString(sum[:8])
}
