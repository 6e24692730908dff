package rerankcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/db"
)

// store is the consumer interface for the shared score cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores cross-encoder scores keyed by content: the query plus the
// ordered candidate texts. Entries depend only on text equality, so there is
// no explicit invalidation — TTL expiry is enough. Redis is preferred; an
// in-process TTL cache keeps hits flowing when Redis is down.
type Cache struct {
	store      store
	memory     *gocache.Cache
	prefix     string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a score cache. A nil store degrades to memory-only caching.
func New(
	s store,
	keyPrefix string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Cache {
	return &Cache{
		store:      s,
		memory:     gocache.New(ttl, 2*ttl),
		prefix:     keyPrefix + "rerank:",
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Key hashes the query and the ordered candidate texts. Database IDs are
// deliberately excluded: the same physical scoring depends only on content.
func (c *Cache) Key(query string, texts []string) string {
	h := sha256.New()
	h.Write([]byte(query))
	for _, t := range texts {
		h.Write([]byte{0x1f})
		h.Write([]byte(t))
	}
	return c.prefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns cached scores for a key, trying Redis first, then memory.
func (c *Cache) Get(ctx context.Context, key string) ([]float64, bool) {
	if c.store != nil {
		if data, err := c.store.Get(ctx, key); err == nil {
			var scores []float64
			if err := json.Unmarshal(data, &scores); err == nil {
				c.incCache("hit")
				return scores, true
			}
			c.logger.Warn("Failed to decode cached rerank scores", zap.String("key", key))
		} else if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read rerank cache", zap.String("key", key), zap.Error(err))
		}
	}

	if v, ok := c.memory.Get(key); ok {
		if scores, ok := v.([]float64); ok {
			c.incCache("hit")
			return scores, true
		}
	}

	c.incCache("miss")
	return nil, false
}

// Put stores scores best-effort in both tiers.
func (c *Cache) Put(ctx context.Context, key string, scores []float64) {
	c.memory.Set(key, scores, c.ttl)

	if c.store == nil {
		return
	}
	data, err := json.Marshal(scores)
	if err != nil {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to write rerank cache", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
