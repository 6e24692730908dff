package db

import (
	"context"
	"time"
)

// Store is the database facade combining all sub-interfaces. Consumers should
// depend on the narrow sub-interfaces, not on Store.
type Store interface {
	Pinger
	KVStore
	HashStore
	VectorIndex
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations with TTL support.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// HashStore provides hash-based operations for chunk records.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// KNNQuery describes a vector similarity search against one FT index.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchEntry is one raw hit from an FT search.
type SearchEntry struct {
	Key string
	// Distance is the raw vector distance reported by the engine; score
	// conversion happens in the repository layer.
	Distance float64
	Fields   map[string]string
}

// SearchResult is the raw outcome of an FT search.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// VectorIndexDefinition describes a per-scope FT vector index over hash keys.
type VectorIndexDefinition struct {
	Name      string
	Prefix    string
	VectorDim int
}

// VectorIndex provides FT index lifecycle and KNN search operations.
type VectorIndex interface {
	CreateVectorIndex(ctx context.Context, def *VectorIndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
