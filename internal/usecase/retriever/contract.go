package retriever

import (
	"context"

	"github.com/quarryhq/quarry/internal/domain"
)

// VectorSearcher runs semantic KNN retrieval for one scope.
type VectorSearcher interface {
	Search(ctx context.Context, query, scope string, topK int) ([]domain.Chunk, error)
}

// QueryExpander widens a query into retrieval variants, original first.
type QueryExpander interface {
	Expand(ctx context.Context, query string) []string
}

// Reranker reorders fused candidates, truncating to topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.Chunk, topK int) []domain.Chunk
}

// ResultCache stores final search results with identity-aware keys.
type ResultCache interface {
	Key(query, scope string, limit int, identity string) string
	Get(ctx context.Context, key string) ([]domain.Chunk, bool)
	Put(ctx context.Context, key, query string, results []domain.Chunk) error
	Invalidate(ctx context.Context, scope string) (int, error)
}
