package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/quarryhq/quarry/internal/db"
	"github.com/quarryhq/quarry/internal/domain"
	"github.com/quarryhq/quarry/internal/repository/chunks"
)

// Searcher translates free-text queries into KNN lookups against the
// scope-partitioned vector index.
type Searcher struct {
	store    db.VectorIndex
	embedder domain.Embedder
	keys     chunks.Keys
}

// New creates a vector search adapter.
func New(store db.VectorIndex, embedder domain.Embedder, keys chunks.Keys) *Searcher {
	return &Searcher{store: store, embedder: embedder, keys: keys}
}

// Search embeds the query and returns the topK nearest chunks in the scope.
// A scope that was never vectorized yields an empty result, not an error.
func (s *Searcher) Search(ctx context.Context, query, scope string, topK int) ([]domain.Chunk, error) {
	embResult, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	res, err := s.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    s.keys.Index(scope),
		Vector:       embResult.Embedding,
		K:            topK,
		ReturnFields: []string{"document_id", "text", "metadata"},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("search knn scope %s: %w", scope, err)
	}

	out := make([]domain.Chunk, 0, len(res.Entries))
	for _, e := range res.Entries {
		var meta map[string]string
		if raw := e.Fields["metadata"]; raw != "" {
			_ = json.Unmarshal([]byte(raw), &meta)
		}
		out = append(out, domain.Chunk{
			DocumentID: e.Fields["document_id"],
			Text:       e.Fields["text"],
			Score:      distanceToSimilarity(e.Distance),
			Metadata:   meta,
			Source:     domain.SourceVector,
		})
	}
	return out, nil
}

// distanceToSimilarity maps a raw distance into (0, 1], monotonically
// decreasing in |distance|. This works for any metric without requiring the
// store's distances to be pre-normalized.
func distanceToSimilarity(d float64) float64 {
	if d == 0 {
		return 1.0
	}
	return 1.0 / (1.0 + math.Abs(d))
}
