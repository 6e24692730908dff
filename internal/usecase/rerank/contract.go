package rerank

import "context"

// CrossEncoder scores query/text pairs. Predict returns one relevance score
// per text, in input order. Implementations must be safe for concurrent use.
type CrossEncoder interface {
	Predict(ctx context.Context, query string, texts []string) ([]float64, error)
}

// ScoreCache stores cross-encoder scores keyed by content.
type ScoreCache interface {
	Key(query string, texts []string) string
	Get(ctx context.Context, key string) ([]float64, bool)
	Put(ctx context.Context, key string, scores []float64)
}
