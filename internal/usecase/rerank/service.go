package rerank

import (
	"context"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/domain"
)

// Service reorders fused candidates with a cross-encoder. Reranking is a
// quality refinement, never a gate: any failure returns the candidates in
// their fused order so the search still answers.
type Service struct {
	encoder       CrossEncoder
	cache         ScoreCache
	maxCandidates int
	rerankTotal   *prometheus.CounterVec
	logger        *zap.Logger
}

// New creates a rerank service. A nil encoder disables reranking entirely;
// a nil cache disables score caching.
func New(
	encoder CrossEncoder,
	cache ScoreCache,
	maxCandidates int,
	rerankTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Service {
	return &Service{
		encoder:       encoder,
		cache:         cache,
		maxCandidates: maxCandidates,
		rerankTotal:   rerankTotal,
		logger:        logger,
	}
}

// Enabled reports whether a cross-encoder is wired in.
func (s *Service) Enabled() bool { return s.encoder != nil }

// Rerank scores the top candidates against the query and returns the list
// reordered by cross-encoder relevance, truncated to topK. Candidates beyond
// the scoring window keep their fused order behind the reranked head.
func (s *Service) Rerank(ctx context.Context, query string, candidates []domain.Chunk, topK int) []domain.Chunk {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	if s.encoder == nil {
		s.outcome("disabled")
		return truncate(candidates, topK)
	}
	if len(candidates) == 1 {
		s.outcome("skipped")
		return candidates
	}

	window := len(candidates)
	if s.maxCandidates > 0 && window > s.maxCandidates {
		window = s.maxCandidates
	}
	head, tail := candidates[:window], candidates[window:]

	texts := make([]string, len(head))
	for i, c := range head {
		texts[i] = c.Text
	}

	scores, fromCache := s.cachedScores(ctx, query, texts)
	if scores == nil {
		var err error
		scores, err = s.encoder.Predict(ctx, query, texts)
		if err != nil || len(scores) != len(head) {
			s.outcome("failed")
			s.logger.Warn("Cross-encoder unavailable, keeping fused order",
				zap.Int("candidates", len(head)), zap.Error(err))
			return truncate(candidates, topK)
		}
		if s.cache != nil {
			s.cache.Put(ctx, s.cache.Key(query, texts), scores)
		}
	}

	reranked := make([]domain.Chunk, len(head))
	for i, c := range head {
		c.Score = scores[i]
		c.Source = domain.SourceReranked
		reranked[i] = c
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	if fromCache {
		s.outcome("cached")
	} else {
		s.outcome("success")
	}
	return truncate(append(reranked, tail...), topK)
}

func (s *Service) cachedScores(ctx context.Context, query string, texts []string) ([]float64, bool) {
	if s.cache == nil {
		return nil, false
	}
	scores, ok := s.cache.Get(ctx, s.cache.Key(query, texts))
	if !ok || len(scores) != len(texts) {
		return nil, false
	}
	return scores, true
}

func (s *Service) outcome(label string) {
	if s.rerankTotal != nil {
		s.rerankTotal.WithLabelValues(label).Inc()
	}
}

func truncate(chunks []domain.Chunk, limit int) []domain.Chunk {
	if len(chunks) > limit {
		return chunks[:limit]
	}
	return chunks
}
