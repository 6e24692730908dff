package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quarryhq/quarry/internal/domain"
	"github.com/quarryhq/quarry/internal/metrics"
	"github.com/quarryhq/quarry/internal/usecase/lexical"
)

// Service orchestrates the hybrid retrieval pipeline: result cache, query
// expansion, parallel vector and lexical retrieval per scope, rank fusion,
// and reranking. Every auxiliary stage fails open; only an unusable request
// or a total retrieval failure surfaces as an error.
type Service struct {
	vector   VectorSearcher
	lexical  *lexical.Manager
	expander QueryExpander
	reranker Reranker
	cache    ResultCache

	defaultTopK    int
	maxTopK        int
	candidateCount int
	logger         *zap.Logger
}

// Options bundles the tuning knobs for the retrieval pipeline.
type Options struct {
	DefaultTopK    int
	MaxTopK        int
	CandidateCount int
}

// New creates the retrieval orchestrator. expander, reranker and cache may
// each be nil to disable that stage.
func New(
	vector VectorSearcher,
	lex *lexical.Manager,
	expander QueryExpander,
	reranker Reranker,
	cache ResultCache,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		vector:         vector,
		lexical:        lex,
		expander:       expander,
		reranker:       reranker,
		cache:          cache,
		defaultTopK:    opts.DefaultTopK,
		maxTopK:        opts.MaxTopK,
		candidateCount: opts.CandidateCount,
		logger:         logger,
	}
}

// Search runs the full pipeline and returns at most topK chunks, best first.
// An empty scope list searches the default scope. identity partitions the
// result cache between callers.
func (s *Service) Search(ctx context.Context, query string, topK int, scopes []string, identity string) ([]domain.Chunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty: %w", domain.ErrInvalidRequest)
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK > s.maxTopK {
		topK = s.maxTopK
	}
	if len(scopes) == 0 {
		scopes = []string{domain.DefaultScope}
	}

	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	}()

	// Multi-scope requests bypass the cache: their entries could not be
	// purged by a single-scope invalidation.
	cacheKey := ""
	if s.cache != nil && len(scopes) == 1 {
		cacheKey = s.cache.Key(query, scopes[0], topK, identity)
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
			return cached, nil
		}
	}

	variants := s.expand(ctx, query)
	lists := s.fanOut(ctx, query, variants, scopes)

	perScope := len(variants) + 1
	merged := make([]domain.Chunk, 0, s.candidateCount)
	for si := range scopes {
		fused := fuse(lists[si*perScope : (si+1)*perScope]...)
		merged = append(merged, fused...)
	}
	if len(scopes) > 1 {
		merged = mergeScopes(merged)
	}

	results := s.rerank(ctx, query, merged, topK)

	if len(results) == 0 {
		metrics.SearchRequestsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}
	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()

	if cacheKey != "" {
		if err := s.cache.Put(ctx, cacheKey, query, results); err != nil {
			s.logger.Warn("Result cache write failed", zap.Error(err))
		}
	}
	return results, nil
}

// Invalidate marks a scope's lexical index dirty and purges its cached
// results. Stale entries must be gone before the call returns.
func (s *Service) Invalidate(ctx context.Context, scope string) (int, error) {
	s.lexical.MarkDirty(scope)

	if s.cache == nil {
		return 0, nil
	}
	purged, err := s.cache.Invalidate(ctx, scope)
	if err != nil {
		return 0, err
	}
	metrics.CacheInvalidationsTotal.Inc()
	s.logger.Info("Invalidated scope",
		zap.String("scope", scope), zap.Int("purged", purged))
	return purged, nil
}

// Rebuild forces a lexical rebuild for one scope, or for every known scope
// when scope is empty.
func (s *Service) Rebuild(ctx context.Context, scope string) error {
	if scope == "" {
		return s.lexical.RebuildAll(ctx)
	}
	return s.lexical.Rebuild(ctx, scope)
}

func (s *Service) expand(ctx context.Context, query string) []string {
	if s.expander == nil {
		return []string{query}
	}
	start := time.Now()
	variants := s.expander.Expand(ctx, query)
	metrics.SearchDuration.WithLabelValues("expand").Observe(time.Since(start).Seconds())
	if len(variants) == 0 {
		return []string{query}
	}
	return variants
}

// fanOut retrieves candidates concurrently: one vector search per variant
// per scope, plus one lexical search per scope with the original query.
// Failed branches log and contribute nothing.
func (s *Service) fanOut(ctx context.Context, query string, variants, scopes []string) [][]domain.Chunk {
	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues("fanout").Observe(time.Since(start).Seconds())
	}()

	perScope := len(variants) + 1
	lists := make([][]domain.Chunk, len(scopes)*perScope)

	g, gctx := errgroup.WithContext(ctx)
	for si, scope := range scopes {
		for vi, variant := range variants {
			slot := si*perScope + vi
			g.Go(func() error {
				chunks, err := s.vector.Search(gctx, variant, scope, s.candidateCount)
				if err != nil {
					s.logger.Warn("Vector retrieval failed",
						zap.String("scope", scope), zap.Error(err))
					return nil
				}
				lists[slot] = chunks
				return nil
			})
		}

		slot := si*perScope + len(variants)
		g.Go(func() error {
			idx, err := s.lexical.GetIndex(gctx, scope, false)
			if err != nil {
				s.logger.Warn("Lexical retrieval failed",
					zap.String("scope", scope), zap.Error(err))
				return nil
			}
			if idx == nil {
				return nil
			}
			lists[slot] = idx.Search(query, s.candidateCount)
			return nil
		})
	}
	_ = g.Wait() // branches degrade instead of erroring
	return lists
}

func (s *Service) rerank(ctx context.Context, query string, candidates []domain.Chunk, topK int) []domain.Chunk {
	if s.reranker == nil {
		if len(candidates) > topK {
			return candidates[:topK]
		}
		return candidates
	}
	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues("rerank").Observe(time.Since(start).Seconds())
	}()
	return s.reranker.Rerank(ctx, query, candidates, topK)
}
