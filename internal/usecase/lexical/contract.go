package lexical

import (
	"context"

	"github.com/quarryhq/quarry/internal/domain"
	"github.com/quarryhq/quarry/internal/repository/chunks"
)

// DocumentSource provides the chunks of a scope for indexing. Count must be
// cheap relative to Load; the manager polls it to detect out-of-band writes.
type DocumentSource interface {
	Load(ctx context.Context, scope string) ([]domain.Chunk, error)
	Count(ctx context.Context, scope string) (int, error)
}

// RepoSource adapts the chunk repository to the DocumentSource contract.
type RepoSource struct {
	repo *chunks.Repo
}

// NewRepoSource wraps a chunk repository.
func NewRepoSource(repo *chunks.Repo) *RepoSource {
	return &RepoSource{repo: repo}
}

// Load materializes a scope's chunks without embeddings.
func (s *RepoSource) Load(ctx context.Context, scope string) ([]domain.Chunk, error) {
	records, err := s.repo.GetAll(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Chunk, len(records))
	for i, rec := range records {
		out[i] = domain.Chunk{
			DocumentID: rec.DocumentID,
			Text:       rec.Text,
			Metadata:   rec.Metadata,
		}
	}
	return out, nil
}

// Count returns the scope's chunk count.
func (s *RepoSource) Count(ctx context.Context, scope string) (int, error) {
	return s.repo.Count(ctx, scope)
}
