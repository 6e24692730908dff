package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quarryhq/quarry/internal/db"
	"github.com/quarryhq/quarry/internal/domain"
	"github.com/quarryhq/quarry/internal/repository/chunks"
)

// embedConcurrency bounds parallel embedding calls per batch.
const embedConcurrency = 4

// ChunkStore is the persistence surface for ingested chunks.
type ChunkStore interface {
	Upsert(ctx context.Context, scope string, records []chunks.Record) error
	Delete(ctx context.Context, scope, id string) error
}

// Invalidator purges derived state after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, scope string) (int, error)
}

// Document is one chunk submitted for indexing.
type Document struct {
	ID         string
	DocumentID string
	Text       string
	Metadata   map[string]string
}

// Service embeds and stores chunks, then invalidates derived state so the
// next search sees the write. Unlike retrieval, ingestion fails closed: a
// partial batch is worse than a rejected one.
type Service struct {
	store       ChunkStore
	embedder    domain.Embedder
	invalidator Invalidator
	logger      *zap.Logger
}

// New creates the ingestion service.
func New(store ChunkStore, embedder domain.Embedder, invalidator Invalidator, logger *zap.Logger) *Service {
	return &Service{store: store, embedder: embedder, invalidator: invalidator, logger: logger}
}

// Upsert embeds and stores a batch of chunks in a scope, returning the count
// written.
func (s *Service) Upsert(ctx context.Context, scope string, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, fmt.Errorf("documents must not be empty: %w", domain.ErrInvalidRequest)
	}
	for i, d := range docs {
		if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.Text) == "" {
			return 0, fmt.Errorf("document %d needs id and text: %w", i, domain.ErrInvalidRequest)
		}
	}

	records := make([]chunks.Record, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, d := range docs {
		g.Go(func() error {
			result, err := s.embedder.Embed(gctx, d.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", d.ID, err)
			}
			records[i] = chunks.Record{
				ID:         d.ID,
				DocumentID: d.DocumentID,
				Text:       d.Text,
				Metadata:   d.Metadata,
				Embedding:  result.Embedding,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := s.store.Upsert(ctx, scope, records); err != nil {
		return 0, err
	}
	s.invalidate(ctx, scope)

	s.logger.Info("Ingested chunks", zap.String("scope", scope), zap.Int("count", len(records)))
	return len(records), nil
}

// Delete removes one chunk and invalidates the scope's derived state.
func (s *Service) Delete(ctx context.Context, scope, id string) error {
	if err := s.store.Delete(ctx, scope, id); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return fmt.Errorf("chunk %s: %w", id, domain.ErrDocumentNotFound)
		}
		return err
	}
	s.invalidate(ctx, scope)
	return nil
}

func (s *Service) invalidate(ctx context.Context, scope string) {
	if s.invalidator == nil {
		return
	}
	if _, err := s.invalidator.Invalidate(ctx, scope); err != nil {
		s.logger.Warn("Post-write invalidation failed",
			zap.String("scope", scope), zap.Error(err))
	}
}
