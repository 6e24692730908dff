package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/domain"
)

// Retriever is the search surface the QA pipeline consumes.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, scopes []string, identity string) ([]domain.Chunk, error)
}

// ChatClient produces a completion from a system and user prompt.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// noEvidenceAnswer is returned without consulting the model when retrieval
// finds nothing to ground an answer on.
const noEvidenceAnswer = "No relevant documents were found for this question. " +
	"Try rephrasing it or checking that the right document libraries are loaded."

// Response is a grounded answer with the chunks it was built from.
type Response struct {
	Answer     string
	References []domain.Chunk
	LatencyMS  int64
}

// Service answers questions over the document corpus: retrieve, build a
// role-aware prompt, complete.
type Service struct {
	retriever Retriever
	chat      ChatClient
	topK      int
	logger    *zap.Logger
}

// New creates the QA service. topK bounds how many chunks ground the answer.
func New(retriever Retriever, chat ChatClient, topK int, logger *zap.Logger) *Service {
	return &Service{retriever: retriever, chat: chat, topK: topK, logger: logger}
}

// Ask retrieves evidence for the question and completes a grounded answer.
// An empty corpus degrades to a fixed no-evidence answer without consulting
// the model; a model failure surfaces as ErrAnswerUnavailable.
func (s *Service) Ask(ctx context.Context, question, role string, scopes []string, identity string) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty: %w", domain.ErrInvalidRequest)
	}

	start := time.Now()
	chunks, err := s.retriever.Search(ctx, question, s.topK, scopes, identity)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &Response{
			Answer:    noEvidenceAnswer,
			LatencyMS: time.Since(start).Milliseconds(),
		}, nil
	}

	reply, err := s.chat.Complete(ctx, promptForRole(role), buildUserPrompt(question, chunks))
	if err != nil {
		s.logger.Error("Answer completion failed", zap.Error(err))
		return nil, fmt.Errorf("complete answer: %w", domain.ErrAnswerUnavailable)
	}

	return &Response{
		Answer:     strings.TrimSpace(reply),
		References: chunks,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}

func buildUserPrompt(question string, chunks []domain.Chunk) string {
	var b strings.Builder
	b.WriteString("Document excerpts:\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] (document %s)\n%s\n\n", i+1, c.DocumentID, c.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
