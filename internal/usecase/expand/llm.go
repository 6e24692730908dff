package expand

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ChatClient is the completion surface the LLM expander needs.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const expandSystemPrompt = "You expand search queries for an industrial document " +
	"search engine. Given a query, reply with related technical keywords only, " +
	"one per line, no numbering, no explanations."

// LLMClient asks a chat model for related keywords, behind a circuit breaker
// so a degraded provider cannot slow every search down.
type LLMClient struct {
	chat     ChatClient
	maxTerms int
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewLLMClient wraps a chat client for keyword expansion.
func NewLLMClient(chat ChatClient, maxTerms int, logger *zap.Logger) *LLMClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-expansion",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Expansion breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &LLMClient{chat: chat, maxTerms: maxTerms, breaker: breaker, logger: logger}
}

// ExpandTerms returns up to maxTerms keywords for the query. While the
// breaker is open it fails fast without touching the provider.
func (c *LLMClient) ExpandTerms(ctx context.Context, query string) ([]string, error) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.chat.Complete(ctx, expandSystemPrompt, query)
	})
	if err != nil {
		return nil, fmt.Errorf("expand query: %w", err)
	}

	reply, _ := raw.(string)
	terms := make([]string, 0, c.maxTerms)
	for _, line := range strings.Split(reply, "\n") {
		if len(terms) >= c.maxTerms {
			break
		}
		term := strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if term == "" {
			continue
		}
		terms = append(terms, term)
	}
	return terms, nil
}
