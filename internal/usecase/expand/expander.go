package expand

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Expander widens a query into variants for parallel retrieval. The original
// query is always the first variant and every variant only ever appends terms
// to it. Any failure during expansion degrades to the original query alone.
type Expander struct {
	synonyms      map[string][]string
	maxExpansions int
	llm           LLMExpander
	logger        *zap.Logger
}

// LLMExpander produces additional query terms from a language model.
// Implementations must be safe to call concurrently.
type LLMExpander interface {
	ExpandTerms(ctx context.Context, query string) ([]string, error)
}

// New creates an expander. When dictPath is empty the builtin dictionary is
// used; llm may be nil to disable model-backed expansion.
func New(dictPath string, maxExpansions int, llm LLMExpander, logger *zap.Logger) (*Expander, error) {
	synonyms := builtinSynonyms
	if dictPath != "" {
		loaded, err := loadDictionary(dictPath)
		if err != nil {
			return nil, err
		}
		synonyms = loaded
	}
	return &Expander{
		synonyms:      synonyms,
		maxExpansions: maxExpansions,
		llm:           llm,
		logger:        logger,
	}, nil
}

// Expand returns the query followed by up to maxExpansions variants. Each
// variant appends one synonym of a matched term; the original query text is
// never altered. LLM terms, when available, fill any remaining slots.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	variants := []string{query}
	if e.maxExpansions <= 0 {
		return variants
	}

	lower := strings.ToLower(query)
	seen := map[string]struct{}{lower: {}}

	// Sorted match order keeps expansion deterministic for a given query.
	matched := make([]string, 0, 4)
	for term := range e.synonyms {
		if strings.Contains(lower, strings.ToLower(term)) {
			matched = append(matched, term)
		}
	}
	sort.Strings(matched)

	for _, term := range matched {
		for _, syn := range e.synonyms[term] {
			if len(variants) > e.maxExpansions {
				return variants
			}
			if strings.Contains(lower, strings.ToLower(syn)) {
				continue // synonym already present in the query
			}
			variant := query + " " + syn
			key := strings.ToLower(variant)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			variants = append(variants, variant)
		}
	}

	if e.llm != nil && len(variants) <= e.maxExpansions {
		variants = e.appendLLMTerms(ctx, query, variants, seen)
	}
	return variants
}

func (e *Expander) appendLLMTerms(ctx context.Context, query string, variants []string, seen map[string]struct{}) []string {
	terms, err := e.llm.ExpandTerms(ctx, query)
	if err != nil {
		e.logger.Warn("LLM expansion unavailable", zap.Error(err))
		return variants
	}
	for _, term := range terms {
		if len(variants) > e.maxExpansions {
			break
		}
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		variant := query + " " + term
		key := strings.ToLower(variant)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		variants = append(variants, variant)
	}
	return variants
}

func loadDictionary(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonym dictionary: %w", err)
	}
	var dict map[string][]string
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("parse synonym dictionary %s: %w", path, err)
	}
	return dict, nil
}
