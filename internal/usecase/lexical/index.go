package lexical

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/quarryhq/quarry/internal/domain"
)

// BM25 parameters (Okapi defaults).
const (
	k1 = 1.5
	b  = 0.75
)

// Index is an immutable BM25 snapshot of one scope's chunks. Queries never
// mutate it, so a snapshot can be shared across goroutines and swapped out
// atomically by the manager.
type Index struct {
	docs  []indexedDoc
	df    map[string]int
	avgdl float64
}

type indexedDoc struct {
	chunk  domain.Chunk
	tf     map[string]int
	length int
}

// BuildIndex tokenizes the given chunks and computes term statistics.
// Returns nil when there is nothing to index.
func BuildIndex(chunks []domain.Chunk) *Index {
	if len(chunks) == 0 {
		return nil
	}

	idx := &Index{
		docs: make([]indexedDoc, 0, len(chunks)),
		df:   make(map[string]int),
	}

	totalLen := 0
	for _, c := range chunks {
		tokens := tokenize(c.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			idx.df[t]++
		}
		idx.docs = append(idx.docs, indexedDoc{chunk: c, tf: tf, length: len(tokens)})
		totalLen += len(tokens)
	}
	idx.avgdl = float64(totalLen) / float64(len(idx.docs))
	return idx
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.docs) }

// Search scores every document against the query terms and returns the top
// matches by BM25 score, highest first. Chunks with no matching term are
// omitted.
func (idx *Index) Search(query string, limit int) []domain.Chunk {
	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}
	// Repeated query terms contribute once.
	unique := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		unique[t] = struct{}{}
	}

	type scored struct {
		pos   int
		score float64
	}
	results := make([]scored, 0, limit)

	n := float64(len(idx.docs))
	for i := range idx.docs {
		doc := &idx.docs[i]
		score := 0.0
		for t := range unique {
			tf, ok := doc.tf[t]
			if !ok {
				continue
			}
			df := float64(idx.df[t])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			norm := float64(tf) * (k1 + 1) / (float64(tf) + k1*(1-b+b*float64(doc.length)/idx.avgdl))
			score += idf * norm
		}
		if score > 0 {
			results = append(results, scored{pos: i, score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	out := make([]domain.Chunk, len(results))
	for i, r := range results {
		c := idx.docs[r.pos].chunk
		c.Score = r.score
		c.Source = domain.SourceLexical
		out[i] = c
	}
	return out
}

// tokenize lowercases and splits on non-alphanumeric runes. Han characters
// are emitted as single-rune tokens since they carry no word boundaries.
func tokenize(s string) []string {
	var tokens []string
	var word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return tokens
}
