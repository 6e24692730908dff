package retriever

import (
	"sort"

	"github.com/quarryhq/quarry/internal/domain"
)

// rrfK dampens the weight gap between adjacent ranks. 60 is the standard
// choice from the original RRF evaluation.
const rrfK = 60

// fuse merges ranked candidate lists with reciprocal rank fusion. Each list
// entry contributes 1/(k+rank+1) to its chunk's fused score; near-duplicates
// across lists collapse onto one entry via the fuse key. The result is sorted
// by fused score, ties broken by fuse key so the order is stable regardless
// of list order.
func fuse(lists ...[]domain.Chunk) []domain.Chunk {
	type entry struct {
		chunk domain.Chunk
		key   string
		score float64
	}
	byKey := make(map[string]*entry)

	for _, list := range lists {
		for rank, c := range list {
			key := c.FuseKey()
			contribution := 1.0 / float64(rrfK+rank+1)
			if e, ok := byKey[key]; ok {
				e.score += contribution
				continue
			}
			byKey[key] = &entry{chunk: c, key: key, score: contribution}
		}
	}

	entries := make([]*entry, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].key < entries[j].key
	})

	out := make([]domain.Chunk, len(entries))
	for i, e := range entries {
		c := e.chunk
		c.Score = e.score
		c.Source = domain.SourceHybrid
		out[i] = c
	}
	return out
}

// mergeScopes combines per-scope fused lists into one ranking. Duplicates
// across scopes keep their highest fused score.
func mergeScopes(chunks []domain.Chunk) []domain.Chunk {
	best := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		key := c.FuseKey()
		if prev, ok := best[key]; !ok || c.Score > prev.Score {
			best[key] = c
		}
	}

	out := make([]domain.Chunk, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].FuseKey() < out[j].FuseKey()
	})
	return out
}
