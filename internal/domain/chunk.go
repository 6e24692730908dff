package domain

// DefaultScope is the partition used when a caller does not name a library scope.
const DefaultScope = "default"

// Source identifies which retrieval stage produced a chunk's current score.
// Scores from different stages live on different scales and must never be
// compared with each other.
type Source string

// Retrieval stages, in pipeline order.
const (
	SourceVector   Source = "vector"
	SourceLexical  Source = "bm25"
	SourceHybrid   Source = "hybrid"
	SourceReranked Source = "reranked"
)

// fuseKeyPrefixLen bounds the text prefix used for near-duplicate detection.
// Chunk boundaries can shift slightly between indexing passes, so exact text
// equality is too strict a dedup criterion.
const fuseKeyPrefixLen = 50

// Chunk is a single retrieval candidate. Metadata is passed through from the
// source index unmodified.
type Chunk struct {
	DocumentID string
	Text       string
	Score      float64
	Metadata   map[string]string
	Source     Source
}

// FuseKey returns the dedup key used during rank fusion: document ID plus the
// first 50 runes of the chunk text.
func (c *Chunk) FuseKey() string {
	runes := []rune(c.Text)
	if len(runes) > fuseKeyPrefixLen {
		runes = runes[:fuseKeyPrefixLen]
	}
	return c.DocumentID + "\x1f" + string(runes)
}
