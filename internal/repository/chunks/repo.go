package chunks

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/quarryhq/quarry/internal/db"
)

// Record is one chunk as stored, embedding included.
type Record struct {
	ID         string
	DocumentID string
	Text       string
	Metadata   map[string]string
	Embedding  []float32
}

// Keys derives the Redis key layout for scope-partitioned chunk storage.
type Keys struct {
	prefix string
}

// NewKeys creates a key layout rooted at the given namespace prefix.
func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

// Chunk returns the hash key for one chunk in a scope.
func (k Keys) Chunk(scope, id string) string {
	return k.prefix + "chunk:" + scope + ":" + id
}

// ChunkPattern returns the SCAN pattern matching all chunks of a scope.
func (k Keys) ChunkPattern(scope string) string {
	return k.prefix + "chunk:" + scope + ":*"
}

// Index returns the FT index name for a scope.
func (k Keys) Index(scope string) string {
	return k.prefix + "idx:" + scope
}

// Repo stores chunks in Redis hashes, one scope per key prefix, with a
// per-scope FT vector index created lazily on first write.
type Repo struct {
	store     db.Store
	keys      Keys
	vectorDim int
}

// New creates a chunk repository.
func New(store db.Store, keyPrefix string, vectorDim int) *Repo {
	return &Repo{store: store, keys: NewKeys(keyPrefix), vectorDim: vectorDim}
}

// Keys exposes the key layout for collaborating repositories.
func (r *Repo) Keys() Keys { return r.keys }

// EnsureIndex creates the scope's FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context, scope string) error {
	err := r.store.CreateVectorIndex(ctx, &db.VectorIndexDefinition{
		Name:      r.keys.Index(scope),
		Prefix:    r.keys.prefix + "chunk:" + scope + ":",
		VectorDim: r.vectorDim,
	})
	if errors.Is(err, db.ErrIndexExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create index for scope %s: %w", scope, err)
	}
	return nil
}

// Upsert writes chunk records into a scope, creating the index on first use.
func (r *Repo) Upsert(ctx context.Context, scope string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := r.EnsureIndex(ctx, scope); err != nil {
		return err
	}

	for _, rec := range records {
		fields, err := recordToFields(rec)
		if err != nil {
			return fmt.Errorf("encode chunk %s: %w", rec.ID, err)
		}
		if err := r.store.HSet(ctx, r.keys.Chunk(scope, rec.ID), fields); err != nil {
			return fmt.Errorf("store chunk %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Delete removes one chunk from a scope.
func (r *Repo) Delete(ctx context.Context, scope, id string) error {
	n, err := r.store.Del(ctx, r.keys.Chunk(scope, id))
	if err != nil {
		return fmt.Errorf("delete chunk %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("chunk %s in scope %s: %w", id, scope, db.ErrKeyNotFound)
	}
	return nil
}

// GetAll materializes every chunk of a scope, ordered by chunk ID so lexical
// rebuilds see a deterministic snapshot. Embeddings are not loaded.
func (r *Repo) GetAll(ctx context.Context, scope string) ([]Record, error) {
	keys, err := r.store.Scan(ctx, r.keys.ChunkPattern(scope))
	if err != nil {
		return nil, fmt.Errorf("scan scope %s: %w", scope, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load scope %s: %w", scope, err)
	}

	records := make([]Record, 0, len(maps))
	for i, fields := range maps {
		if len(fields) == 0 {
			continue // expired between SCAN and HGETALL
		}
		rec := fieldsToRecord(fields)
		rec.ID = chunkIDFromKey(keys[i])
		records = append(records, rec)
	}
	return records, nil
}

// Count returns the number of chunks stored in a scope.
func (r *Repo) Count(ctx context.Context, scope string) (int, error) {
	keys, err := r.store.Scan(ctx, r.keys.ChunkPattern(scope))
	if err != nil {
		return 0, fmt.Errorf("count scope %s: %w", scope, err)
	}
	return len(keys), nil
}

func recordToFields(rec Record) (map[string]string, error) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"document_id": rec.DocumentID,
		"text":        rec.Text,
		"metadata":    string(meta),
		"embedding":   embeddingToBytes(rec.Embedding),
	}, nil
}

func fieldsToRecord(fields map[string]string) Record {
	rec := Record{
		DocumentID: fields["document_id"],
		Text:       fields["text"],
	}
	if raw := fields["metadata"]; raw != "" {
		// Malformed metadata degrades to nil rather than failing the load.
		_ = json.Unmarshal([]byte(raw), &rec.Metadata)
	}
	return rec
}

func chunkIDFromKey(key string) string {
	idx := strings.LastIndexByte(key, ':')
	if idx < 0 {
		return key
	}
	return key[idx+1:]
}

func embeddingToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
