package resultcache

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/db"
	"github.com/quarryhq/quarry/internal/domain"
)

type fakeKV struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) (int, error) {
	n := 0
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func newCache(kv *fakeKV) *Cache {
	return New(kv, "quarry:", time.Hour, 2*time.Hour, nil, zap.NewNop())
}

func TestKey_IdentityIsolation(t *testing.T) {
	c := newCache(newFakeKV())
	a := c.Key("valve repair", "lib-a", 5, "user-a")
	b := c.Key("valve repair", "lib-a", 5, "user-b")
	if a == b {
		t.Error("different callers must get different cache keys")
	}
}

func TestKey_Deterministic(t *testing.T) {
	c := newCache(newFakeKV())
	if c.Key("q", "s", 5, "u") != c.Key("q", "s", 5, "u") {
		t.Error("key derivation must be deterministic")
	}
	if c.Key("q", "s", 5, "u") == c.Key("q", "s", 6, "u") {
		t.Error("limit must be part of the key")
	}
}

func TestRoundTrip(t *testing.T) {
	c := newCache(newFakeKV())
	ctx := context.Background()

	want := []domain.Chunk{
		{DocumentID: "d1", Text: "chunk", Score: 0.03, Metadata: map[string]string{"page": "1"}, Source: domain.SourceHybrid},
	}
	key := c.Key("q", "lib-a", 5, "u")
	if err := c.Put(ctx, key, "q", want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 1 || got[0].DocumentID != "d1" || got[0].Score != 0.03 || got[0].Source != domain.SourceHybrid {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got[0].Metadata["page"] != "1" {
		t.Errorf("metadata lost: %v", got[0].Metadata)
	}
}

func TestGet_MissingKey(t *testing.T) {
	c := newCache(newFakeKV())
	if _, ok := c.Get(context.Background(), c.Key("q", "s", 5, "u")); ok {
		t.Error("expected miss for absent key")
	}
}

func TestGet_CorruptEntryIsMiss(t *testing.T) {
	kv := newFakeKV()
	c := newCache(kv)
	key := c.Key("q", "s", 5, "u")
	kv.data[key] = []byte("not json")

	if _, ok := c.Get(context.Background(), key); ok {
		t.Error("corrupt entry must degrade to a miss")
	}
}

func TestTTLFor(t *testing.T) {
	c := newCache(newFakeKV())

	tests := []struct {
		name    string
		results int
		qlen    int
		want    time.Duration
	}{
		{"base", 5, 30, time.Hour},
		{"many results capped", 11, 30, 2 * time.Hour},
		{"short query", 5, 8, 90 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.TTLFor(tt.results, tt.qlen); got != tt.want {
				t.Errorf("TTLFor(%d, %d) = %v, want %v", tt.results, tt.qlen, got, tt.want)
			}
		})
	}
}

func TestTTLFor_CappedAtMax(t *testing.T) {
	c := New(newFakeKV(), "quarry:", time.Hour, 90*time.Minute, nil, zap.NewNop())
	if got := c.TTLFor(20, 5); got != 90*time.Minute {
		t.Errorf("TTL must be capped at max, got %v", got)
	}
}

func TestInvalidate_TargetsOneScope(t *testing.T) {
	kv := newFakeKV()
	c := newCache(kv)
	ctx := context.Background()

	results := []domain.Chunk{{DocumentID: "d", Text: "t"}}
	keyA := c.Key("q1", "lib-a", 5, "u")
	keyA2 := c.Key("q2", "lib-a", 5, "u")
	keyB := c.Key("q1", "lib-b", 5, "u")
	for _, k := range []string{keyA, keyA2, keyB} {
		if err := c.Put(ctx, k, "q", results); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	n, err := c.Invalidate(ctx, "lib-a")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 purged entries, got %d", n)
	}
	if _, ok := c.Get(ctx, keyA); ok {
		t.Error("lib-a entry survived invalidation")
	}
	if _, ok := c.Get(ctx, keyB); !ok {
		t.Error("lib-b entry must survive lib-a invalidation")
	}
}
