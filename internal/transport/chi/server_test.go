package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/domain"
	answeruc "github.com/quarryhq/quarry/internal/usecase/answer"
	healthuc "github.com/quarryhq/quarry/internal/usecase/health"
	ingestuc "github.com/quarryhq/quarry/internal/usecase/ingest"
)

type fakeSearcher struct {
	results      []domain.Chunk
	err          error
	lastIdentity string
	lastScopes   []string
	invalidated  []string
	rebuilt      []string
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int, scopes []string, identity string) ([]domain.Chunk, error) {
	f.lastIdentity = identity
	f.lastScopes = scopes
	return f.results, f.err
}

func (f *fakeSearcher) Invalidate(_ context.Context, scope string) (int, error) {
	f.invalidated = append(f.invalidated, scope)
	return 3, nil
}

func (f *fakeSearcher) Rebuild(_ context.Context, scope string) error {
	f.rebuilt = append(f.rebuilt, scope)
	return nil
}

type fakeAsker struct {
	resp *answeruc.Response
	err  error
}

func (f *fakeAsker) Ask(context.Context, string, string, []string, string) (*answeruc.Response, error) {
	return f.resp, f.err
}

type fakeIngestor struct {
	upserted  int
	err       error
	deleted   []string
	deleteErr error
}

func (f *fakeIngestor) Upsert(_ context.Context, _ string, docs []ingestuc.Document) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.upserted += len(docs)
	return len(docs), nil
}

func (f *fakeIngestor) Delete(_ context.Context, _, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeChecker struct {
	status healthuc.Status
}

func (f *fakeChecker) Check(context.Context) healthuc.Status { return f.status }

func newTestRouter(search *fakeSearcher, asker *fakeAsker, ingest *fakeIngestor, check *fakeChecker) http.Handler {
	if check == nil {
		check = &fakeChecker{status: healthuc.Status{Status: "ok"}}
	}
	srv := NewServer(search, asker, ingest, check, zap.NewNop())
	r := chi.NewRouter()
	srv.Register(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleSearch(t *testing.T) {
	search := &fakeSearcher{results: []domain.Chunk{
		{DocumentID: "d1", Text: "valve repair", Score: 0.8, Source: domain.SourceReranked},
	}}
	h := newTestRouter(search, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/search", searchRequest{Query: "valve", TopK: 5, Scopes: []string{"lib-a"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || resp.Items[0].DocumentID != "d1" || resp.Items[0].Source != "reranked" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(search.lastScopes) != 1 || search.lastScopes[0] != "lib-a" {
		t.Errorf("scopes not forwarded: %v", search.lastScopes)
	}
}

func TestHandleSearch_InvalidQuery(t *testing.T) {
	search := &fakeSearcher{err: domain.ErrInvalidRequest}
	h := newTestRouter(search, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/search", searchRequest{Query: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSearch_MalformedBody(t *testing.T) {
	h := newTestRouter(&fakeSearcher{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleAsk(t *testing.T) {
	asker := &fakeAsker{resp: &answeruc.Response{
		Answer:     "Close the valve first.",
		References: []domain.Chunk{{DocumentID: "d1", Text: "t"}},
		LatencyMS:  42,
	}}
	h := newTestRouter(&fakeSearcher{}, asker, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/ask", askRequest{Question: "how?", Role: "operator"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp askResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Close the valve first." || len(resp.References) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleAsk_ModelDown(t *testing.T) {
	asker := &fakeAsker{err: domain.ErrAnswerUnavailable}
	h := newTestRouter(&fakeSearcher{}, asker, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/ask", askRequest{Question: "q"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandleUpsert(t *testing.T) {
	ingest := &fakeIngestor{}
	h := newTestRouter(&fakeSearcher{}, nil, ingest, nil)

	rec := doJSON(t, h, http.MethodPut, "/v1/scopes/lib-a/documents", upsertRequest{
		Documents: []upsertDocument{{ID: "c1", DocumentID: "d1", Text: "valve"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ingest.upserted != 1 {
		t.Errorf("expected 1 upserted, got %d", ingest.upserted)
	}
}

func TestHandleUpsert_EmptyBatch(t *testing.T) {
	h := newTestRouter(&fakeSearcher{}, nil, &fakeIngestor{}, nil)

	rec := doJSON(t, h, http.MethodPut, "/v1/scopes/lib-a/documents", upsertRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleUpsert_ProviderDown(t *testing.T) {
	ingest := &fakeIngestor{err: domain.ErrEmbeddingProviderError}
	h := newTestRouter(&fakeSearcher{}, nil, ingest, nil)

	rec := doJSON(t, h, http.MethodPut, "/v1/scopes/lib-a/documents", upsertRequest{
		Documents: []upsertDocument{{ID: "c1", Text: "t"}},
	})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandleDelete(t *testing.T) {
	ingest := &fakeIngestor{}
	h := newTestRouter(&fakeSearcher{}, nil, ingest, nil)

	rec := doJSON(t, h, http.MethodDelete, "/v1/scopes/lib-a/documents/c1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(ingest.deleted) != 1 || ingest.deleted[0] != "c1" {
		t.Errorf("unexpected deletes: %v", ingest.deleted)
	}
}

func TestHandleDelete_Missing(t *testing.T) {
	ingest := &fakeIngestor{deleteErr: domain.ErrDocumentNotFound}
	h := newTestRouter(&fakeSearcher{}, nil, ingest, nil)

	rec := doJSON(t, h, http.MethodDelete, "/v1/scopes/lib-a/documents/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleInvalidate(t *testing.T) {
	search := &fakeSearcher{}
	h := newTestRouter(search, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/scopes/lib-a/invalidate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(search.invalidated) != 1 || search.invalidated[0] != "lib-a" {
		t.Errorf("unexpected invalidations: %v", search.invalidated)
	}

	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["purged"] != 3 {
		t.Errorf("purged = %d, want 3", resp["purged"])
	}
}

func TestHandleRebuild(t *testing.T) {
	search := &fakeSearcher{}
	h := newTestRouter(search, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/rebuild", rebuildRequest{Scope: "lib-a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(search.rebuilt) != 1 || search.rebuilt[0] != "lib-a" {
		t.Errorf("unexpected rebuilds: %v", search.rebuilt)
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		status     healthuc.Status
		wantStatus int
	}{
		{"healthy", healthuc.Status{Status: "ok"}, http.StatusOK},
		{"degraded still serves", healthuc.Status{Status: "degraded"}, http.StatusOK},
		{"db down", healthuc.Status{Status: "unavailable"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&fakeSearcher{}, nil, nil, &fakeChecker{status: tt.status})
			rec := doJSON(t, h, http.MethodGet, "/health", nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleSearch_InternalErrorHidesDetail(t *testing.T) {
	search := &fakeSearcher{err: errors.New("redis: connection pool exhausted at 10.0.3.7")}
	h := newTestRouter(search, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/search", searchRequest{Query: "q"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("10.0.3.7")) {
		t.Error("internal detail must not leak to clients")
	}
}
