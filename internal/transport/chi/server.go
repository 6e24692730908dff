package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/domain"
	answeruc "github.com/quarryhq/quarry/internal/usecase/answer"
	healthuc "github.com/quarryhq/quarry/internal/usecase/health"
	ingestuc "github.com/quarryhq/quarry/internal/usecase/ingest"
)

const maxBatchSize = 100

// Error codes returned to clients.
const (
	codeBadRequest        = "bad_request"
	codeInvalidRequest    = "invalid_request"
	codeUnauthorized      = "unauthorized"
	codeDocumentNotFound  = "document_not_found"
	codeEmbeddingProvider = "embedding_provider_error"
	codeAnswerUnavailable = "answer_unavailable"
	codeInternalError     = "internal_error"
)

// Searcher is the retrieval surface the transport exposes.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, scopes []string, identity string) ([]domain.Chunk, error)
	Invalidate(ctx context.Context, scope string) (int, error)
	Rebuild(ctx context.Context, scope string) error
}

// Asker answers questions over the corpus.
type Asker interface {
	Ask(ctx context.Context, question, role string, scopes []string, identity string) (*answeruc.Response, error)
}

// Ingestor accepts chunk writes.
type Ingestor interface {
	Upsert(ctx context.Context, scope string, docs []ingestuc.Document) (int, error)
	Delete(ctx context.Context, scope, id string) error
}

// Checker reports component health.
type Checker interface {
	Check(ctx context.Context) healthuc.Status
}

// Server exposes the retrieval API over chi.
type Server struct {
	search Searcher
	asker  Asker
	ingest Ingestor
	health Checker
	logger *zap.Logger
}

// NewServer creates the HTTP API server.
func NewServer(search Searcher, asker Asker, ingest Ingestor, health Checker, logger *zap.Logger) *Server {
	return &Server{search: search, asker: asker, ingest: ingest, health: health, logger: logger}
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/search", s.handleSearch)
	r.Post("/v1/ask", s.handleAsk)
	r.Put("/v1/scopes/{scope}/documents", s.handleUpsert)
	r.Delete("/v1/scopes/{scope}/documents/{id}", s.handleDelete)
	r.Post("/v1/scopes/{scope}/invalidate", s.handleInvalidate)
	r.Post("/v1/rebuild", s.handleRebuild)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type searchRequest struct {
	Query  string   `json:"query"`
	TopK   int      `json:"top_k"`
	Scopes []string `json:"scopes"`
}

type chunkResponse struct {
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type searchResponse struct {
	Items []chunkResponse `json:"items"`
	Total int             `json:"total"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	results, err := s.search.Search(r.Context(), req.Query, req.TopK, req.Scopes, IdentityFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Items: chunksToResponse(results),
		Total: len(results),
	})
}

type askRequest struct {
	Question string   `json:"question"`
	Role     string   `json:"role"`
	Scopes   []string `json:"scopes"`
}

type askResponse struct {
	Answer     string          `json:"answer"`
	References []chunkResponse `json:"references"`
	LatencyMS  int64           `json:"latency_ms"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := s.asker.Ask(r.Context(), req.Question, req.Role, req.Scopes, IdentityFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:     resp.Answer,
		References: chunksToResponse(resp.References),
		LatencyMS:  resp.LatencyMS,
	})
}

type upsertRequest struct {
	Documents []upsertDocument `json:"documents"`
}

type upsertDocument struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata"`
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 || len(req.Documents) > maxBatchSize {
		writeError(w, http.StatusBadRequest, codeInvalidRequest,
			"documents count must be between 1 and 100")
		return
	}

	docs := make([]ingestuc.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = ingestuc.Document{
			ID:         d.ID,
			DocumentID: d.DocumentID,
			Text:       d.Text,
			Metadata:   d.Metadata,
		}
	}

	n, err := s.ingest.Upsert(r.Context(), scope, docs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"ingested": n})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	id := chi.URLParam(r, "id")

	if err := s.ingest.Delete(r.Context(), scope, id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")

	purged, err := s.search.Invalidate(r.Context(), scope)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": purged})
}

type rebuildRequest struct {
	Scope string `json:"scope"`
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	if err := s.search.Rebuild(r.Context(), req.Scope); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if st.Status == "unavailable" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, st)
}

func chunksToResponse(in []domain.Chunk) []chunkResponse {
	out := make([]chunkResponse, len(in))
	for i, c := range in {
		out[i] = chunkResponse{
			DocumentID: c.DocumentID,
			Text:       c.Text,
			Score:      c.Score,
			Source:     string(c.Source),
			Metadata:   c.Metadata,
		}
	}
	return out
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, domain.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, codeDocumentNotFound, domain.ErrDocumentNotFound.Error())
	case errors.Is(err, domain.ErrScopeNotFound):
		writeError(w, http.StatusNotFound, codeDocumentNotFound, domain.ErrScopeNotFound.Error())
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		writeError(w, http.StatusBadGateway, codeEmbeddingProvider, domain.ErrEmbeddingProviderError.Error())
	case errors.Is(err, domain.ErrAnswerUnavailable):
		writeError(w, http.StatusBadGateway, codeAnswerUnavailable, domain.ErrAnswerUnavailable.Error())
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
