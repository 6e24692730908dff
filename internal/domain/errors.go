package domain

import "errors"

var (
	// ErrScopeNotFound signals a scope with no backing collection.
	ErrScopeNotFound = errors.New("scope not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRerankerUnavailable signals that the cross-encoder model is not loaded.
	ErrRerankerUnavailable = errors.New("reranker unavailable")
	// ErrAnswerUnavailable signals that the answer LLM call failed.
	ErrAnswerUnavailable = errors.New("answer generation unavailable")
	// ErrInvalidRequest signals a malformed search or ingest request.
	ErrInvalidRequest = errors.New("invalid request")
)
