package domain

import "errors"

var (
	// ErrInvalidQuery signals a malformed search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrSearchUnavailable signals that no query vector could be produced.
	ErrSearchUnavailable = errors.New("search temporarily unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMProviderError signals an LLM expansion provider failure.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrNotImplemented signals an unimplemented feature.
	ErrNotImplemented = errors.New("not implemented")
)

// KeyPrefix namespaces every key designdex writes to the key-value store.
const KeyPrefix = "designdex:"
