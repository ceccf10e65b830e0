package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when a Backoff allows no attempts.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	ErrCollectionRepositoryRequired = errors.New("collection repository is required")
	ErrDocumentRepositoryRequired   = errors.New("document repository is required")
	ErrAIProviderRequired           = errors.New("AI provider is required")

	// ErrEmbeddingMismatch is returned when the provider answers with the
	// wrong number of vectors or an empty vector.
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")

	// ErrDimensionMismatch is returned when the model produces vectors of
	// different lengths within one run.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
