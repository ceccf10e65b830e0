package ai

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// AIProvider hands out embedders for the models used by collections.
type AIProvider interface {
	// Embedder returns an embedder bound to model. An empty model selects
	// DefaultModel. The returned Embedder is safe for concurrent use.
	Embedder(model string) (Embedder, error)

	// DefaultModel returns the model used when a collection names none.
	DefaultModel() string

	// Close releases resources held by the provider and its embedders.
	// After Close is called, the provider and its embedders should not be used.
	Close() error
}
