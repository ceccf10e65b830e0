package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// BatchProcessor embeds batches of documents and stores the new vectors.
type BatchProcessor struct {
	documents storage.DocumentRepository
	embedder  ai.Embedder
	backoff   Backoff
}

// NewBatchProcessor creates a processor that retries embedding calls
// according to backoff.
func NewBatchProcessor(documents storage.DocumentRepository, embedder ai.Embedder, backoff Backoff) *BatchProcessor {
	return &BatchProcessor{
		documents: documents,
		embedder:  embedder,
		backoff:   backoff,
	}
}

// Process replaces the vectors of docs and returns their dimension.
// Every vector of the batch must have the same non-zero length.
func (bp *BatchProcessor) Process(ctx context.Context, docs []*core.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	var vectors [][]float32
	err := bp.backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(docs) {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(docs), len(vectors))
	}

	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return 0, fmt.Errorf("%w: empty vector for document %d", ErrEmbeddingMismatch, docs[i].Id)
		}
		if len(v) != dims {
			return 0, fmt.Errorf("%w: %d and %d", ErrDimensionMismatch, dims, len(v))
		}
		docs[i].Vector = v
	}

	if _, err := bp.documents.UpdateDocuments(ctx, docs...); err != nil {
		return 0, fmt.Errorf("update documents: %w", err)
	}
	return dims, nil
}
