package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// Searcher runs similarity search over the documents of a collection.
type Searcher struct {
	collections storage.CollectionRepository
	documents   storage.DocumentRepository
	provider    ai.AIProvider
	logger      *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// TextOptions tunes SearchText. A nil Threshold and a zero Limit fall back
// to the collection's Threshold and DocumentCount.
type TextOptions struct {
	Threshold *float32
	Limit     int
	Monitor   SearchMonitor
}

// NewSearcher creates a new searcher.
func NewSearcher(
	collections storage.CollectionRepository,
	documents storage.DocumentRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Searcher, error) {
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		collections: collections,
		documents:   documents,
		provider:    provider,
		logger:      slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search ranks the documents of a collection against a query vector.
// It returns at most limit results scoring at least threshold.
func (s *Searcher) Search(ctx context.Context, collectionID core.ID, query []float32, threshold float32, limit int) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, collectionID, query, threshold, limit, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, collectionID core.ID, query []float32, threshold float32, limit int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(collectionID, "")

	collection, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, collection, query, threshold, limit, monitor)
}

// SearchText embeds text with the collection's model and ranks the
// collection's documents against it.
func (s *Searcher) SearchText(ctx context.Context, collectionID core.ID, text string, opts TextOptions) ([]*core.SearchResult, error) {
	monitor := opts.Monitor
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	monitor.Start(collectionID, text)

	collection, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	embedder, err := s.provider.Embedder(collection.Model)
	if err != nil {
		return nil, err
	}
	vector, err := embedder.EmbedText(ctx, text)
	if err != nil {
		s.logger.Error("error generating embedding for query", "collection", collection.Name, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(vector)

	threshold := collection.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	limit := opts.Limit
	if limit == 0 {
		limit = collection.DocumentCount
	}

	return s.rank(ctx, collection, vector, threshold, limit, monitor)
}

func (s *Searcher) rank(ctx context.Context, collection *core.Collection, query []float32, threshold float32, limit int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if collection.Dimensions > 0 && len(query) != collection.Dimensions {
		return nil, s.mismatch(collection, len(query), collection.Dimensions)
	}

	candidates, err := s.documents.GetDocumentsByCollection(ctx, collection.Id)
	if err != nil {
		s.logger.Error("error loading candidates", "collection", collection.Name, "err", err)
		return nil, err
	}
	monitor.AfterCandidateLoad(candidates)

	for _, doc := range candidates {
		if doc.Enabled() && len(doc.Vector) != len(query) {
			return nil, s.mismatch(collection, len(query), len(doc.Vector))
		}
	}

	results := Rank(query, candidates, threshold, limit)
	s.logger.Debug("search finished",
		"collection", collection.Name,
		"candidates", len(candidates),
		"results", len(results),
		"threshold", threshold)
	monitor.Finish(results)

	return results, nil
}

func (s *Searcher) mismatch(collection *core.Collection, query, stored int) error {
	s.logger.Error("query and collection were embedded with different models",
		"collection", collection.Name,
		"model", collection.Model,
		"queryDimensions", query,
		"storedDimensions", stored)
	return fmt.Errorf("%w: query has %d dimensions, collection %q has %d", ErrDimensionMismatch, query, collection.Name, stored)
}
