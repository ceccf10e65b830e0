// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// Config holds configuration for a reembedding run.
type Config struct {
	// BatchSize is the number of documents embedded per provider call
	BatchSize int

	// ReportInterval is how often to report progress, in documents
	ReportInterval int

	// MaxRetries is the number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: DefaultBatchSize,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// Result summarises a completed run.
type Result struct {
	CollectionID core.ID
	Model        string
	Dimensions   int
	Documents    int
	Elapsed      time.Duration
}

// Reembedder replaces the vectors of every document in a collection.
type Reembedder struct {
	collections storage.CollectionRepository
	documents   storage.DocumentRepository
	provider    ai.AIProvider
	config      *Config
	progress    io.Writer
	logger      *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithConfig replaces DefaultConfig. Zero fields keep their defaults.
func WithConfig(config *Config) Option {
	return func(r *Reembedder) {
		if config == nil {
			return
		}
		c := *config
		d := DefaultConfig()
		if c.BatchSize <= 0 {
			c.BatchSize = d.BatchSize
		}
		if c.ReportInterval <= 0 {
			c.ReportInterval = d.ReportInterval
		}
		if c.MaxRetries <= 0 {
			c.MaxRetries = d.MaxRetries
		}
		if c.RetryDelay <= 0 {
			c.RetryDelay = d.RetryDelay
		}
		r.config = &c
	}
}

// WithProgress sets where progress lines are written.
// Default is io.Discard.
func WithProgress(w io.Writer) Option {
	return func(r *Reembedder) {
		if w != nil {
			r.progress = w
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReembedder creates a reembedder.
func NewReembedder(
	collections storage.CollectionRepository,
	documents storage.DocumentRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Reembedder, error) {
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	r := &Reembedder{
		collections: collections,
		documents:   documents,
		provider:    provider,
		config:      DefaultConfig(),
		progress:    io.Discard,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reembed")
	return r, nil
}

// Run re-embeds every document of a collection with model and records the
// model and its dimension on the collection. An empty model re-embeds with
// the collection's current model, or the provider's default when the
// collection names none.
//
// A failed run leaves already processed batches updated and the collection
// record unchanged; running again completes the switch.
func (r *Reembedder) Run(ctx context.Context, collectionID core.ID, model string) (*Result, error) {
	collection, err := r.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if model == "" {
		model = collection.Model
	}
	if model == "" {
		model = r.provider.DefaultModel()
	}

	embedder, err := r.provider.Embedder(model)
	if err != nil {
		return nil, fmt.Errorf("embedder for %q: %w", model, err)
	}

	iterator := NewDocumentIterator(r.documents, r.config.BatchSize)
	total, err := iterator.Count(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	r.logger.Info("reembedding collection", "collection", collection.Name, "model", model, "documents", total)
	fmt.Fprintf(r.progress, "Reembedding %d documents of %q with %s (batch size: %d)\n",
		total, collection.Name, model, r.config.BatchSize)

	processor := NewBatchProcessor(r.documents, embedder, Backoff{
		MaxAttempts: r.config.MaxRetries,
		BaseDelay:   r.config.RetryDelay,
		Logger:      r.logger,
	})
	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	dims, processed := 0, 0
	err = iterator.ForEach(ctx, collectionID, func(docs []*core.Document) error {
		n, err := processor.Process(ctx, docs)
		if err != nil {
			return err
		}
		if dims != 0 && n != dims {
			return fmt.Errorf("%w: %d and %d", ErrDimensionMismatch, dims, n)
		}
		dims = n
		processed += len(docs)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		r.logger.Error("reembedding failed", "collection", collection.Name, "processed", processed, "err", err)
		return nil, err
	}
	tracker.Finish()

	if dims > 0 {
		collection.Dimensions = dims
	} else if collection.Model != model {
		// Nothing was embedded, so the new model's dimension is unknown.
		collection.Dimensions = 0
	}
	collection.Model = model
	if _, err := r.collections.UpdateCollection(ctx, collection); err != nil {
		return nil, fmt.Errorf("update collection: %w", err)
	}

	result := &Result{
		CollectionID: collectionID,
		Model:        model,
		Dimensions:   collection.Dimensions,
		Documents:    processed,
		Elapsed:      tracker.Elapsed(),
	}
	r.logger.Info("reembedding complete", "collection", collection.Name, "documents", processed, "elapsed", result.Elapsed)
	return result, nil
}
