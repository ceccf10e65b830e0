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


// Package kbase is a local knowledge base: files, web pages and notes are
// ingested through a workload-aware queue into chunked, embedded documents
// that can be searched by similarity.
package kbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/ai/ollama"
	"github.com/poiesic/kbase/ai/openai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/metrics"
	"github.com/poiesic/kbase/queue"
	"github.com/poiesic/kbase/reembed"
	"github.com/poiesic/kbase/search"
	"github.com/poiesic/kbase/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
)

// cancelPollInterval is how often DeleteCollection checks that cancelled
// tasks have settled.
const cancelPollInterval = 10 * time.Millisecond

type Database struct {
	repos    *badger.Repositories
	provider ai.AIProvider
	queue    *queue.Queue
	tracker  *ingestion.Tracker
	searcher *search.Searcher
	recorder *metrics.Recorder
	base     *slog.Logger
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig       *ai.Config
	provider       ai.AIProvider
	queueConfig    queue.Config
	inMemory       bool
	logger         *slog.Logger
	registerer     prometheus.Registerer
	fetcher        ingestion.Fetcher
	embedBatchSize int
}

// WithAIConfig selects the embedding service. Ignored when WithProvider is
// used.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithProvider uses an existing provider. The database closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithQueueConfig sets the ingestion queue limits.
func WithQueueConfig(config queue.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.queueConfig = config
	}
}

// WithInMemory keeps everything in memory; the file path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics registers queue metrics with reg.
func WithMetrics(reg prometheus.Registerer) DatabaseOption {
	return func(o *databaseOptions) {
		o.registerer = reg
	}
}

// WithFetcher replaces the HTTP fetcher used for URL sources.
func WithFetcher(fetcher ingestion.Fetcher) DatabaseOption {
	return func(o *databaseOptions) {
		o.fetcher = fetcher
	}
}

// WithEmbedBatchSize sets how many chunks are embedded per provider call.
func WithEmbedBatchSize(size int) DatabaseOption {
	return func(o *databaseOptions) {
		o.embedBatchSize = size
	}
}

// NewProvider creates the provider for config's backend.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	switch config.Backend {
	case ai.BackendOllama:
		return ollama.NewProvider(config)
	default:
		return openai.NewProvider(config)
	}
}

// NewDatabase opens the database at filePath and starts the ingestion queue.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig:    ai.DefaultConfig(),
		queueConfig: queue.DefaultConfig(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}
	repos, err := badger.NewRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = NewProvider(options.aiConfig)
		if err != nil {
			repos.Close()
			return nil, err
		}
	}

	db := &Database{
		repos:    repos,
		provider: provider,
		base:     logger,
		logger:   logger.With("component", "database"),
	}
	if err := db.start(options); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// start wires the queue and everything that follows it.
func (db *Database) start(options *databaseOptions) error {
	pipelineOpts := []ingestion.Option{ingestion.WithLogger(options.logger)}
	if options.fetcher != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithFetcher(options.fetcher))
	}
	if options.embedBatchSize != 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithEmbedBatchSize(options.embedBatchSize))
	}
	pipeline, err := ingestion.NewPipeline(db.repos.Collections, db.repos.Documents, db.provider, pipelineOpts...)
	if err != nil {
		return err
	}

	db.searcher, err = search.NewSearcher(db.repos.Collections, db.repos.Documents, db.provider, search.WithLogger(options.logger))
	if err != nil {
		return err
	}

	db.queue, err = queue.New(pipeline, queue.WithConfig(options.queueConfig), queue.WithLogger(options.logger))
	if err != nil {
		return err
	}

	db.tracker, err = ingestion.NewTracker(db.queue, db.repos.Collections, db.repos.Sources, db.repos.Documents,
		ingestion.WithTrackerLogger(options.logger))
	if err != nil {
		return err
	}

	if options.registerer != nil {
		db.recorder, err = metrics.NewRecorder(db.queue, options.registerer, metrics.WithLogger(options.logger))
		if err != nil {
			return err
		}
	}
	return nil
}

// Close stops the queue, cancelling unfinished tasks, and closes storage and
// the provider. It is safe to call more than once.
func (db *Database) Close() error {
	db.closeOnce.Do(func() {
		var errs []error
		if db.queue != nil {
			errs = append(errs, db.queue.Close())
		}
		if db.tracker != nil {
			errs = append(errs, db.tracker.Close())
		}
		if db.recorder != nil {
			errs = append(errs, db.recorder.Close())
		}
		if err := db.repos.Close(); err != nil {
			db.logger.Error("error closing storage", "err", err)
			errs = append(errs, err)
		}
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
		db.closeErr = errors.Join(errs...)
	})
	return db.closeErr
}

// Queue returns the ingestion queue, for status, events and task control.
func (db *Database) Queue() *queue.Queue {
	return db.queue
}

// Collections

// CreateCollection stores a new collection. An empty Model selects the
// provider's default model.
func (db *Database) CreateCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error) {
	if collection.Model == "" {
		collection.Model = db.provider.DefaultModel()
	}
	created, err := db.repos.Collections.AddCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	db.logger.Info("collection created", "collection", created.Name, "id", created.Id, "model", created.Model)
	return created, nil
}

func (db *Database) GetCollection(ctx context.Context, id core.ID) (*core.Collection, error) {
	return db.repos.Collections.GetCollection(ctx, id)
}

func (db *Database) GetCollectionByName(ctx context.Context, name string) (*core.Collection, error) {
	return db.repos.Collections.GetCollectionByName(ctx, name)
}

func (db *Database) ListCollections(ctx context.Context) ([]*core.Collection, error) {
	return db.repos.Collections.ListCollections(ctx)
}

// UpdateCollection changes a collection's settings. Model and Dimensions
// are kept; switching models goes through Reembed. Chunking changes apply
// to sources ingested afterwards.
func (db *Database) UpdateCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error) {
	current, err := db.repos.Collections.GetCollection(ctx, collection.Id)
	if err != nil {
		return nil, err
	}
	updated := *collection
	updated.Model = current.Model
	updated.Dimensions = current.Dimensions
	updated.InsertedAt = current.InsertedAt
	updated.ApplyDefaults()
	return db.repos.Collections.UpdateCollection(ctx, &updated)
}

// DeleteCollection cancels the collection's ingestion tasks, waits for them
// to stop and removes the collection with its documents and sources.
func (db *Database) DeleteCollection(ctx context.Context, id core.ID) error {
	collection, err := db.repos.Collections.GetCollection(ctx, id)
	if err != nil {
		return err
	}

	for _, task := range db.collectionTasks(id) {
		db.queue.CancelTask(task.ID)
	}
	if err := db.waitIdle(ctx, func() []queue.Task { return db.collectionTasks(id) }); err != nil {
		return err
	}

	if err := db.repos.Collections.DeleteCollection(ctx, id); err != nil {
		return err
	}
	docs, err := db.repos.Documents.DeleteDocumentsByCollection(ctx, id)
	if err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	if _, err := db.repos.Sources.DeleteSourcesByCollection(ctx, id); err != nil {
		return fmt.Errorf("delete sources: %w", err)
	}
	db.logger.Info("collection deleted", "collection", collection.Name, "id", id, "documents", docs)
	return nil
}

// collectionTasks returns the active and failed tasks of a collection.
func (db *Database) collectionTasks(id core.ID) []queue.Task {
	var tasks []queue.Task
	for _, task := range append(db.queue.GetActiveTasks(), db.queue.GetFailedTasks()...) {
		if task.CollectionID == id {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// sourceTasks returns the active and failed tasks that write to a source.
func (db *Database) sourceTasks(collectionID, sourceID core.ID) []queue.Task {
	var tasks []queue.Task
	for _, task := range db.collectionTasks(collectionID) {
		if ingestion.SourceID(task) == sourceID {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// waitIdle returns once tasks reports nothing left in the queue.
func (db *Database) waitIdle(ctx context.Context, tasks func() []queue.Task) error {
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()
	for len(tasks()) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Ingestion

// AddFile queues a file for ingestion. Submitting a file with the same name
// again replaces the documents of the earlier submission.
func (db *Database) AddFile(ctx context.Context, collectionID core.ID, name string, data []byte) (*queue.Future[queue.Task], error) {
	return db.submit(ctx, collectionID, queue.FilePayload{FileName: name, Data: data})
}

// AddURL queues a web page for ingestion. The page is fetched when the task
// runs.
func (db *Database) AddURL(ctx context.Context, collectionID core.ID, url string) (*queue.Future[queue.Task], error) {
	return db.submit(ctx, collectionID, queue.URLPayload{URL: url})
}

// AddNote queues a text note for ingestion.
func (db *Database) AddNote(ctx context.Context, collectionID core.ID, title, text string) (*queue.Future[queue.Task], error) {
	return db.submit(ctx, collectionID, queue.NotePayload{Title: title, Text: text})
}

// Refresh re-ingests an existing source, replacing its documents. URL
// sources are fetched again when data is nil; other sources need data.
func (db *Database) Refresh(ctx context.Context, collectionID, sourceID core.ID, data []byte) (*queue.Future[queue.Task], error) {
	source, err := db.repos.Sources.GetSource(ctx, collectionID, sourceID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		if source.Kind != string(queue.KindURL) {
			return nil, ErrRefreshDataRequired
		}
		return db.submit(ctx, collectionID, queue.URLPayload{URL: source.Name})
	}
	return db.submit(ctx, collectionID, queue.RefreshPayload{
		SourceID: sourceID,
		FileName: source.Name,
		Data:     data,
	})
}

func (db *Database) submit(ctx context.Context, collectionID core.ID, payload queue.Payload) (*queue.Future[queue.Task], error) {
	if _, err := db.repos.Collections.GetCollection(ctx, collectionID); err != nil {
		return nil, err
	}
	return db.queue.AddTask(db.queue.CreateTask(collectionID, payload)), nil
}

// ListSources returns the submitted sources of a collection with their
// ingestion state.
func (db *Database) ListSources(ctx context.Context, collectionID core.ID) ([]*core.Source, error) {
	return db.repos.Sources.ListSources(ctx, collectionID)
}

// DeleteSource cancels the tasks still writing to a source, waits for them
// to stop and removes the source with the documents produced from it.
func (db *Database) DeleteSource(ctx context.Context, collectionID, sourceID core.ID) error {
	if _, err := db.repos.Sources.GetSource(ctx, collectionID, sourceID); err != nil {
		return err
	}

	for _, task := range db.sourceTasks(collectionID, sourceID) {
		db.queue.CancelTask(task.ID)
	}
	if err := db.waitIdle(ctx, func() []queue.Task { return db.sourceTasks(collectionID, sourceID) }); err != nil {
		return err
	}
	db.tracker.Forget(collectionID, sourceID)

	if _, err := db.repos.Documents.DeleteDocumentsBySource(ctx, collectionID, sourceID); err != nil {
		return err
	}
	return db.repos.Sources.DeleteSource(ctx, collectionID, sourceID)
}

// Documents

func (db *Database) ListDocuments(ctx context.Context, collectionID core.ID) ([]*core.Document, error) {
	return db.repos.Documents.GetDocumentsByCollection(ctx, collectionID)
}

func (db *Database) DeleteDocument(ctx context.Context, id core.ID) error {
	return db.repos.Documents.DeleteDocuments(ctx, id)
}

// SetDocumentEnabled includes or excludes a document from search results.
func (db *Database) SetDocumentEnabled(ctx context.Context, id core.ID, enabled bool) (*core.Document, error) {
	doc, err := db.repos.Documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Enabled() == enabled {
		return doc, nil
	}
	doc.Metadata.Disabled = !enabled
	updated, err := db.repos.Documents.UpdateDocuments(ctx, doc)
	if err != nil {
		return nil, err
	}
	return updated[0], nil
}

// Search

// Search ranks a collection's documents against a query vector.
func (db *Database) Search(ctx context.Context, collectionID core.ID, query []float32, threshold float32, limit int) ([]*core.SearchResult, error) {
	return db.searcher.Search(ctx, collectionID, query, threshold, limit)
}

// SearchText embeds text with the collection's model and ranks the
// collection's documents against it.
func (db *Database) SearchText(ctx context.Context, collectionID core.ID, text string, opts search.TextOptions) ([]*core.SearchResult, error) {
	return db.searcher.SearchText(ctx, collectionID, text, opts)
}

// Reembed re-embeds every document of a collection with model, which
// becomes the collection's model. The collection must have no tasks in the
// queue. opts are applied after the progress writer and logger.
func (db *Database) Reembed(ctx context.Context, collectionID core.ID, model string, progress io.Writer, opts ...reembed.Option) (*reembed.Result, error) {
	if len(db.collectionTasks(collectionID)) > 0 {
		return nil, ErrCollectionBusy
	}
	opts = append([]reembed.Option{
		reembed.WithProgress(progress),
		reembed.WithLogger(db.base),
	}, opts...)
	r, err := reembed.NewReembedder(db.repos.Collections, db.repos.Documents, db.provider, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, collectionID, model)
}
