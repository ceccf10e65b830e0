package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/chunk"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/parser"
	"github.com/poiesic/kbase/queue"
	"github.com/poiesic/kbase/storage"
)

// DefaultEmbedBatchSize is the number of chunks sent to the embedder per call.
const DefaultEmbedBatchSize = 32

// Progress checkpoints, in percent.
const (
	progressReadStart  = 5
	progressReadDone   = 10
	progressParseStart = 15
	progressParseDone  = 30
	progressChunkStart = 40
	progressChunkDone  = 50
	progressEmbedStart = 60
	progressEmbedDone  = 85
	progressSaveStart  = 95
	progressSaveDone   = 100
)

const parseFailureMessage = "This file format could not be converted to text."

// Pipeline executes ingestion tasks for a queue.
type Pipeline struct {
	collections storage.CollectionRepository
	documents   storage.DocumentRepository
	provider    ai.AIProvider
	parsers     *parser.Registry
	fetcher     Fetcher
	batchSize   int
	logger      *slog.Logger
}

var _ queue.Executor = (*Pipeline)(nil)

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithParsers sets the registry used for binary files.
// Default is parser.NewRegistry().
func WithParsers(registry *parser.Registry) Option {
	return func(p *Pipeline) error {
		if registry == nil {
			return errors.New("nil parser registry")
		}
		p.parsers = registry
		return nil
	}
}

// WithFetcher sets the fetcher for URL tasks submitted without content.
// Default is an HTTPFetcher.
func WithFetcher(fetcher Fetcher) Option {
	return func(p *Pipeline) error {
		if fetcher == nil {
			return errors.New("nil fetcher")
		}
		p.fetcher = fetcher
		return nil
	}
}

// WithEmbedBatchSize sets how many chunks are embedded per request.
// Default is DefaultEmbedBatchSize.
func WithEmbedBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("embed batch size must be at least 1, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	collections storage.CollectionRepository,
	documents storage.DocumentRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Pipeline{
		collections: collections,
		documents:   documents,
		provider:    provider,
		batchSize:   DefaultEmbedBatchSize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	p.logger = p.logger.With("component", "ingestion")
	if p.parsers == nil {
		registry, err := parser.NewRegistry(parser.WithLogger(p.logger))
		if err != nil {
			return nil, err
		}
		p.parsers = registry
	}
	if p.fetcher == nil {
		p.fetcher = NewHTTPFetcher()
	}
	return p, nil
}

// SourceID returns the ID of the source a task feeds. Refresh tasks name
// their source; other tasks are identified by kind and name, so submitting
// the same file twice replaces its documents.
func SourceID(task queue.Task) core.ID {
	if p, ok := task.Payload.(queue.RefreshPayload); ok && p.SourceID != 0 {
		return p.SourceID
	}
	return core.IDFromContent(string(task.Kind) + ":" + task.Name)
}

// checkpoint returns queue.ErrCancelled once ctx is done.
func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return queue.ErrCancelled
	}
	return nil
}

// cancelled maps errors caused by ctx cancellation to queue.ErrCancelled.
func cancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return queue.ErrCancelled
	}
	return err
}

// Execute runs one attempt of task.
func (p *Pipeline) Execute(ctx context.Context, task queue.Task, report queue.ProgressFunc) error {
	logger := p.logger.With("task", task.ID, "name", task.Name)
	started := time.Now()

	if err := checkpoint(ctx); err != nil {
		return err
	}
	report(progressReadStart, queue.StageReading)

	collection, err := p.collections.GetCollection(ctx, task.CollectionID)
	if err != nil {
		return fmt.Errorf("load collection %d: %w", task.CollectionID, cancelled(ctx, err))
	}

	text, data, binary, err := p.read(ctx, task)
	if err != nil {
		return err
	}
	report(progressReadDone, queue.StageReading)
	if err := checkpoint(ctx); err != nil {
		return err
	}

	if binary {
		report(progressParseStart, queue.StageParsing)
		text, err = p.parse(ctx, data, task.Name)
		if err != nil {
			return err
		}
		report(progressParseDone, queue.StageParsing)
	} else {
		report(progressParseDone, queue.StageChunking)
	}
	if err := checkpoint(ctx); err != nil {
		return err
	}

	report(progressChunkStart, queue.StageChunking)
	chunks := chunk.SplitWithOptions(text, chunk.OptionsFor(collection))
	report(progressChunkDone, queue.StageChunking)
	logger.Debug("text chunked", "chars", len(text), "chunks", len(chunks), "strategy", collection.ChunkStrategy)
	if err := checkpoint(ctx); err != nil {
		return err
	}

	report(progressEmbedStart, queue.StageEmbedding)
	vectors, err := p.embed(ctx, collection, chunks, report)
	if err != nil {
		return err
	}
	report(progressEmbedDone, queue.StageEmbedding)
	if err := checkpoint(ctx); err != nil {
		return err
	}

	report(progressSaveStart, queue.StageSaving)
	sourceID := SourceID(task)
	saved, err := p.save(ctx, collection, task, sourceID, chunks, vectors)
	if err != nil {
		return err
	}
	report(progressSaveDone, queue.StageSaving)

	logger.Info("ingested source",
		"collection", collection.Id,
		"source", sourceID,
		"documents", saved,
		"elapsed", time.Since(started))
	return nil
}

// read returns the task's text, or its raw bytes when they need parsing.
func (p *Pipeline) read(ctx context.Context, task queue.Task) (text string, data []byte, binary bool, err error) {
	switch payload := task.Payload.(type) {
	case queue.FilePayload:
		data = payload.Data
	case queue.RefreshPayload:
		data = payload.Data
	case queue.NotePayload:
		return payload.Text, nil, false, nil
	case queue.URLPayload:
		if payload.Content != "" {
			return payload.Content, nil, false, nil
		}
		fetched, fetchErr := p.fetcher.Fetch(ctx, payload.URL)
		if fetchErr != nil {
			return "", nil, false, cancelled(ctx, fetchErr)
		}
		return fetched, nil, false, nil
	default:
		return "", nil, false, fmt.Errorf("%w: %T", ErrUnsupportedPayload, task.Payload)
	}

	if parser.IsBinary(task.Name) {
		return "", data, true, nil
	}
	return parser.DecodeText(data), nil, false, nil
}

// parse extracts text from a binary file. A failed parse yields a
// placeholder naming the file so the task still produces a document.
func (p *Pipeline) parse(ctx context.Context, data []byte, filename string) (string, error) {
	text, err := p.parsers.Parse(ctx, data, filename)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", queue.ErrCancelled
	}
	p.logger.Warn("using placeholder for unparsed file", "file", filename, "err", err)
	return Placeholder(filename, err), nil
}

// Placeholder is the text stored for a file whose content could not be
// extracted.
func Placeholder(filename string, err error) string {
	return fmt.Sprintf("[%s]\n\n%s\n\n%s", filename, parseFailureMessage, err.Error())
}

// embed embeds chunks in batches, advancing progress across the embedding
// range after every batch.
func (p *Pipeline) embed(ctx context.Context, collection *core.Collection, chunks []string, report queue.ProgressFunc) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	embedder, err := p.provider.Embedder(collection.Model)
	if err != nil {
		return nil, err
	}

	dims := collection.Dimensions
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.batchSize {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}

		end := min(start+p.batchSize, len(chunks))
		batch, err := embedder.EmbedTexts(ctx, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, cancelled(ctx, err))
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingMismatch, end-start, len(batch))
		}

		for i, vector := range batch {
			if len(vector) == 0 {
				return nil, fmt.Errorf("chunk %d: %w", start+i, core.ErrEmptyVector)
			}
			if dims == 0 {
				dims = len(vector)
			}
			if len(vector) != dims {
				p.logger.Error("embedding dimensions do not match collection",
					"collection", collection.Id,
					"model", collection.Model,
					"expected", dims,
					"actual", len(vector))
				return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dims, len(vector))
			}
		}
		vectors = append(vectors, batch...)

		report(progressEmbedStart+(progressEmbedDone-progressEmbedStart)*end/len(chunks), queue.StageEmbedding)
	}
	return vectors, nil
}

// save replaces the source's documents in the collection. Once the old
// documents are deleted the new ones are written even if ctx is cancelled,
// so a source is never left half replaced.
func (p *Pipeline) save(ctx context.Context, collection *core.Collection, task queue.Task, sourceID core.ID, chunks []string, vectors [][]float32) (int, error) {
	if err := checkpoint(ctx); err != nil {
		return 0, err
	}

	removed, err := p.documents.DeleteDocumentsBySource(ctx, collection.Id, sourceID)
	if err != nil {
		return 0, fmt.Errorf("remove previous documents: %w", cancelled(ctx, err))
	}
	if removed > 0 {
		p.logger.Debug("replaced previous documents", "source", sourceID, "removed", removed)
	}
	if len(chunks) == 0 {
		p.logger.Warn("source produced no text", "task", task.ID, "name", task.Name)
		return 0, nil
	}

	fileName := ""
	switch payload := task.Payload.(type) {
	case queue.FilePayload:
		fileName = payload.FileName
	case queue.RefreshPayload:
		fileName = payload.FileName
	}

	now := time.Now().UTC()
	docs := make([]*core.Document, len(chunks))
	for i, content := range chunks {
		docs[i] = &core.Document{
			CollectionId: collection.Id,
			Content:      content,
			Vector:       vectors[i],
			Metadata: core.DocumentMetadata{
				Source:     task.Name,
				FileName:   fileName,
				SourceId:   sourceID,
				ChunkIndex: i,
				Timestamp:  now,
			},
		}
	}

	saveCtx := context.WithoutCancel(ctx)
	if _, err := p.documents.AddDocuments(saveCtx, docs...); err != nil {
		return 0, fmt.Errorf("store documents: %w", err)
	}

	if collection.Dimensions == 0 {
		p.recordDimensions(saveCtx, collection.Id, len(vectors[0]))
	}
	return len(docs), nil
}

// recordDimensions stores the vector length on a collection that did not
// know it yet.
func (p *Pipeline) recordDimensions(ctx context.Context, collectionID core.ID, dims int) {
	current, err := p.collections.GetCollection(ctx, collectionID)
	if err != nil || current.Dimensions != 0 {
		return
	}
	current.Dimensions = dims
	if _, err := p.collections.UpdateCollection(ctx, current); err != nil {
		p.logger.Warn("failed to record collection dimensions", "collection", collectionID, "err", err)
	}
}
