package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/kbase/ai/mock"
	"github.com/poiesic/kbase/chunk"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/parser"
	"github.com/poiesic/kbase/queue"
	"github.com/poiesic/kbase/storage"
	"github.com/poiesic/kbase/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	percent int
	stage   queue.Stage
}

// recordProgress returns a ProgressFunc that appends every report to steps.
func recordProgress(steps *[]step) queue.ProgressFunc {
	return func(percent int, stage queue.Stage) {
		*steps = append(*steps, step{percent, stage})
	}
}

func percents(steps []step) []int {
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = s.percent
	}
	return out
}

type fetcherFunc func(ctx context.Context, url string) (string, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

type stubParser struct {
	text string
	err  error
}

func (s *stubParser) Parse(context.Context, []byte, string) (string, error) {
	return s.text, s.err
}

func newTestRepositories(t *testing.T) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func newTestPipeline(t *testing.T, repos *badger.Repositories, embedder *mock.MockEmbedder, opts ...Option) *Pipeline {
	t.Helper()
	if embedder == nil {
		embedder = mock.NewMockEmbedder()
	}
	p, err := NewPipeline(repos.Collections, repos.Documents, mock.NewMockProviderWithEmbedder(embedder), opts...)
	require.NoError(t, err)
	return p
}

func seedCollection(t *testing.T, repos *badger.Repositories, configure func(*core.Collection)) *core.Collection {
	t.Helper()
	c := &core.Collection{Name: t.Name(), Model: mock.MockModel}
	if configure != nil {
		configure(c)
	}
	added, err := repos.Collections.AddCollection(context.Background(), c)
	require.NoError(t, err)
	return added
}

func newTask(collectionID core.ID, payload queue.Payload) queue.Task {
	return queue.Task{
		ID:           "task-" + payload.Name(),
		Kind:         payload.Kind(),
		Name:         payload.Name(),
		CollectionID: collectionID,
		Payload:      payload,
		SizeHint:     queue.Estimate(payload),
	}
}

func TestNewPipeline(t *testing.T) {
	repos := newTestRepositories(t)
	provider := mock.NewMockProvider()

	tests := []struct {
		name string
		new  func() (*Pipeline, error)
		want error
	}{
		{"nil collections", func() (*Pipeline, error) { return NewPipeline(nil, repos.Documents, provider) }, ErrCollectionRepositoryRequired},
		{"nil documents", func() (*Pipeline, error) { return NewPipeline(repos.Collections, nil, provider) }, ErrDocumentRepositoryRequired},
		{"nil provider", func() (*Pipeline, error) { return NewPipeline(repos.Collections, repos.Documents, nil) }, ErrAIProviderRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.new()
			assert.Equal(t, tt.want, err)
		})
	}

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewPipeline(repos.Collections, repos.Documents, provider, WithEmbedBatchSize(0))
		assert.Error(t, err)
		_, err = NewPipeline(repos.Collections, repos.Documents, provider, WithFetcher(nil))
		assert.Error(t, err)
		_, err = NewPipeline(repos.Collections, repos.Documents, provider, WithParsers(nil))
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		p, err := NewPipeline(repos.Collections, repos.Documents, provider, WithLogger(nil))
		require.NoError(t, err)
		assert.Equal(t, DefaultEmbedBatchSize, p.batchSize)
		assert.NotNil(t, p.parsers)
		assert.NotNil(t, p.fetcher)
	})
}

func TestExecute_TextFile(t *testing.T) {
	repos := newTestRepositories(t)
	p := newTestPipeline(t, repos, nil)
	collection := seedCollection(t, repos, nil)
	ctx := context.Background()

	task := newTask(collection.Id, queue.FilePayload{FileName: "notes.md", Data: []byte("\xEF\xBB\xBFFirst line.\r\nSecond line.")})
	var steps []step
	require.NoError(t, p.Execute(ctx, task, recordProgress(&steps)))

	assert.Equal(t, []int{5, 10, 30, 40, 50, 60, 85, 85, 95, 100}, percents(steps))
	assert.Equal(t, queue.StageReading, steps[0].stage)
	assert.Equal(t, queue.StageChunking, steps[2].stage, "text files skip parsing")
	assert.Equal(t, queue.StageEmbedding, steps[5].stage)
	assert.Equal(t, queue.StageSaving, steps[9].stage)

	docs, err := repos.Documents.GetDocumentsBySource(ctx, collection.Id, SourceID(task))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "First line.\nSecond line.", docs[0].Content)
	assert.Equal(t, "notes.md", docs[0].Metadata.Source)
	assert.Equal(t, "notes.md", docs[0].Metadata.FileName)
	assert.Equal(t, 0, docs[0].Metadata.ChunkIndex)
	assert.Len(t, docs[0].Vector, mock.DefaultDimensions)
	assert.True(t, docs[0].Enabled())

	updated, err := repos.Collections.GetCollection(ctx, collection.Id)
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultDimensions, updated.Dimensions, "first ingestion records the vector length")
}

func TestExecute_EmbedsInBatches(t *testing.T) {
	repos := newTestRepositories(t)

	var calls atomic.Int32
	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 8
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls.Add(1)
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, 8)
		}
		return out, nil
	}
	p := newTestPipeline(t, repos, embedder, WithEmbedBatchSize(2))
	collection := seedCollection(t, repos, func(c *core.Collection) {
		c.ChunkSize = 60
		c.ChunkOverlap = 10
	})

	text := strings.Repeat("The quick brown fox jumps over the dog. ", 12)
	want := chunk.SplitWithOptions(text, chunk.OptionsFor(collection))
	require.Greater(t, len(want), 4)

	task := newTask(collection.Id, queue.NotePayload{Title: "fox", Text: text})
	var steps []step
	require.NoError(t, p.Execute(context.Background(), task, recordProgress(&steps)))

	assert.EqualValues(t, (len(want)+1)/2, calls.Load())
	assert.IsNonDecreasing(t, percents(steps))

	docs, err := repos.Documents.GetDocumentsBySource(context.Background(), collection.Id, SourceID(task))
	require.NoError(t, err)
	require.Len(t, docs, len(want))
	for i, doc := range docs {
		assert.Equal(t, want[i], doc.Content)
		assert.Equal(t, i, doc.Metadata.ChunkIndex)
		assert.Empty(t, doc.Metadata.FileName)
	}
}

func TestExecute_BinaryFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("parsed", func(t *testing.T) {
		repos := newTestRepositories(t)
		registry, err := parser.NewRegistry(parser.WithParser(&stubParser{text: "Extracted report text."}, ".pdf"))
		require.NoError(t, err)
		p := newTestPipeline(t, repos, nil, WithParsers(registry))
		collection := seedCollection(t, repos, nil)

		task := newTask(collection.Id, queue.FilePayload{FileName: "report.pdf", Data: []byte("%PDF-")})
		var steps []step
		require.NoError(t, p.Execute(ctx, task, recordProgress(&steps)))

		assert.Equal(t, step{15, queue.StageParsing}, steps[2])
		assert.Equal(t, step{30, queue.StageParsing}, steps[3])

		docs, err := repos.Documents.GetDocumentsBySource(ctx, collection.Id, SourceID(task))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Extracted report text.", docs[0].Content)
	})

	t.Run("unsupported format becomes placeholder", func(t *testing.T) {
		repos := newTestRepositories(t)
		p := newTestPipeline(t, repos, nil)
		collection := seedCollection(t, repos, nil)

		task := newTask(collection.Id, queue.FilePayload{FileName: "letter.docx", Data: []byte{0x50, 0x4b, 0x03, 0x04}})
		require.NoError(t, p.Execute(ctx, task, func(int, queue.Stage) {}))

		docs, err := repos.Documents.GetDocumentsBySource(ctx, collection.Id, SourceID(task))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.True(t, strings.HasPrefix(docs[0].Content, "[letter.docx]\n\n"))
		assert.Contains(t, docs[0].Content, parser.ErrUnsupportedFormat.Error())
	})

	t.Run("parser error becomes placeholder", func(t *testing.T) {
		repos := newTestRepositories(t)
		registry, err := parser.NewRegistry(parser.WithParser(&stubParser{err: errors.New("corrupt xref table")}, ".pdf"))
		require.NoError(t, err)
		p := newTestPipeline(t, repos, nil, WithParsers(registry))
		collection := seedCollection(t, repos, nil)

		task := newTask(collection.Id, queue.FilePayload{FileName: "broken.pdf", Data: []byte("junk")})
		require.NoError(t, p.Execute(ctx, task, func(int, queue.Stage) {}))

		docs, err := repos.Documents.GetDocumentsBySource(ctx, collection.Id, SourceID(task))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, Placeholder("broken.pdf", errors.New("corrupt xref table")), docs[0].Content)
	})
}

func TestExecute_URL(t *testing.T) {
	ctx := context.Background()

	t.Run("prefetched content", func(t *testing.T) {
		repos := newTestRepositories(t)
		p := newTestPipeline(t, repos, nil, WithFetcher(fetcherFunc(func(context.Context, string) (string, error) {
			t.Fatal("fetcher must not be called")
			return "", nil
		})))
		collection := seedCollection(t, repos, nil)

		task := newTask(collection.Id, queue.URLPayload{URL: "https://example.com", Content: "Already here."})
		require.NoError(t, p.Execute(ctx, task, func(int, queue.Stage) {}))

		count, err := repos.Documents.CountDocumentsBySource(ctx, collection.Id, SourceID(task))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("fetched", func(t *testing.T) {
		repos := newTestRepositories(t)
		var fetched string
		p := newTestPipeline(t, repos, nil, WithFetcher(fetcherFunc(func(_ context.Context, url string) (string, error) {
			fetched = url
			return "Page body.", nil
		})))
		collection := seedCollection(t, repos, nil)

		task := newTask(collection.Id, queue.URLPayload{URL: "https://example.com/page"})
		require.NoError(t, p.Execute(ctx, task, func(int, queue.Stage) {}))
		assert.Equal(t, "https://example.com/page", fetched)

		docs, err := repos.Documents.GetDocumentsBySource(ctx, collection.Id, SourceID(task))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Page body.", docs[0].Content)
		assert.Equal(t, "https://example.com/page", docs[0].Metadata.Source)
	})

	t.Run("fetch failure", func(t *testing.T) {
		repos := newTestRepositories(t)
		p := newTestPipeline(t, repos, nil, WithFetcher(fetcherFunc(func(context.Context, string) (string, error) {
			return "", ErrFetchFailed
		})))
		collection := seedCollection(t, repos, nil)

		err := p.Execute(ctx, newTask(collection.Id, queue.URLPayload{URL: "https://example.com"}), func(int, queue.Stage) {})
		assert.ErrorIs(t, err, ErrFetchFailed)
	})
}

func TestExecute_ReplacesSourceDocuments(t *testing.T) {
	repos := newTestRepositories(t)
	p := newTestPipeline(t, repos, nil)
	collection := seedCollection(t, repos, func(c *core.Collection) {
		c.ChunkSize = 40
		c.ChunkOverlap = 5
	})
	ctx := context.Background()
	noop := func(int, queue.Stage) {}

	original := newTask(collection.Id, queue.FilePayload{
		FileName: "guide.txt",
		Data:     []byte(strings.Repeat("Original sentence here. ", 8)),
	})
	require.NoError(t, p.Execute(ctx, original, noop))
	sourceID := SourceID(original)

	before, err := repos.Documents.CountDocumentsBySource(ctx, collection.Id, sourceID)
	require.NoError(t, err)
	require.Greater(t, before, 1)

	other := newTask(collection.Id, queue.NotePayload{Title: "other", Text: "Unrelated note."})
	require.NoError(t, p.Execute(ctx, other, noop))

	refresh := newTask(collection.Id, queue.RefreshPayload{SourceID: sourceID, FileName: "guide.txt", Data: []byte("Short replacement.")})
	assert.Equal(t, sourceID, SourceID(refresh))
	require.NoError(t, p.Execute(ctx, refresh, noop))

	docs, err := repos.Documents.GetDocumentsBySource(ctx, collection.Id, sourceID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Short replacement.", docs[0].Content)

	count, err := repos.Documents.CountDocumentsBySource(ctx, collection.Id, SourceID(other))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "other sources are untouched")

	t.Run("resubmitting a file replaces it", func(t *testing.T) {
		again := newTask(collection.Id, queue.FilePayload{FileName: "guide.txt", Data: []byte("Third version.")})
		require.NoError(t, p.Execute(ctx, again, noop))

		docs, err := repos.Documents.GetDocumentsBySource(ctx, collection.Id, sourceID)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Third version.", docs[0].Content)
	})
}

func TestExecute_Failures(t *testing.T) {
	ctx := context.Background()
	noop := func(int, queue.Stage) {}

	t.Run("embedding error is fatal", func(t *testing.T) {
		repos := newTestRepositories(t)
		boom := errors.New("embedding service unavailable")
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
			return nil, boom
		}
		p := newTestPipeline(t, repos, embedder)
		collection := seedCollection(t, repos, nil)

		task := newTask(collection.Id, queue.NotePayload{Title: "n", Text: "Some text."})
		err := p.Execute(ctx, task, noop)
		assert.ErrorIs(t, err, boom)

		count, err := repos.Documents.CountDocumentsBySource(ctx, collection.Id, SourceID(task))
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("vector count mismatch", func(t *testing.T) {
		repos := newTestRepositories(t)
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
			return [][]float32{}, nil
		}
		p := newTestPipeline(t, repos, embedder)
		collection := seedCollection(t, repos, nil)

		err := p.Execute(ctx, newTask(collection.Id, queue.NotePayload{Title: "n", Text: "Some text."}), noop)
		assert.ErrorIs(t, err, ErrEmbeddingMismatch)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		repos := newTestRepositories(t)
		p := newTestPipeline(t, repos, nil)
		collection := seedCollection(t, repos, func(c *core.Collection) { c.Dimensions = 3 })

		err := p.Execute(ctx, newTask(collection.Id, queue.NotePayload{Title: "n", Text: "Some text."}), noop)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("unknown collection", func(t *testing.T) {
		repos := newTestRepositories(t)
		p := newTestPipeline(t, repos, nil)

		err := p.Execute(ctx, newTask(404, queue.NotePayload{Title: "n", Text: "Some text."}), noop)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("missing payload", func(t *testing.T) {
		repos := newTestRepositories(t)
		p := newTestPipeline(t, repos, nil)
		collection := seedCollection(t, repos, nil)

		err := p.Execute(ctx, queue.Task{ID: "empty", CollectionID: collection.Id}, noop)
		assert.ErrorIs(t, err, ErrUnsupportedPayload)
	})

	t.Run("blank text stores nothing", func(t *testing.T) {
		repos := newTestRepositories(t)
		p := newTestPipeline(t, repos, nil)
		collection := seedCollection(t, repos, nil)

		task := newTask(collection.Id, queue.FilePayload{FileName: "blank.txt", Data: []byte(" \n\t ")})
		require.NoError(t, p.Execute(ctx, task, noop))

		count, err := repos.Documents.CountDocumentsBySource(ctx, collection.Id, SourceID(task))
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestExecute_Cancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		repos := newTestRepositories(t)
		p := newTestPipeline(t, repos, nil)
		collection := seedCollection(t, repos, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var steps []step
		err := p.Execute(ctx, newTask(collection.Id, queue.NotePayload{Title: "n", Text: "text"}), recordProgress(&steps))
		assert.ErrorIs(t, err, queue.ErrCancelled)
		assert.Empty(t, steps)
	})

	t.Run("during embedding", func(t *testing.T) {
		repos := newTestRepositories(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			cancel()
			return nil, ctx.Err()
		}
		p := newTestPipeline(t, repos, embedder)
		collection := seedCollection(t, repos, nil)

		task := newTask(collection.Id, queue.NotePayload{Title: "n", Text: "Some text."})
		err := p.Execute(ctx, task, func(int, queue.Stage) {})
		assert.ErrorIs(t, err, queue.ErrCancelled)

		count, err := repos.Documents.CountDocumentsBySource(context.Background(), collection.Id, SourceID(task))
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("between batches", func(t *testing.T) {
		repos := newTestRepositories(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var calls atomic.Int32
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			calls.Add(1)
			cancel()
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = mock.DeterministicVector(text, 4)
			}
			return out, nil
		}
		p := newTestPipeline(t, repos, embedder, WithEmbedBatchSize(1))
		collection := seedCollection(t, repos, func(c *core.Collection) {
			c.ChunkSize = 30
			c.ChunkOverlap = 5
		})

		text := strings.Repeat("Sentence number one is here. ", 5)
		err := p.Execute(ctx, newTask(collection.Id, queue.NotePayload{Title: "n", Text: text}), func(int, queue.Stage) {})
		assert.ErrorIs(t, err, queue.ErrCancelled)
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestSourceID(t *testing.T) {
	file := newTask(1, queue.FilePayload{FileName: "a.txt"})
	note := newTask(1, queue.NotePayload{Title: "a.txt"})
	assert.NotEqual(t, SourceID(file), SourceID(note), "kind is part of the identity")
	assert.Equal(t, SourceID(file), SourceID(newTask(2, queue.FilePayload{FileName: "a.txt", Data: []byte("x")})))

	refresh := newTask(1, queue.RefreshPayload{SourceID: 77, FileName: "a.txt"})
	assert.Equal(t, core.ID(77), SourceID(refresh))
}
