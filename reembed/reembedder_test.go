package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/kbase/ai/mock"
	"github.com/poiesic/kbase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReembedder(t *testing.T) {
	repos := setupTestDB(t)
	provider := mock.NewMockProvider()

	_, err := NewReembedder(nil, repos.Documents, provider)
	assert.Equal(t, ErrCollectionRepositoryRequired, err)
	_, err = NewReembedder(repos.Collections, nil, provider)
	assert.Equal(t, ErrDocumentRepositoryRequired, err)
	_, err = NewReembedder(repos.Collections, repos.Documents, nil)
	assert.Equal(t, ErrAIProviderRequired, err)

	r, err := NewReembedder(repos.Collections, repos.Documents, provider, WithConfig(&Config{BatchSize: 7}))
	require.NoError(t, err)
	assert.Equal(t, 7, r.config.BatchSize)
	assert.Equal(t, DefaultConfig().MaxRetries, r.config.MaxRetries)
	assert.Equal(t, DefaultConfig().RetryDelay, r.config.RetryDelay)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, 100, config.ReportInterval)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, time.Second, config.RetryDelay)
}

func TestReembedder_Run(t *testing.T) {
	repos := setupTestDB(t)
	collection, docs := seedDocuments(t, repos, 10)
	ctx := context.Background()

	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 16
	provider := mock.NewMockProviderWithEmbedder(embedder)

	var progress bytes.Buffer
	r, err := NewReembedder(repos.Collections, repos.Documents, provider,
		WithConfig(&Config{BatchSize: 3, ReportInterval: 3}),
		WithProgress(&progress),
	)
	require.NoError(t, err)

	result, err := r.Run(ctx, collection.Id, "new-model")
	require.NoError(t, err)
	assert.Equal(t, collection.Id, result.CollectionID)
	assert.Equal(t, "new-model", result.Model)
	assert.Equal(t, 16, result.Dimensions)
	assert.Equal(t, 10, result.Documents)
	assert.Equal(t, []string{"new-model"}, provider.RequestedModels())
	assert.Equal(t, 4, embedder.CallCount(), "10 documents in batches of 3")

	updated, err := repos.Collections.GetCollection(ctx, collection.Id)
	require.NoError(t, err)
	assert.Equal(t, "new-model", updated.Model)
	assert.Equal(t, 16, updated.Dimensions)

	for _, doc := range docs {
		stored, err := repos.Documents.GetDocument(ctx, doc.Id)
		require.NoError(t, err)
		assert.Len(t, stored.Vector, 16)
	}

	out := progress.String()
	assert.Contains(t, out, "Reembedding 10 documents")
	assert.Contains(t, out, "10/10 documents (100.0%)")
}

func TestReembedder_DefaultsToCollectionModel(t *testing.T) {
	repos := setupTestDB(t)
	collection, _ := seedDocuments(t, repos, 2)
	provider := mock.NewMockProviderWithEmbedder(mock.NewMockEmbedder())

	r, err := NewReembedder(repos.Collections, repos.Documents, provider)
	require.NoError(t, err)

	result, err := r.Run(context.Background(), collection.Id, "")
	require.NoError(t, err)
	assert.Equal(t, "old-model", result.Model)
	assert.Equal(t, mock.DefaultDimensions, result.Dimensions)
	assert.Equal(t, []string{"old-model"}, provider.RequestedModels())
}

func TestReembedder_EmptyCollection(t *testing.T) {
	repos := setupTestDB(t)
	collection, _ := seedDocuments(t, repos, 0)
	ctx := context.Background()

	embedder := mock.NewMockEmbedder()
	r, err := NewReembedder(repos.Collections, repos.Documents, mock.NewMockProviderWithEmbedder(embedder))
	require.NoError(t, err)

	result, err := r.Run(ctx, collection.Id, "new-model")
	require.NoError(t, err)
	assert.Zero(t, result.Documents)
	assert.Zero(t, embedder.CallCount())

	updated, err := repos.Collections.GetCollection(ctx, collection.Id)
	require.NoError(t, err)
	assert.Equal(t, "new-model", updated.Model)
	assert.Zero(t, updated.Dimensions, "unknown until something is embedded")
}

func TestReembedder_MissingCollection(t *testing.T) {
	repos := setupTestDB(t)
	r, err := NewReembedder(repos.Collections, repos.Documents, mock.NewMockProvider())
	require.NoError(t, err)

	_, err = r.Run(context.Background(), 999, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReembedder_EmbeddingError(t *testing.T) {
	repos := setupTestDB(t)
	collection, _ := seedDocuments(t, repos, 5)
	ctx := context.Background()

	boom := errors.New("model not loaded")
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, boom
	}

	r, err := NewReembedder(repos.Collections, repos.Documents, mock.NewMockProviderWithEmbedder(embedder),
		WithConfig(&Config{MaxRetries: 2, RetryDelay: time.Millisecond}),
	)
	require.NoError(t, err)

	_, err = r.Run(ctx, collection.Id, "new-model")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, embedder.CallCount())

	unchanged, err := repos.Collections.GetCollection(ctx, collection.Id)
	require.NoError(t, err)
	assert.Equal(t, "old-model", unchanged.Model)
	assert.Equal(t, 3, unchanged.Dimensions)
}

func TestReembedder_DimensionChangeBetweenBatches(t *testing.T) {
	repos := setupTestDB(t)
	collection, _ := seedDocuments(t, repos, 4)

	calls := 0
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		calls++
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = make([]float32, 2+calls)
			out[i][0] = 1
		}
		return out, nil
	}

	r, err := NewReembedder(repos.Collections, repos.Documents, mock.NewMockProviderWithEmbedder(embedder),
		WithConfig(&Config{BatchSize: 2}),
	)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), collection.Id, "new-model")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestReembedder_ContextCancellation(t *testing.T) {
	repos := setupTestDB(t)
	collection, _ := seedDocuments(t, repos, 6)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		cancel()
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, 4)
		}
		return out, nil
	}

	r, err := NewReembedder(repos.Collections, repos.Documents, mock.NewMockProviderWithEmbedder(embedder),
		WithConfig(&Config{BatchSize: 2}),
	)
	require.NoError(t, err)

	_, err = r.Run(ctx, collection.Id, "new-model")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, embedder.CallCount())
}
