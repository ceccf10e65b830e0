package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/kbase/ai/mock"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

// seedDocuments creates a collection holding n documents with 3-dimension
// vectors.
func seedDocuments(t *testing.T, repos *badger.Repositories, n int) (*core.Collection, []*core.Document) {
	t.Helper()
	ctx := context.Background()

	collection, err := repos.Collections.AddCollection(ctx, &core.Collection{
		Name:       t.Name(),
		Model:      "old-model",
		Dimensions: 3,
	})
	require.NoError(t, err)

	if n == 0 {
		return collection, nil
	}
	docs := make([]*core.Document, n)
	for i := range docs {
		docs[i] = &core.Document{
			CollectionId: collection.Id,
			Content:      fmt.Sprintf("chunk %d", i),
			Vector:       []float32{0.1, 0.2, 0.3},
			Metadata:     core.DocumentMetadata{Source: "notes.txt", ChunkIndex: i},
		}
	}
	added, err := repos.Documents.AddDocuments(ctx, docs...)
	require.NoError(t, err)
	return collection, added
}

func TestDocumentIterator_ForEach(t *testing.T) {
	tests := []struct {
		name      string
		docs      int
		batchSize int
		batches   []int
	}{
		{name: "empty collection", docs: 0, batchSize: 10, batches: nil},
		{name: "single batch", docs: 3, batchSize: 10, batches: []int{3}},
		{name: "exact multiple", docs: 6, batchSize: 3, batches: []int{3, 3}},
		{name: "remainder", docs: 7, batchSize: 3, batches: []int{3, 3, 1}},
		{name: "batch of one", docs: 2, batchSize: 1, batches: []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := setupTestDB(t)
			collection, added := seedDocuments(t, repos, tt.docs)
			it := NewDocumentIterator(repos.Documents, tt.batchSize)

			var sizes []int
			var seen []core.ID
			err := it.ForEach(context.Background(), collection.Id, func(docs []*core.Document) error {
				sizes = append(sizes, len(docs))
				for _, doc := range docs {
					seen = append(seen, doc.Id)
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.batches, sizes)

			want := make([]core.ID, 0, len(added))
			for _, doc := range added {
				want = append(want, doc.Id)
			}
			assert.ElementsMatch(t, want, seen)

			count, err := it.Count(context.Background(), collection.Id)
			require.NoError(t, err)
			assert.Equal(t, tt.docs, count)
		})
	}
}

func TestDocumentIterator_OtherCollectionsIgnored(t *testing.T) {
	repos := setupTestDB(t)
	collection, _ := seedDocuments(t, repos, 2)

	other, err := repos.Collections.AddCollection(context.Background(), &core.Collection{Name: "other", Model: mock.MockModel})
	require.NoError(t, err)
	_, err = repos.Documents.AddDocuments(context.Background(), &core.Document{
		CollectionId: other.Id,
		Content:      "elsewhere",
		Vector:       []float32{1},
	})
	require.NoError(t, err)

	total := 0
	err = NewDocumentIterator(repos.Documents, 10).ForEach(context.Background(), collection.Id, func(docs []*core.Document) error {
		for _, doc := range docs {
			assert.Equal(t, collection.Id, doc.CollectionId)
		}
		total += len(docs)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestDocumentIterator_ErrorStops(t *testing.T) {
	repos := setupTestDB(t)
	collection, _ := seedDocuments(t, repos, 5)
	boom := errors.New("stop")

	calls := 0
	err := NewDocumentIterator(repos.Documents, 2).ForEach(context.Background(), collection.Id, func([]*core.Document) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDocumentIterator_ContextCancellation(t *testing.T) {
	repos := setupTestDB(t)
	collection, _ := seedDocuments(t, repos, 6)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	err := NewDocumentIterator(repos.Documents, 2).ForEach(ctx, collection.Id, func([]*core.Document) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDocumentIterator_SkipsDeleted(t *testing.T) {
	repos := setupTestDB(t)
	collection, added := seedDocuments(t, repos, 4)
	ctx := context.Background()

	var seen []core.ID
	err := NewDocumentIterator(repos.Documents, 2).ForEach(ctx, collection.Id, func(docs []*core.Document) error {
		if len(seen) == 0 {
			require.NoError(t, repos.Documents.DeleteDocuments(ctx, added[3].Id))
		}
		for _, doc := range docs {
			seen = append(seen, doc.Id)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{added[0].Id, added[1].Id, added[2].Id}, seen)
}

func TestDocumentIterator_InvalidBatchSize(t *testing.T) {
	repos := setupTestDB(t)
	assert.Equal(t, DefaultBatchSize, NewDocumentIterator(repos.Documents, 0).batchSize)
	assert.Equal(t, DefaultBatchSize, NewDocumentIterator(repos.Documents, -5).batchSize)
}
