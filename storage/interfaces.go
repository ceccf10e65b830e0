package storage

import (
	"context"
	"iter"

	"github.com/poiesic/kbase/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases resources held by the repository.
	Close() error
}

// CollectionRepository provides operations for managing collections.
type CollectionRepository interface {
	Repository

	// AddCollection stores a new collection.
	// Generates a new ID, applies defaults and validates the collection.
	// Returns ErrDuplicateKey if a collection with the same name exists.
	AddCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error)

	// UpdateCollection replaces an existing collection.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the collection doesn't exist.
	UpdateCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error)

	// DeleteCollection removes a collection record. It does not cascade.
	// Returns ErrNotFound if the collection doesn't exist.
	DeleteCollection(ctx context.Context, id core.ID) error

	// GetCollection retrieves a collection by ID.
	// Returns ErrNotFound if the collection doesn't exist.
	GetCollection(ctx context.Context, id core.ID) (*core.Collection, error)

	// GetCollectionByName retrieves a collection by its unique name.
	// Returns ErrNotFound if no collection has that name.
	GetCollectionByName(ctx context.Context, name string) (*core.Collection, error)

	// ListCollections returns every collection ordered by ID.
	ListCollections(ctx context.Context) ([]*core.Collection, error)
}

// DocumentRepository provides operations for managing embedded document chunks.
type DocumentRepository interface {
	Repository

	// AddDocuments validates and stores documents, generating IDs from a sequence.
	// Sets InsertedAt timestamp. Returns the documents with IDs populated.
	AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// UpdateDocuments replaces existing documents.
	// Returns ErrNotFound if any document doesn't exist.
	UpdateDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// DeleteDocuments removes documents and their index entries.
	// Returns ErrNotFound if any document doesn't exist.
	DeleteDocuments(ctx context.Context, ids ...core.ID) error

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocumentsByCollection returns every document of a collection ordered by ID.
	GetDocumentsByCollection(ctx context.Context, collectionID core.ID) ([]*core.Document, error)

	// GetDocumentsBySource returns the documents produced from one source,
	// ordered by ID.
	GetDocumentsBySource(ctx context.Context, collectionID, sourceID core.ID) ([]*core.Document, error)

	// CountDocumentsBySource counts the documents produced from one source.
	CountDocumentsBySource(ctx context.Context, collectionID, sourceID core.ID) (int, error)

	// DeleteDocumentsBySource removes every document produced from one source.
	// Returns the number of documents removed.
	DeleteDocumentsBySource(ctx context.Context, collectionID, sourceID core.ID) (int, error)

	// DeleteDocumentsByCollection removes every document of a collection.
	// Returns the number of documents removed.
	DeleteDocumentsByCollection(ctx context.Context, collectionID core.ID) (int, error)

	// DocumentIDs yields the IDs of a collection's documents in ascending order.
	// Iteration stops at the first storage error, which is yielded with a zero ID.
	DocumentIDs(ctx context.Context, collectionID core.ID) iter.Seq2[core.ID, error]
}

// SourceRepository provides operations for managing ingestion sources.
type SourceRepository interface {
	Repository

	// PutSource inserts or replaces a source.
	// Sets InsertedAt on first write and UpdatedAt on every write.
	PutSource(ctx context.Context, source *core.Source) (*core.Source, error)

	// GetSource retrieves a source of a collection.
	// Returns ErrNotFound if the source doesn't exist.
	GetSource(ctx context.Context, collectionID, id core.ID) (*core.Source, error)

	// ListSources returns every source of a collection.
	ListSources(ctx context.Context, collectionID core.ID) ([]*core.Source, error)

	// DeleteSource removes a source.
	// Returns ErrNotFound if the source doesn't exist.
	DeleteSource(ctx context.Context, collectionID, id core.ID) error

	// DeleteSourcesByCollection removes every source of a collection.
	// Returns the number of sources removed.
	DeleteSourcesByCollection(ctx context.Context, collectionID core.ID) (int, error)
}
