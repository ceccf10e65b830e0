package badger

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
//
// Each document is stored under its ID and indexed twice: by collection and
// by (collection, source). Index values hold the document ID.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocuments validates and stores documents. Large inputs are written in
// several transactions.
func (r *DocumentRepository) AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	err := inBatches(r.backend, docs, func(tx *badger.Txn, doc *core.Document) error {
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		doc.Id = core.ID(id)
		doc.InsertedAt = now

		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return writeDocumentIndices(tx, doc)
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateDocuments replaces existing documents, keeping their indices in step.
func (r *DocumentRepository) UpdateDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	err := inBatches(r.backend, docs, func(tx *badger.Txn, doc *core.Document) error {
		old, err := readDocument(tx, makeDocumentKey(doc.Id))
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		if old.CollectionId != doc.CollectionId || old.Metadata.SourceId != doc.Metadata.SourceId {
			if err := deleteDocumentIndices(tx, old); err != nil {
				return err
			}
			if err := writeDocumentIndices(tx, doc); err != nil {
				return err
			}
		}

		doc.InsertedAt = old.InsertedAt
		return writeDocument(tx, doc)
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocuments removes documents by their IDs.
func (r *DocumentRepository) DeleteDocuments(ctx context.Context, ids ...core.ID) error {
	return inBatches(r.backend, ids, func(tx *badger.Txn, id core.ID) error {
		key := makeDocumentKey(id)
		doc, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if err := deleteDocumentIndices(tx, doc); err != nil {
			return err
		}
		return tx.Delete(key)
	})
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetDocumentsByCollection returns every document of a collection ordered by ID.
func (r *DocumentRepository) GetDocumentsByCollection(ctx context.Context, collectionID core.ID) ([]*core.Document, error) {
	return r.readIndexed(ctx, compositeKey(documentCollectionPrefix, collectionID))
}

// GetDocumentsBySource returns the documents produced from one source.
func (r *DocumentRepository) GetDocumentsBySource(ctx context.Context, collectionID, sourceID core.ID) ([]*core.Document, error) {
	return r.readIndexed(ctx, compositeKey(documentSourcePrefix, collectionID, sourceID))
}

// CountDocumentsBySource counts index entries without reading documents.
func (r *DocumentRepository) CountDocumentsBySource(ctx context.Context, collectionID, sourceID core.ID) (int, error) {
	keys, err := r.backend.scanKeys(compositeKey(documentSourcePrefix, collectionID, sourceID))
	return len(keys), err
}

// DeleteDocumentsBySource removes every document produced from one source.
func (r *DocumentRepository) DeleteDocumentsBySource(ctx context.Context, collectionID, sourceID core.ID) (int, error) {
	return r.deleteIndexed(ctx, compositeKey(documentSourcePrefix, collectionID, sourceID))
}

// DeleteDocumentsByCollection removes every document of a collection.
func (r *DocumentRepository) DeleteDocumentsByCollection(ctx context.Context, collectionID core.ID) (int, error) {
	return r.deleteIndexed(ctx, compositeKey(documentCollectionPrefix, collectionID))
}

// DocumentIDs yields a collection's document IDs in ascending order. The IDs
// are read up front so callers may write to the repository while iterating.
func (r *DocumentRepository) DocumentIDs(ctx context.Context, collectionID core.ID) iter.Seq2[core.ID, error] {
	return func(yield func(core.ID, error) bool) {
		keys, err := r.backend.scanKeys(compositeKey(documentCollectionPrefix, collectionID))
		if err != nil {
			yield(0, err)
			return
		}
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				yield(0, err)
				return
			}
			if !yield(lastID(key), nil) {
				return
			}
		}
	}
}

// Helper methods

func (r *DocumentRepository) readIndexed(ctx context.Context, prefix []byte) ([]*core.Document, error) {
	keys, err := r.backend.scanKeys(prefix)
	if err != nil {
		return nil, err
	}

	results := make([]*core.Document, 0, len(keys))
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := readDocument(tx, makeDocumentKey(lastID(key)))
			if err != nil {
				return err
			}
			if doc != nil {
				results = append(results, doc)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *DocumentRepository) deleteIndexed(ctx context.Context, prefix []byte) (int, error) {
	keys, err := r.backend.scanKeys(prefix)
	if err != nil {
		return 0, err
	}

	ids := make([]core.ID, len(keys))
	for i, key := range keys {
		ids[i] = lastID(key)
	}
	if err := r.DeleteDocuments(ctx, ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func writeDocument(tx *badger.Txn, doc *core.Document) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(makeDocumentKey(doc.Id), value)
}

func writeDocumentIndices(tx *badger.Txn, doc *core.Document) error {
	idValue := storage.MarshalID(doc.Id)
	if err := tx.Set(makeDocumentCollectionKey(doc.CollectionId, doc.Id), idValue); err != nil {
		return err
	}
	return tx.Set(makeDocumentSourceKey(doc.CollectionId, doc.Metadata.SourceId, doc.Id), idValue)
}

func deleteDocumentIndices(tx *badger.Txn, doc *core.Document) error {
	if err := tx.Delete(makeDocumentCollectionKey(doc.CollectionId, doc.Id)); err != nil {
		return err
	}
	return tx.Delete(makeDocumentSourceKey(doc.CollectionId, doc.Metadata.SourceId, doc.Id))
}

// readDocument reads a document from the transaction.
// Returns nil without error when the key is absent.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}
