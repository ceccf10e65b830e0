package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// SourceRepository implements storage.SourceRepository for BadgerDB.
// Sources use content-based IDs, so no sequence is needed.
type SourceRepository struct {
	backend *Backend
}

var _ storage.SourceRepository = (*SourceRepository)(nil)

// NewSourceRepository creates a new SourceRepository.
func NewSourceRepository(backend *Backend) *SourceRepository {
	return &SourceRepository{backend: backend}
}

// Close releases resources. SourceRepository has no resources to release.
func (r *SourceRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *SourceRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutSource inserts or replaces a source.
func (r *SourceRepository) PutSource(ctx context.Context, source *core.Source) (*core.Source, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeSourceKey(source.CollectionId, source.Id)
		old, err := readSource(tx, key)
		if err != nil {
			return err
		}

		source.UpdatedAt = time.Now().UTC()
		if old != nil {
			source.InsertedAt = old.InsertedAt
		} else if source.InsertedAt.IsZero() {
			source.InsertedAt = source.UpdatedAt
		}

		value, err := storage.MarshalSource(source)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return source, nil
}

// GetSource retrieves a source of a collection.
func (r *SourceRepository) GetSource(ctx context.Context, collectionID, id core.ID) (*core.Source, error) {
	var result *core.Source
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readSource(tx, makeSourceKey(collectionID, id))
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

// ListSources returns every source of a collection.
func (r *SourceRepository) ListSources(ctx context.Context, collectionID core.ID) ([]*core.Source, error) {
	var results []*core.Source
	err := r.backend.scanValues(compositeKey(sourcePrefix, collectionID), func(val []byte) error {
		source, err := storage.UnmarshalSource(val)
		if err != nil {
			return err
		}
		results = append(results, source)
		return nil
	})
	return results, err
}

// DeleteSource removes a source.
func (r *SourceRepository) DeleteSource(ctx context.Context, collectionID, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeSourceKey(collectionID, id)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteSourcesByCollection removes every source of a collection.
func (r *SourceRepository) DeleteSourcesByCollection(ctx context.Context, collectionID core.ID) (int, error) {
	keys, err := r.backend.scanKeys(compositeKey(sourcePrefix, collectionID))
	if err != nil {
		return 0, err
	}
	err = inBatches(r.backend, keys, func(tx *badger.Txn, key []byte) error {
		return tx.Delete(key)
	})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// readSource reads a source from the transaction.
// Returns nil without error when the key is absent.
func readSource(tx *badger.Txn, key []byte) (*core.Source, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var source *core.Source
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		source, unmarshalErr = storage.UnmarshalSource(val)
		return unmarshalErr
	})
	return source, err
}
