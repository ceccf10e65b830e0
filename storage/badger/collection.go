package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// CollectionRepository implements storage.CollectionRepository for BadgerDB.
type CollectionRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.CollectionRepository = (*CollectionRepository)(nil)

// NewCollectionRepository creates a new CollectionRepository.
func NewCollectionRepository(backend *Backend) (*CollectionRepository, error) {
	idSeq, err := backend.GetSequence(collectionIDSeq)
	if err != nil {
		return nil, err
	}

	return &CollectionRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *CollectionRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *CollectionRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddCollection stores a new collection.
func (r *CollectionRepository) AddCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error) {
	collection.ApplyDefaults()
	if err := core.ValidateCollection(collection); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		nameKey := makeCollectionNameKey(collection.Name)
		if _, err := tx.Get(nameKey); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		collection.Id = core.ID(id)
		collection.InsertedAt = time.Now().UTC()
		collection.UpdatedAt = collection.InsertedAt

		if err := writeCollection(tx, collection); err != nil {
			return err
		}
		if err := tx.Set(nameKey, storage.MarshalID(collection.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return collection, nil
}

// UpdateCollection replaces an existing collection, moving its name index
// when the name changes.
func (r *CollectionRepository) UpdateCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error) {
	if err := core.ValidateCollection(collection); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		old, err := readCollection(tx, makeCollectionKey(collection.Id))
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		if old.Name != collection.Name {
			newNameKey := makeCollectionNameKey(collection.Name)
			if _, err := tx.Get(newNameKey); err == nil {
				return storage.ErrDuplicateKey
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := tx.Delete(makeCollectionNameKey(old.Name)); err != nil {
				return err
			}
			if err := tx.Set(newNameKey, storage.MarshalID(collection.Id)); err != nil {
				return err
			}
		}

		collection.InsertedAt = old.InsertedAt
		collection.UpdatedAt = time.Now().UTC()
		if err := writeCollection(tx, collection); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return collection, nil
}

// DeleteCollection removes a collection and its name index.
func (r *CollectionRepository) DeleteCollection(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCollectionKey(id)
		collection, err := readCollection(tx, key)
		if err != nil {
			return err
		}
		if collection == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(makeCollectionNameKey(collection.Name)); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetCollection retrieves a collection by ID.
func (r *CollectionRepository) GetCollection(ctx context.Context, id core.ID) (*core.Collection, error) {
	var result *core.Collection
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readCollection(tx, makeCollectionKey(id))
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

// GetCollectionByName retrieves a collection through the name index.
func (r *CollectionRepository) GetCollectionByName(ctx context.Context, name string) (*core.Collection, error) {
	var result *core.Collection
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCollectionNameKey(name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		var id core.ID
		if err := item.Value(func(val []byte) error {
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return err
		}

		result, err = readCollection(tx, makeCollectionKey(id))
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

// ListCollections returns every collection ordered by ID.
func (r *CollectionRepository) ListCollections(ctx context.Context) ([]*core.Collection, error) {
	var results []*core.Collection
	err := r.backend.scanValues([]byte(collectionPrefix), func(val []byte) error {
		collection, err := storage.UnmarshalCollection(val)
		if err != nil {
			return err
		}
		results = append(results, collection)
		return nil
	})
	return results, err
}

// Helper methods

func writeCollection(tx *badger.Txn, collection *core.Collection) error {
	value, err := storage.MarshalCollection(collection)
	if err != nil {
		return err
	}
	return tx.Set(makeCollectionKey(collection.Id), value)
}

// readCollection reads a collection from the transaction.
// Returns nil without error when the key is absent.
func readCollection(tx *badger.Txn, key []byte) (*core.Collection, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var collection *core.Collection
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		collection, unmarshalErr = storage.UnmarshalCollection(val)
		return unmarshalErr
	})
	return collection, err
}
