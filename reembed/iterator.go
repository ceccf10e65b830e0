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
	"errors"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// DefaultBatchSize is the number of documents loaded and embedded together.
const DefaultBatchSize = 100

// DocumentIterator walks a collection's documents in batches, loading only
// one batch at a time.
type DocumentIterator struct {
	documents storage.DocumentRepository
	batchSize int
}

// NewDocumentIterator creates an iterator. A batchSize below 1 selects
// DefaultBatchSize.
func NewDocumentIterator(documents storage.DocumentRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DocumentIterator{documents: documents, batchSize: batchSize}
}

// Count returns the number of documents in the collection.
func (it *DocumentIterator) Count(ctx context.Context, collectionID core.ID) (int, error) {
	n := 0
	for _, err := range it.documents.DocumentIDs(ctx, collectionID) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// ForEach calls fn with each batch of documents in ID order. fn may update
// the documents it receives. Documents deleted while iterating are skipped.
// Iteration stops at the first error from fn or storage, or when ctx ends.
func (it *DocumentIterator) ForEach(ctx context.Context, collectionID core.ID, fn func([]*core.Document) error) error {
	ids := make([]core.ID, 0, it.batchSize)

	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		docs := make([]*core.Document, 0, len(ids))
		for _, id := range ids {
			doc, err := it.documents.GetDocument(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		ids = ids[:0]
		if len(docs) == 0 {
			return nil
		}
		if err := fn(docs); err != nil {
			return err
		}
		return ctx.Err()
	}

	for id, err := range it.documents.DocumentIDs(ctx, collectionID) {
		if err != nil {
			return err
		}
		ids = append(ids, id)
		if len(ids) == it.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
