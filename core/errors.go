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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidCollection indicates a Collection failed validation.
	ErrInvalidCollection = errors.New("invalid collection")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyName indicates the Name field is empty.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrEmptyModel indicates the embedding Model field is empty.
	ErrEmptyModel = errors.New("embedding model cannot be empty")

	// ErrInvalidDimensions indicates a negative vector dimension.
	ErrInvalidDimensions = errors.New("dimensions cannot be negative")

	// ErrInvalidChunkSize indicates a chunk size below 1.
	ErrInvalidChunkSize = errors.New("chunk size must be at least 1")

	// ErrInvalidChunkOverlap indicates an overlap outside [0, chunkSize).
	ErrInvalidChunkOverlap = errors.New("chunk overlap must be non-negative and smaller than chunk size")

	// ErrInvalidChunkStrategy indicates an unknown ChunkStrategy value.
	ErrInvalidChunkStrategy = errors.New("invalid chunk strategy")

	// ErrInvalidThreshold indicates a similarity threshold outside [-1, 1].
	ErrInvalidThreshold = errors.New("threshold must be between -1 and 1")

	// ErrInvalidDocumentCount indicates a negative default result limit.
	ErrInvalidDocumentCount = errors.New("document count cannot be negative")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyVector indicates a document without an embedding.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrMissingCollection indicates a document without an owning collection.
	ErrMissingCollection = errors.New("collection id is required")
)
