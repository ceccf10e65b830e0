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


package ingestion

import "errors"

var (
	// ErrCollectionRepositoryRequired is returned when a collection repository is not provided.
	ErrCollectionRepositoryRequired = errors.New("collection repository required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrSourceRepositoryRequired is returned when a source repository is not provided.
	ErrSourceRepositoryRequired = errors.New("source repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrQueueRequired is returned when a task queue is not provided.
	ErrQueueRequired = errors.New("queue required")

	// ErrUnsupportedPayload indicates a task whose payload the pipeline cannot read.
	ErrUnsupportedPayload = errors.New("unsupported payload")

	// ErrEmbeddingMismatch indicates the embedder returned a different
	// number of vectors than texts it was given.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// collection's dimensions.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrFetchFailed indicates a URL could not be retrieved.
	ErrFetchFailed = errors.New("fetch failed")
)
