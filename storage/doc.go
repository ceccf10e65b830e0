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

// Package storage provides the storage abstraction layer for kbase.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic. Ingestion, search and re-embedding only ever see these
// interfaces; storage/badger is the production implementation.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - Repository: Transaction support and lifecycle shared by all repositories
//   - CollectionRepository: Named collections and their chunking settings
//   - DocumentRepository: Embedded chunks, indexed by collection and source
//   - SourceRepository: Ingestion records for files, URLs and notes
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Serialization
//
// Records are encoded with CBOR (github.com/fxamacker/cbor/v2). Timestamps are
// stored as RFC 3339 strings with nanosecond precision.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
