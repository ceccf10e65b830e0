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


// Package search ranks the documents of a collection against a query.
//
// Ranking is plain cosine similarity between the query embedding and each
// stored document vector. Disabled documents are skipped, candidates below
// the threshold are dropped and the rest are sorted by descending score and
// truncated to the requested limit.
//
// A Searcher reads candidates from the document repository and reports a
// vector dimension mismatch between the query and the corpus as an error
// rather than as an empty result, since it means the collection was embedded
// with a different model.
package search
