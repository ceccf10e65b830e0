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


// Package chunk splits document text into bounded, overlapping segments
// suitable for embedding.
//
// Four strategies are available, selected through Options.Strategy:
//
//   - fixed: packs whole sentences (CJK and Latin terminators or newline)
//     into chunks, seeding each new chunk with overlap text from the end of
//     the previous one
//   - paragraph: packs blank-line separated paragraphs
//   - markdown: packs ATX heading sections, keeping each heading with its body
//   - code: packs definition-delimited code segments
//
// Every strategy falls back to a sliding character window when a unit does
// not fit in a chunk. All lengths are measured in characters (runes), not
// bytes, so multi-byte text is bounded the same way as ASCII text.
//
// Chunking never fails. Empty or whitespace-only input yields no chunks and
// text no longer than the chunk size yields a single trimmed chunk.
package chunk
