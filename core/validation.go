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

import (
	"fmt"
)

// ValidateCollection validates a Collection according to domain rules.
//
// Validation rules:
//   - Name and Model must not be empty
//   - Dimensions and DocumentCount must not be negative
//   - ChunkSize must be at least 1 and ChunkOverlap within [0, ChunkSize)
//   - ChunkStrategy must be a known strategy
//   - Threshold must be within [-1, 1]
//
// Callers normally run ApplyDefaults first so zero values are filled in.
func ValidateCollection(c *Collection) error {
	if c == nil {
		return fmt.Errorf("%w: collection is nil", ErrInvalidCollection)
	}

	if c.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCollection, ErrEmptyName)
	}

	if c.Model == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCollection, ErrEmptyModel)
	}

	if c.Dimensions < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCollection, ErrInvalidDimensions)
	}

	if c.DocumentCount < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCollection, ErrInvalidDocumentCount)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidCollection, ErrInvalidChunkSize)
	}

	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: %w", ErrInvalidCollection, ErrInvalidChunkOverlap)
	}

	if err := ValidateChunkStrategy(c.ChunkStrategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCollection, err)
	}

	if c.Threshold < -1 || c.Threshold > 1 {
		return fmt.Errorf("%w: %w", ErrInvalidCollection, ErrInvalidThreshold)
	}

	return nil
}

// ValidateDocument validates a Document before it is stored.
//
// Validation rules:
//   - CollectionId must be set
//   - Content must not be empty
//   - Vector must not be empty
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.CollectionId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrMissingCollection)
	}

	if doc.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	if len(doc.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyVector)
	}

	return nil
}

// ValidateChunkStrategy validates that a ChunkStrategy has a known value.
func ValidateChunkStrategy(strategy ChunkStrategy) error {
	switch strategy {
	case ChunkStrategyFixed, ChunkStrategyParagraph, ChunkStrategyMarkdown, ChunkStrategyCode:
		return nil
	default:
		return fmt.Errorf("%w: value %q", ErrInvalidChunkStrategy, strategy)
	}
}
