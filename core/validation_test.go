package core

import (
	"errors"
	"testing"
)

func validCollection() *Collection {
	c := &Collection{Name: "handbook", Model: "nomic-embed-text"}
	c.ApplyDefaults()
	return c
}

func TestValidateCollection(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Collection)
		nilIn   bool
		wantErr error
	}{
		{
			name:    "valid collection",
			mutate:  func(c *Collection) {},
			wantErr: nil,
		},
		{
			name:    "nil collection",
			nilIn:   true,
			wantErr: ErrInvalidCollection,
		},
		{
			name:    "empty name",
			mutate:  func(c *Collection) { c.Name = "" },
			wantErr: ErrEmptyName,
		},
		{
			name:    "empty model",
			mutate:  func(c *Collection) { c.Model = "" },
			wantErr: ErrEmptyModel,
		},
		{
			name:    "negative dimensions",
			mutate:  func(c *Collection) { c.Dimensions = -1 },
			wantErr: ErrInvalidDimensions,
		},
		{
			name:    "negative document count",
			mutate:  func(c *Collection) { c.DocumentCount = -3 },
			wantErr: ErrInvalidDocumentCount,
		},
		{
			name:    "chunk size below one",
			mutate:  func(c *Collection) { c.ChunkSize = 0 },
			wantErr: ErrInvalidChunkSize,
		},
		{
			name:    "overlap equal to chunk size",
			mutate:  func(c *Collection) { c.ChunkSize = 100; c.ChunkOverlap = 100 },
			wantErr: ErrInvalidChunkOverlap,
		},
		{
			name:    "negative overlap",
			mutate:  func(c *Collection) { c.ChunkOverlap = -1 },
			wantErr: ErrInvalidChunkOverlap,
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Collection) { c.ChunkStrategy = "semantic" },
			wantErr: ErrInvalidChunkStrategy,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Collection) { c.Threshold = 1.5 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "negative threshold within range",
			mutate:  func(c *Collection) { c.Threshold = -0.5 },
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c *Collection
			if !tt.nilIn {
				c = validCollection()
				tt.mutate(c)
			}

			err := ValidateCollection(c)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateCollection() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateCollection() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidCollection) {
				t.Errorf("ValidateCollection() error = %v, should wrap ErrInvalidCollection", err)
			}
		})
	}
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name: "valid document",
			doc: &Document{
				CollectionId: 1,
				Content:      "chunk text",
				Vector:       []float32{0.1, 0.2},
			},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name: "missing collection",
			doc: &Document{
				Content: "chunk text",
				Vector:  []float32{0.1},
			},
			wantErr: ErrMissingCollection,
		},
		{
			name: "empty content",
			doc: &Document{
				CollectionId: 1,
				Vector:       []float32{0.1},
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "empty vector",
			doc: &Document{
				CollectionId: 1,
				Content:      "chunk text",
			},
			wantErr: ErrEmptyVector,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunkStrategy(t *testing.T) {
	for _, s := range []ChunkStrategy{ChunkStrategyFixed, ChunkStrategyParagraph, ChunkStrategyMarkdown, ChunkStrategyCode} {
		t.Run(string(s), func(t *testing.T) {
			if err := ValidateChunkStrategy(s); err != nil {
				t.Errorf("ValidateChunkStrategy(%q) = %v", s, err)
			}
		})
	}

	t.Run("empty", func(t *testing.T) {
		if err := ValidateChunkStrategy(""); !errors.Is(err, ErrInvalidChunkStrategy) {
			t.Errorf("ValidateChunkStrategy(\"\") = %v, want ErrInvalidChunkStrategy", err)
		}
	})
}
