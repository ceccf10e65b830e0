package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "test content",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "multibyte content",
			content:  "知识库中的文档内容",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("report.pdf")
	id2 := IDFromContent("report.docx")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestCollection_ApplyDefaults(t *testing.T) {
	t.Run("zero values are filled", func(t *testing.T) {
		c := Collection{Name: "kb", Model: "embed"}
		c.ApplyDefaults()

		if c.ChunkSize != DefaultChunkSize {
			t.Errorf("ChunkSize = %d, want %d", c.ChunkSize, DefaultChunkSize)
		}
		if c.ChunkOverlap != DefaultChunkOverlap {
			t.Errorf("ChunkOverlap = %d, want %d", c.ChunkOverlap, DefaultChunkOverlap)
		}
		if c.Threshold != DefaultThreshold {
			t.Errorf("Threshold = %v, want %v", c.Threshold, DefaultThreshold)
		}
		if c.DocumentCount != DefaultDocumentCount {
			t.Errorf("DocumentCount = %d, want %d", c.DocumentCount, DefaultDocumentCount)
		}
		if c.ChunkStrategy != ChunkStrategyFixed {
			t.Errorf("ChunkStrategy = %q, want %q", c.ChunkStrategy, ChunkStrategyFixed)
		}
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		c := Collection{
			ChunkSize:     500,
			ChunkOverlap:  50,
			Threshold:     0.8,
			DocumentCount: 10,
			ChunkStrategy: ChunkStrategyMarkdown,
		}
		c.ApplyDefaults()

		if c.ChunkSize != 500 || c.ChunkOverlap != 50 || c.DocumentCount != 10 {
			t.Errorf("ApplyDefaults() overwrote explicit sizes: %+v", c)
		}
		if c.Threshold != 0.8 {
			t.Errorf("Threshold = %v, want 0.8", c.Threshold)
		}
		if c.ChunkStrategy != ChunkStrategyMarkdown {
			t.Errorf("ChunkStrategy = %q, want %q", c.ChunkStrategy, ChunkStrategyMarkdown)
		}
	})
}

func TestDocument_Enabled(t *testing.T) {
	doc := Document{}
	if !doc.Enabled() {
		t.Error("new document should be enabled")
	}

	doc.Metadata.Disabled = true
	if doc.Enabled() {
		t.Error("disabled document reported as enabled")
	}
}
