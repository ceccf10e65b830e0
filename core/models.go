package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from content using BLAKE2b hashing.
// Identical content produces identical IDs.
func IDFromContent(content string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(content))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Collection defaults applied by ApplyDefaults.
const (
	DefaultChunkSize     = 1000
	DefaultChunkOverlap  = 200
	DefaultThreshold     = float32(0.6)
	DefaultDocumentCount = 5
)

// ChunkStrategy selects how a collection's text is split before embedding.
type ChunkStrategy string

const (
	ChunkStrategyFixed     ChunkStrategy = "fixed"
	ChunkStrategyParagraph ChunkStrategy = "paragraph"
	ChunkStrategyMarkdown  ChunkStrategy = "markdown"
	ChunkStrategyCode      ChunkStrategy = "code"
)

// Collection is a named set of embedded documents that share an embedding
// model and chunking configuration.
type Collection struct {
	Id            ID
	Name          string
	Description   string
	Model         string        // Embedding model used for documents and queries
	Dimensions    int           // Expected vector length, 0 if not yet known
	DocumentCount int           // Default search result limit
	ChunkSize     int           // Maximum chunk length in characters
	ChunkOverlap  int           // Characters carried between consecutive chunks
	ChunkStrategy ChunkStrategy // Splitting strategy
	Threshold     float32       // Default minimum similarity for search
	InsertedAt    time.Time
	UpdatedAt     time.Time
}

// ApplyDefaults fills zero-valued tuning fields with package defaults.
func (c *Collection) ApplyDefaults() {
	if c.DocumentCount == 0 {
		c.DocumentCount = DefaultDocumentCount
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.ChunkStrategy == "" {
		c.ChunkStrategy = ChunkStrategyFixed
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
}

// DocumentMetadata describes where a document chunk came from.
type DocumentMetadata struct {
	Source     string    // File name, URL or note title
	FileName   string    // Original file name, if any
	SourceId   ID        // Content ID of the originating Source
	ChunkIndex int       // Position of the chunk within its source
	Timestamp  time.Time // When the chunk was produced
	Disabled   bool      // Disabled documents are excluded from search
}

// Document is a single embedded chunk of a source.
type Document struct {
	Id           ID
	CollectionId ID
	Content      string
	Vector       []float32
	Metadata     DocumentMetadata
	InsertedAt   time.Time
}

// Enabled reports whether the document participates in search.
func (d *Document) Enabled() bool {
	return !d.Metadata.Disabled
}

// SourceStatus tracks the processing state of a Source.
type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusCompleted  SourceStatus = "completed"
	SourceStatusFailed     SourceStatus = "failed"
	SourceStatusCancelled  SourceStatus = "cancelled"
)

// Source is a file, URL or note submitted to a collection. It records the
// outcome of its most recent ingestion.
type Source struct {
	Id           ID
	CollectionId ID
	Name         string
	Kind         string
	Size         int64
	Status       SourceStatus
	Progress     int
	Stage        string
	Error        string
	RetryCount   int
	ChunkCount   int
	TaskId       string
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// SearchResult represents a search result with the full document and relevance score.
type SearchResult struct {
	Document *Document
	Score    float32
}
