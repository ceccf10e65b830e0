package badger

import (
	"encoding/binary"

	"github.com/poiesic/kbase/core"
)

// Key prefixes for different data types
const (
	collectionPrefix         = "col:"
	collectionNamePrefix     = "colname:"
	collectionIDSeq          = "colseq"
	documentPrefix           = "doc:"
	documentCollectionPrefix = "doccol:"
	documentSourcePrefix     = "docsrc:"
	documentIDSeq            = "docseq"
	sourcePrefix             = "src:"
)

// compositeKey builds prefix followed by each ID as 8 big-endian bytes,
// so lexicographic key order matches numeric ID order.
func compositeKey(prefix string, ids ...core.ID) []byte {
	buf := make([]byte, len(prefix)+8*len(ids))
	offset := copy(buf, prefix)
	for _, id := range ids {
		binary.BigEndian.PutUint64(buf[offset:], uint64(id))
		offset += 8
	}
	return buf
}

// lastID decodes the trailing 8-byte ID of a composite key.
func lastID(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

func makeCollectionKey(id core.ID) []byte {
	return compositeKey(collectionPrefix, id)
}

func makeCollectionNameKey(name string) []byte {
	return []byte(collectionNamePrefix + name)
}

func makeDocumentKey(id core.ID) []byte {
	return compositeKey(documentPrefix, id)
}

// Format: prefix:collectionID:documentID
func makeDocumentCollectionKey(collectionID, docID core.ID) []byte {
	return compositeKey(documentCollectionPrefix, collectionID, docID)
}

// Format: prefix:collectionID:sourceID:documentID
func makeDocumentSourceKey(collectionID, sourceID, docID core.ID) []byte {
	return compositeKey(documentSourcePrefix, collectionID, sourceID, docID)
}

// Format: prefix:collectionID:sourceID
func makeSourceKey(collectionID, sourceID core.ID) []byte {
	return compositeKey(sourcePrefix, collectionID, sourceID)
}
