package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/kbase/core"
)

// Reference is a search result as handed to a language model prompt.
type Reference struct {
	ID             int     `json:"id"`
	Content        string  `json:"content"`
	Type           string  `json:"type"`
	Similarity     float32 `json:"similarity"`
	CollectionID   string  `json:"knowledgeBaseId"`
	CollectionName string  `json:"knowledgeBaseName"`
	SourceURL      string  `json:"sourceUrl"`
}

// ReferenceURL returns the knowledge:// URL of a document.
func ReferenceURL(collectionID, documentID core.ID) string {
	return fmt.Sprintf("knowledge://%d/%d", collectionID, documentID)
}

// NewReferences numbers results from 1 in their ranked order.
func NewReferences(collection *core.Collection, results []*core.SearchResult) []Reference {
	refs := make([]Reference, 0, len(results))
	for i, result := range results {
		refs = append(refs, Reference{
			ID:             i + 1,
			Content:        result.Document.Content,
			Type:           "file",
			Similarity:     result.Score,
			CollectionID:   fmt.Sprint(collection.Id),
			CollectionName: collection.Name,
			SourceURL:      ReferenceURL(collection.Id, result.Document.Id),
		})
	}
	return refs
}

// FormatReferences renders results as an indented JSON array inside a
// fenced json block.
func FormatReferences(collection *core.Collection, results []*core.SearchResult) (string, error) {
	data, err := json.MarshalIndent(NewReferences(collection, results), "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(data) + "\n```", nil
}

// FormatPlainContext renders results as a numbered plain text list with
// similarity percentages. It returns "" when there are no results.
func FormatPlainContext(collection *core.Collection, results []*core.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n--- Knowledge base references ---\n")
	fmt.Fprintf(&sb, "\n[%s]:\n", collection.Name)
	for i, result := range results {
		fmt.Fprintf(&sb, "%d. %s (similarity: %.1f%%)\n", i+1, result.Document.Content, result.Score*100)
	}
	sb.WriteString("\n--- Answer using the references above ---\n")
	return sb.String()
}
