package search

import "github.com/poiesic/kbase/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(collectionID core.ID, query string)
	AfterEmbedding(vector []float32)
	AfterCandidateLoad(candidates []*core.Document)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.ID, _ string)             {}
func (n *noopMonitor) AfterEmbedding(_ []float32)            {}
func (n *noopMonitor) AfterCandidateLoad(_ []*core.Document) {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)         {}
