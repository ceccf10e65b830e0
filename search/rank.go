package search

import (
	"math"
	"slices"

	"github.com/poiesic/kbase/core"
)

// CosineSimilarity returns dot(a, b) / (|a| * |b|).
// It returns 0 when either vector is empty, the lengths differ or either
// vector has zero magnitude.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push parallel vectors just past 1
	return float32(max(-1, min(1, sim)))
}

// Rank scores candidates against query and returns those scoring at least
// threshold, best first. Disabled documents are never scored. Equal scores
// keep their input order. A negative limit returns every match.
func Rank(query []float32, candidates []*core.Document, threshold float32, limit int) []*core.SearchResult {
	results := make([]*core.SearchResult, 0, len(candidates))
	for _, doc := range candidates {
		if doc == nil || !doc.Enabled() {
			continue
		}
		score := CosineSimilarity(query, doc.Vector)
		if score < threshold {
			continue
		}
		results = append(results, &core.SearchResult{Document: doc, Score: score})
	}

	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
