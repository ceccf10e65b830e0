// Package reembed recomputes the vectors of a collection's documents,
// typically after the collection switches to a different embedding model.
//
// A Reembedder walks the collection in ID order with a DocumentIterator,
// embeds each batch through a BatchProcessor (retrying transient provider
// failures with exponential backoff) and writes the vectors back in place.
// When every document has been updated the collection's Model and
// Dimensions are replaced, so searches immediately use the new model.
//
// Progress is written to an io.Writer as a single self-overwriting line:
//
//	r, err := reembed.NewReembedder(repos.Collections, repos.Documents, provider,
//		reembed.WithProgress(os.Stderr))
//	result, err := r.Run(ctx, collectionID, "nomic-embed-text")
package reembed
