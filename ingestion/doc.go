// Package ingestion turns queued tasks into embedded, searchable documents.
//
// Pipeline implements queue.Executor. For every task it:
//   - reads the payload, fetching URLs that arrive without content
//   - extracts text from binary formats through a parser.Registry
//   - splits the text with the collection's chunking configuration
//   - embeds the chunks in batches with the collection's model
//   - replaces the documents previously produced from the same source
//
// Progress is reported at fixed checkpoints and the task context is checked
// between stages, so a cancelled task stops with queue.ErrCancelled.
//
// Tracker follows queue events and keeps a core.Source record per submitted
// file, URL or note.
package ingestion
