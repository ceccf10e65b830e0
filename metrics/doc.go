// Package metrics exports ingestion queue activity as Prometheus metrics.
//
// A Recorder subscribes to a queue.Queue and keeps counters for submitted,
// finished and retried tasks, a histogram of attempt durations and gauges
// mirroring queue.Status. Serve exposes a registry over HTTP.
package metrics
