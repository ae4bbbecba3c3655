// Package progress carries crawl-run progress events from workers to sinks.
// Emit never blocks a pipeline: the Hub buffers events, batches them on a
// background goroutine and fans each batch out to log and Prometheus sinks.
package progress
