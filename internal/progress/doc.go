// Package progress provides the event primitives, non-blocking hub, and emitter
// interface that the dispatcher and workers use to report harvest progress. It
// batches events on a background goroutine and fans them out to pluggable
// sinks such as Prometheus metrics, logs, or the live run tracker.
package progress
