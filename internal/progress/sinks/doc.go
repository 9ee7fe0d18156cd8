// Package sinks implements concrete progress consumers: Prometheus collectors,
// structured logging, and an in-memory tracker of live run counts.
package sinks
