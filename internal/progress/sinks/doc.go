// Package sinks implements concrete progress consumers: the execution store,
// structured logging and Prometheus. Each sink satisfies progress.Sink.
package sinks
